package ordering

import (
	"sync"
	"testing"
)

func TestCounterStartAndAdvance(t *testing.T) {
	c := NewCounter(100)
	if got := c.Unit(); got != 100 {
		t.Fatalf("expected start unit 100, got %d", got)
	}

	if got := c.Advance(1); got != 101 {
		t.Fatalf("expected 101 after advance, got %d", got)
	}
	if got := c.Advance(5); got != 106 {
		t.Fatalf("expected 106 after advance(5), got %d", got)
	}
	if got := c.Unit(); got != 106 {
		t.Fatalf("Unit() disagrees with Advance result: %d", got)
	}
}

func TestCounterSetForward(t *testing.T) {
	c := NewCounter(10)
	c.Set(50)
	if got := c.Unit(); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	// Setting to the current unit is a no-op, not a regression.
	c.Set(50)
	if got := c.Unit(); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestCounterSetBackwardsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on backwards Set")
		}
	}()
	c := NewCounter(50)
	c.Set(49)
}

func TestCounterConcurrentAdvance(t *testing.T) {
	c := NewCounter(0)
	var wg sync.WaitGroup
	const goroutines = 50
	const perGoroutine = 100

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.Advance(1)
			}
		}()
	}
	wg.Wait()

	if got := c.Unit(); got != goroutines*perGoroutine {
		t.Fatalf("expected %d, got %d", goroutines*perGoroutine, got)
	}
}

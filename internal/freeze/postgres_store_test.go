//go:build integration

package freeze

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/cordonlabs/cordon/internal/detector"
	"github.com/cordonlabs/cordon/internal/testutil"
)

func setupTestDB(t *testing.T) (*PostgresStore, *sql.DB) {
	t.Helper()

	db := testutil.OpenPostgres(t)
	ctx := context.Background()

	// Mirrors migrations 002 + 003.
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS threat_records (
			id                TEXT PRIMARY KEY,
			caller            TEXT NOT NULL,
			target            TEXT NOT NULL,
			payload           BYTEA,
			value             NUMERIC(78,0) NOT NULL DEFAULT 0,
			unit              BIGINT NOT NULL,
			at                TIMESTAMPTZ NOT NULL,
			level             TEXT NOT NULL,
			vuln_type         TEXT NOT NULL,
			heuristic         TEXT NOT NULL DEFAULT '',
			reason            TEXT NOT NULL DEFAULT '',
			freeze_expiry     BIGINT NOT NULL DEFAULT 0,
			mitigated         BOOLEAN NOT NULL DEFAULT FALSE,
			mitigation_result BYTEA
		);
		CREATE TABLE IF NOT EXISTS frozen_calls (
			threat_id      TEXT PRIMARY KEY REFERENCES threat_records(id),
			initiator      TEXT NOT NULL,
			frozen_at      TIMESTAMPTZ NOT NULL,
			frozen_at_unit BIGINT NOT NULL,
			freeze_expiry  BIGINT NOT NULL,
			executed       BOOLEAN NOT NULL DEFAULT FALSE,
			cancelled      BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	if err != nil {
		t.Fatalf("create tables: %v", err)
	}

	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM frozen_calls")
		_, _ = db.ExecContext(ctx, "DELETE FROM threat_records")
	})

	return NewPostgresStore(db), db
}

func TestPostgresThreatRoundTrip(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	rec := testThreat(1, 12345)
	rec.Payload = []byte{0xde, 0xad, 0xbe, 0xef}
	rec.Heuristic = "withdrawal_pattern"
	rec.At = time.Now().UTC().Truncate(time.Microsecond)

	if err := store.CreateThreat(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetThreat(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Caller != rec.Caller || got.Target != rec.Target {
		t.Errorf("addresses mangled: %+v", got)
	}
	if got.Value.Cmp(big.NewInt(12345)) != 0 {
		t.Errorf("value = %s", got.Value)
	}
	if got.Level != detector.LevelHigh || got.Type != detector.TypeLargeWithdrawal {
		t.Errorf("classification mangled: %s/%s", got.Level, got.Type)
	}

	// Duplicate create is a no-op, not an error: threat IDs are
	// content-addressed and collisions mean the same attempt.
	if err := store.CreateThreat(ctx, rec); err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
}

func TestPostgresThreatMitigationUpdate(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	rec := testThreat(2, 0)
	if err := store.CreateThreat(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec.Mitigated = true
	rec.MitigationResult = []byte("reverted")
	if err := store.UpdateThreat(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := store.GetThreat(ctx, rec.ID)
	if !got.Mitigated || string(got.MitigationResult) != "reverted" {
		t.Errorf("mitigation not persisted: %+v", got)
	}

	missing := testThreat(99, 0)
	if err := store.UpdateThreat(ctx, missing); !errors.Is(err, ErrThreatNotFound) {
		t.Errorf("update missing: got %v", err)
	}
}

func TestPostgresFrozenCallLifecycle(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	rec := testThreat(3, 0)
	if err := store.CreateThreat(ctx, rec); err != nil {
		t.Fatalf("create threat: %v", err)
	}

	fc := &FrozenCall{
		ThreatID:     rec.ID,
		Initiator:    rec.Caller,
		FrozenAt:     time.Now().UTC().Truncate(time.Microsecond),
		FrozenAtUnit: 100,
		FreezeExpiry: 130,
	}
	if err := store.CreateFrozenCall(ctx, fc); err != nil {
		t.Fatalf("create frozen: %v", err)
	}

	active, err := store.ListActiveFrozen(ctx, 10)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ThreatID != rec.ID {
		t.Fatalf("active = %+v", active)
	}

	fc.Cancelled = true
	if err := store.UpdateFrozenCall(ctx, fc); err != nil {
		t.Fatalf("update frozen: %v", err)
	}

	active, _ = store.ListActiveFrozen(ctx, 10)
	if len(active) != 0 {
		t.Fatalf("resolved call still listed active: %+v", active)
	}

	got, _ := store.GetFrozenCall(ctx, rec.ID)
	if !got.Cancelled || got.Executed {
		t.Errorf("state not persisted: %+v", got)
	}
}

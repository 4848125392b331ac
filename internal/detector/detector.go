// Package detector classifies call attempts against a fixed-priority list of
// threat heuristics. Classification is first-match-wins: earlier heuristics
// dominate later ones, so a reentrancy-shaped call is reported as REENTRANCY
// even when it would also trip a gas-price signal. The ordering is
// semantically load-bearing; do not reorder or parallelize the list.
package detector

import "log/slog"

// Level is the severity of a classified attempt.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = map[Level]string{
	LevelNone:     "NONE",
	LevelLow:      "LOW",
	LevelMedium:   "MEDIUM",
	LevelHigh:     "HIGH",
	LevelCritical: "CRITICAL",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseLevel converts a level name back to a Level. Unknown names map to
// LevelNone.
func ParseLevel(s string) Level {
	for l, name := range levelNames {
		if name == s {
			return l
		}
	}
	return LevelNone
}

// VulnType names the vulnerability class a heuristic matched.
type VulnType string

const (
	TypeReentrancy         VulnType = "REENTRANCY"
	TypeFlashLoan          VulnType = "FLASH_LOAN"
	TypeStateManipulation  VulnType = "STATE_MANIPULATION"
	TypeUnexpectedValue    VulnType = "UNEXPECTED_VALUE_FLOW"
	TypeUnsafeCall         VulnType = "UNSAFE_CALL"
	TypeAccessControl      VulnType = "ACCESS_CONTROL"
	TypeIntegerOverflow    VulnType = "INTEGER_OVERFLOW"
	TypeLogicError         VulnType = "LOGIC_ERROR"
	TypeLargeWithdrawal    VulnType = "LARGE_WITHDRAWAL"
	TypeRapidWithdrawal    VulnType = "RAPID_WITHDRAWAL"
	TypeAdminAbuse         VulnType = "ADMIN_ABUSE"
	TypeOracleManipulation VulnType = "ORACLE_MANIPULATION"
	TypeUnknown            VulnType = "UNKNOWN"
)

// Classification is the outcome of evaluating an attempt.
type Classification struct {
	Level     Level
	Type      VulnType
	Heuristic string
	Reason    string
}

// Detector runs the fixed-priority heuristic list against call attempts.
// Classify is pure except for the bookkeeping side effects of the burst and
// withdrawal heuristics, which update shared per-caller and per-target
// counters (see CallGraph). Callers that need classification to be atomic
// with downstream freeze-creation must serialize per target around it.
type Detector struct {
	cfg        *Config
	graph      *CallGraph
	heuristics []Heuristic
	logger     *slog.Logger
}

// Option configures the Detector.
type Option func(*Detector)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// WithHeuristics overrides the default heuristic list. Order is preserved.
func WithHeuristics(hs ...Heuristic) Option {
	return func(d *Detector) { d.heuristics = hs }
}

// New creates a Detector with the default heuristic list.
func New(cfg *Config, opts ...Option) *Detector {
	d := &Detector{
		cfg:        cfg,
		graph:      NewCallGraph(),
		heuristics: DefaultHeuristics(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Graph exposes the behavioral call graph for tests and diagnostics.
func (d *Detector) Graph() *CallGraph {
	return d.graph
}

// Config returns the runtime-tunable configuration.
func (d *Detector) Config() *Config {
	return d.cfg
}

// Classify evaluates the heuristics in order and returns the first match,
// adjusted for the target's protection level. A zero-value Classification
// (LevelNone) means the attempt is clean.
func (d *Detector) Classify(a *Attempt, protectionLevel int) Classification {
	view := d.cfg.view()

	for _, h := range d.heuristics {
		c := h.Evaluate(view, d.graph, a)
		if c == nil {
			continue
		}
		c.Heuristic = h.Name()
		res := adjustForProtectionLevel(*c, protectionLevel)
		if res.Level > LevelNone {
			d.logger.Debug("attempt classified",
				"heuristic", res.Heuristic,
				"level", res.Level.String(),
				"type", string(res.Type),
				"caller", a.Caller.Hex(),
				"target", a.Target.Hex(),
			)
		}
		return res
	}

	return Classification{Level: LevelNone}
}

// adjustForProtectionLevel applies the registered protection level to a raw
// verdict: paranoid targets (level 4-5) escalate MEDIUM to HIGH, and the most
// permissive level (1) suppresses LOW findings entirely. Levels 2-3 are
// neutral.
func adjustForProtectionLevel(c Classification, protectionLevel int) Classification {
	switch {
	case protectionLevel >= 4 && c.Level == LevelMedium:
		c.Level = LevelHigh
		c.Reason += " (escalated by protection level)"
	case protectionLevel <= 1 && c.Level == LevelLow:
		c.Level = LevelNone
	}
	return c
}

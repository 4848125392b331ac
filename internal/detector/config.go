package detector

import (
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"
)

// Thresholds are the runtime-tunable knobs of the heuristic list. Each is
// independently settable by the policy owner.
type Thresholds struct {
	// MinBalance: contract callers below this balance look flash-loan funded.
	MinBalance *big.Int
	// LargeValue: attached value above this is a large-value transfer.
	LargeValue *big.Int
	// LowGasFloor: remaining execution budget below this is abnormally low
	// for a large-value call.
	LowGasFloor uint64
	// MaxCallDepth: call depth above this is treated as a reentrancy shape.
	MaxCallDepth int
	// SuspiciousCalls: per-caller calls within one ordering unit beyond this
	// trip the burst heuristic.
	SuspiciousCalls int
	// HighFrequencyCalls: the softer frequency floor read by the
	// high-frequency heuristic.
	HighFrequencyCalls int
	// PriorityFee: priority-fee signal above this trips the gas heuristic.
	PriorityFee *big.Int
	// WithdrawMultiplier: withdrawals above multiplier x running average
	// deposit are large withdrawals.
	WithdrawMultiplier int64
	// MaxWithdrawal: absolute withdrawal ceiling; zero disables.
	MaxWithdrawal *big.Int
	// PatternWindow: ordering units the withdrawal pattern analysis spans.
	PatternWindow uint64
	// RapidWithdrawals: withdrawals within the window beyond this are rapid.
	RapidWithdrawals int
}

// DefaultThresholds returns the built-in threshold values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinBalance:         big.NewInt(1_000_000_000_000_000_000), // 1 unit of native currency
		LargeValue:         new(big.Int).Mul(big.NewInt(100), big.NewInt(1_000_000_000_000_000_000)),
		LowGasFloor:        100_000,
		MaxCallDepth:       8,
		SuspiciousCalls:    5,
		HighFrequencyCalls: 3,
		PriorityFee:        big.NewInt(500_000_000_000), // 500 gwei
		WithdrawMultiplier: 10,
		MaxWithdrawal:      new(big.Int),
		PatternWindow:      10,
		RapidWithdrawals:   3,
	}
}

// Selector computes the 4-byte function selector for a signature like
// "withdraw(uint256)".
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// selectorSet maps 4-byte selectors back to the signature they were built
// from, so heuristic reasons can name the function.
type selectorSet map[[4]byte]string

func newSelectorSet(signatures []string) selectorSet {
	s := make(selectorSet, len(signatures))
	for _, sig := range signatures {
		s[Selector(sig)] = sig
	}
	return s
}

func (s selectorSet) lookup(sel [4]byte) (string, bool) {
	sig, ok := s[sel]
	return sig, ok
}

// Config holds the detector's thresholds and selector sets. All fields are
// guarded by one RWMutex; Classify takes a consistent snapshot per pass so a
// concurrent threshold update cannot split a single classification.
type Config struct {
	mu         sync.RWMutex
	thresholds Thresholds

	sensitive selectorSet // value-moving operations (reentrancy shape)
	payable   selectorSet // operations that legitimately accept value
	admin     selectorSet // administrative/upgrade surface
	access    selectorSet // ownership/mint/burn surface
	withdraw  selectorSet // ledger-style withdrawal entry points
	deposit   selectorSet // ledger-style deposit entry points
}

// Default selector signatures. Kept small on purpose: targets with unusual
// interfaces ship their own policy file.
var (
	defaultSensitive = []string{
		"withdraw(uint256)",
		"withdrawAll()",
		"transfer(address,uint256)",
		"transferFrom(address,address,uint256)",
		"emergencyWithdraw()",
	}
	defaultPayable = []string{
		"deposit()",
		"fund()",
		"donate()",
	}
	defaultAdmin = []string{
		"upgradeTo(address)",
		"upgradeToAndCall(address,bytes)",
		"setImplementation(address)",
		"setAdmin(address)",
	}
	defaultAccess = []string{
		"transferOwnership(address)",
		"renounceOwnership()",
		"mint(address,uint256)",
		"burn(address,uint256)",
	}
	defaultWithdraw = []string{
		"withdraw(uint256)",
		"withdrawAll()",
	}
	defaultDeposit = []string{
		"deposit()",
	}
)

// DefaultConfig returns a Config with built-in thresholds and selector sets.
func DefaultConfig() *Config {
	return &Config{
		thresholds: DefaultThresholds(),
		sensitive:  newSelectorSet(defaultSensitive),
		payable:    newSelectorSet(defaultPayable),
		admin:      newSelectorSet(defaultAdmin),
		access:     newSelectorSet(defaultAccess),
		withdraw:   newSelectorSet(defaultWithdraw),
		deposit:    newSelectorSet(defaultDeposit),
	}
}

// Thresholds returns a copy of the current threshold values.
func (c *Config) Thresholds() Thresholds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyThresholds(c.thresholds)
}

// SetThresholds replaces the threshold values. Nil big.Int fields in the
// incoming struct keep their current values so each knob is independently
// settable.
func (c *Config) SetThresholds(t Thresholds) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.MinBalance != nil {
		c.thresholds.MinBalance = new(big.Int).Set(t.MinBalance)
	}
	if t.LargeValue != nil {
		c.thresholds.LargeValue = new(big.Int).Set(t.LargeValue)
	}
	if t.LowGasFloor > 0 {
		c.thresholds.LowGasFloor = t.LowGasFloor
	}
	if t.MaxCallDepth > 0 {
		c.thresholds.MaxCallDepth = t.MaxCallDepth
	}
	if t.SuspiciousCalls > 0 {
		c.thresholds.SuspiciousCalls = t.SuspiciousCalls
	}
	if t.HighFrequencyCalls > 0 {
		c.thresholds.HighFrequencyCalls = t.HighFrequencyCalls
	}
	if t.PriorityFee != nil {
		c.thresholds.PriorityFee = new(big.Int).Set(t.PriorityFee)
	}
	if t.WithdrawMultiplier > 0 {
		c.thresholds.WithdrawMultiplier = t.WithdrawMultiplier
	}
	if t.MaxWithdrawal != nil {
		c.thresholds.MaxWithdrawal = new(big.Int).Set(t.MaxWithdrawal)
	}
	if t.PatternWindow > 0 {
		c.thresholds.PatternWindow = t.PatternWindow
	}
	if t.RapidWithdrawals > 0 {
		c.thresholds.RapidWithdrawals = t.RapidWithdrawals
	}
}

// policyView is the consistent snapshot a single Classify pass works from.
type policyView struct {
	Thresholds
	sensitive selectorSet
	payable   selectorSet
	admin     selectorSet
	access    selectorSet
	withdraw  selectorSet
	deposit   selectorSet
}

func (c *Config) view() *policyView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Selector sets are replaced wholesale on update, never mutated in
	// place, so sharing the maps here is safe.
	return &policyView{
		Thresholds: copyThresholds(c.thresholds),
		sensitive:  c.sensitive,
		payable:    c.payable,
		admin:      c.admin,
		access:     c.access,
		withdraw:   c.withdraw,
		deposit:    c.deposit,
	}
}

func copyThresholds(t Thresholds) Thresholds {
	cp := t
	if t.MinBalance != nil {
		cp.MinBalance = new(big.Int).Set(t.MinBalance)
	}
	if t.LargeValue != nil {
		cp.LargeValue = new(big.Int).Set(t.LargeValue)
	}
	if t.PriorityFee != nil {
		cp.PriorityFee = new(big.Int).Set(t.PriorityFee)
	}
	if t.MaxWithdrawal != nil {
		cp.MaxWithdrawal = new(big.Int).Set(t.MaxWithdrawal)
	}
	return cp
}

// ---------------------------------------------------------------------------
// YAML policy file
// ---------------------------------------------------------------------------

// policyFile is the on-disk representation of a detector policy.
type policyFile struct {
	Version    string `yaml:"version"`
	Thresholds struct {
		MinBalance         string `yaml:"min_balance"`
		LargeValue         string `yaml:"large_value"`
		LowGasFloor        uint64 `yaml:"low_gas_floor"`
		MaxCallDepth       int    `yaml:"max_call_depth"`
		SuspiciousCalls    int    `yaml:"suspicious_calls"`
		HighFrequencyCalls int    `yaml:"high_frequency_calls"`
		PriorityFee        string `yaml:"priority_fee"`
		WithdrawMultiplier int64  `yaml:"withdraw_multiplier"`
		MaxWithdrawal      string `yaml:"max_withdrawal"`
		PatternWindow      uint64 `yaml:"pattern_window"`
		RapidWithdrawals   int    `yaml:"rapid_withdrawals"`
	} `yaml:"thresholds"`
	Selectors struct {
		Sensitive     []string `yaml:"sensitive"`
		Payable       []string `yaml:"payable"`
		Admin         []string `yaml:"admin"`
		AccessControl []string `yaml:"access_control"`
		Withdraw      []string `yaml:"withdraw"`
		Deposit       []string `yaml:"deposit"`
	} `yaml:"selectors"`
}

// LoadConfig reads a YAML policy file and merges it over the defaults.
// A missing file returns the default config; a malformed file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("detector: read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("detector: parse policy file: %w", err)
	}

	t := Thresholds{
		LowGasFloor:        pf.Thresholds.LowGasFloor,
		MaxCallDepth:       pf.Thresholds.MaxCallDepth,
		SuspiciousCalls:    pf.Thresholds.SuspiciousCalls,
		HighFrequencyCalls: pf.Thresholds.HighFrequencyCalls,
		WithdrawMultiplier: pf.Thresholds.WithdrawMultiplier,
		PatternWindow:      pf.Thresholds.PatternWindow,
		RapidWithdrawals:   pf.Thresholds.RapidWithdrawals,
	}
	var parseErr error
	parse := func(field, s string) *big.Int {
		if s == "" {
			return nil
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok || n.Sign() < 0 {
			parseErr = fmt.Errorf("detector: policy field %s: invalid amount %q", field, s)
			return nil
		}
		return n
	}
	t.MinBalance = parse("min_balance", pf.Thresholds.MinBalance)
	t.LargeValue = parse("large_value", pf.Thresholds.LargeValue)
	t.PriorityFee = parse("priority_fee", pf.Thresholds.PriorityFee)
	t.MaxWithdrawal = parse("max_withdrawal", pf.Thresholds.MaxWithdrawal)
	if parseErr != nil {
		return nil, parseErr
	}
	cfg.SetThresholds(t)

	if len(pf.Selectors.Sensitive) > 0 {
		cfg.sensitive = newSelectorSet(pf.Selectors.Sensitive)
	}
	if len(pf.Selectors.Payable) > 0 {
		cfg.payable = newSelectorSet(pf.Selectors.Payable)
	}
	if len(pf.Selectors.Admin) > 0 {
		cfg.admin = newSelectorSet(pf.Selectors.Admin)
	}
	if len(pf.Selectors.AccessControl) > 0 {
		cfg.access = newSelectorSet(pf.Selectors.AccessControl)
	}
	if len(pf.Selectors.Withdraw) > 0 {
		cfg.withdraw = newSelectorSet(pf.Selectors.Withdraw)
	}
	if len(pf.Selectors.Deposit) > 0 {
		cfg.deposit = newSelectorSet(pf.Selectors.Deposit)
	}

	return cfg, nil
}

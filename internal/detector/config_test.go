package detector

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThresholdsPartialUpdate(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg.Thresholds()

	cfg.SetThresholds(Thresholds{SuspiciousCalls: 9})

	after := cfg.Thresholds()
	assert.Equal(t, 9, after.SuspiciousCalls)
	assert.Equal(t, before.HighFrequencyCalls, after.HighFrequencyCalls)
	assert.Equal(t, 0, before.MinBalance.Cmp(after.MinBalance))
}

func TestThresholdsCopyIsDetached(t *testing.T) {
	cfg := DefaultConfig()

	th := cfg.Thresholds()
	th.MinBalance.SetInt64(1)

	require.NotEqual(t, int64(1), cfg.Thresholds().MinBalance.Int64(),
		"mutating a returned copy must not affect the config")
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds().SuspiciousCalls, cfg.Thresholds().SuspiciousCalls)
}

func TestLoadConfigEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	policy := `
version: "1"
thresholds:
  min_balance: "5000"
  suspicious_calls: 7
  pattern_window: 20
selectors:
  withdraw:
    - "redeem(uint256)"
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	th := cfg.Thresholds()
	assert.Equal(t, 0, th.MinBalance.Cmp(big.NewInt(5000)))
	assert.Equal(t, 7, th.SuspiciousCalls)
	assert.Equal(t, uint64(20), th.PatternWindow)
	// Unset fields keep defaults.
	assert.Equal(t, DefaultThresholds().MaxCallDepth, th.MaxCallDepth)

	// Withdraw set was replaced wholesale.
	view := cfg.view()
	_, ok := view.withdraw.lookup(Selector("redeem(uint256)"))
	assert.True(t, ok)
	_, ok = view.withdraw.lookup(Selector("withdraw(uint256)"))
	assert.False(t, ok)
	// Sensitive set untouched.
	_, ok = view.sensitive.lookup(Selector("withdraw(uint256)"))
	assert.True(t, ok)
}

func TestLoadConfigRejectsBadAmount(t *testing.T) {
	policy := `
thresholds:
  large_value: "not-a-number"
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

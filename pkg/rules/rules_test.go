package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ReturnsDefault_When_PathEmpty(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Enabled("trace-min-dist"))
	assert.True(t, cfg.KnownHazardClass("ANYTHING"))
}

func TestParse_HandlesRuleFiles(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, cfg Config)
	}{
		{
			name: "success: full file",
			yaml: `kernel_threshold: 2
min_run_length: 4
hazard_classes: [PHASE_ORDERING, ENERGY_OVERSHOOT]
rules:
  trace-min-dist:
    level: warning
  trace-position-gap:
    disabled: true
`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 2, cfg.KernelThreshold)
				assert.Equal(t, 4, cfg.MinRunLength)
				assert.Equal(t, "warning", cfg.Level("trace-min-dist", "note"))
				assert.Equal(t, "note", cfg.Level("trace-cycle-order", "note"))
				assert.False(t, cfg.Enabled("trace-position-gap"))
				assert.True(t, cfg.KnownHazardClass("PHASE_ORDERING"))
				assert.False(t, cfg.KnownHazardClass("CONTAINMENT_TIMING"))
				opts := cfg.StatsOptions()
				assert.Equal(t, 2, opts.KernelThreshold)
				assert.Equal(t, 4, opts.MinRunLength)
			},
		},
		{
			name: "success: empty document keeps defaults",
			yaml: "",
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "success: partial file keeps default thresholds",
			yaml: "rules:\n  trace-hazard-class:\n    level: error\n",
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 1, cfg.KernelThreshold)
				assert.Equal(t, 3, cfg.MinRunLength)
				assert.Equal(t, "error", cfg.Level("trace-hazard-class", "warning"))
			},
		},
		{
			name:    "error: invalid level",
			yaml:    "rules:\n  trace-parse:\n    level: fatal\n",
			wantErr: "invalid level",
		},
		{
			name:    "error: non-positive threshold",
			yaml:    "min_run_length: 0\n",
			wantErr: "min_run_length",
		},
		{
			name:    "error: unknown field",
			yaml:    "kernel: 1\n",
			wantErr: "decode rules",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tc.yaml))
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoadConfig_ReadsFileAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte("kernel_threshold: 3\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.KernelThreshold)

	data, err := cfg.Marshal()
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read rules")
}

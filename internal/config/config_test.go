package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "pipewire", cfg.AudioBackend)
	assert.Equal(t, 50, cfg.ProbeIterations)
	assert.Equal(t, 50*time.Millisecond, cfg.ProbeTick)
	assert.Equal(t, 16*time.Millisecond, cfg.RepaintInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.CoordinationInterval)
	assert.Empty(t, cfg.GPUPreference)
}

func TestLoadEnvironmentThenFlags(t *testing.T) {
	t.Setenv("PRESETDECK_PIPEWIRE_TARGET", "alsa_output.monitor")
	t.Setenv("PRESETDECK_WIDTH", "320")
	t.Setenv("PRESETDECK_AUDIO_BACKEND", "dummy")

	cfg, err := Load([]string{"-width", "640", "-gpu", "igpu"})
	require.NoError(t, err)
	assert.Equal(t, "alsa_output.monitor", cfg.PipeWireTarget)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, "dummy", cfg.AudioBackend)
	assert.Equal(t, "igpu", cfg.GPUPreference)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load([]string{"-width", "0"})
	assert.Error(t, err)

	_, err = Load([]string{"-audio-backend", "jack"})
	assert.Error(t, err)

	_, err = Load([]string{"-gpu", "tpu"})
	assert.Error(t, err)
}

func TestResolveGPUPreference(t *testing.T) {
	tests := []struct {
		override, persisted, want string
	}{
		{"", "", GPUDiscrete},
		{"", "igpu", GPUIntegrated},
		{"igpu", "dgpu", GPUIntegrated},
		{"discrete", "igpu", GPUDiscrete},
		{"Integrated", "", GPUIntegrated},
		{"bogus", "auto", GPUAuto},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveGPUPreference(tt.override, tt.persisted), "override=%q persisted=%q", tt.override, tt.persisted)
	}
}

func TestEnvGPUOverridesPersisted(t *testing.T) {
	t.Setenv("PRESETDECK_GPU", "igpu")
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, GPUIntegrated, ResolveGPUPreference(cfg.GPUPreference, "dgpu"))
}

func TestApplyGPUPreference(t *testing.T) {
	vars := map[string]string{}
	lookup := func(k string) (string, bool) { v, ok := vars[k]; return v, ok }
	setenv := func(k, v string) error { vars[k] = v; return nil }

	assert.Equal(t, "", applyGPUPreference(GPUAuto, lookup, setenv))
	assert.NotContains(t, vars, driPrimeEnv)

	assert.Equal(t, "1", applyGPUPreference(GPUDiscrete, lookup, setenv))
	assert.Equal(t, "1", vars[driPrimeEnv])

	// existing value wins
	assert.Equal(t, "1", applyGPUPreference(GPUIntegrated, lookup, setenv))
	assert.Equal(t, "1", vars[driPrimeEnv])
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(true)
	require.NoError(t, err)
	logger.Debugw("test", "key", 1)
	_ = logger.Sync()
}

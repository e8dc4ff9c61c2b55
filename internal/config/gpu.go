package config

import (
	"os"
	"strings"
)

const (
	GPUAuto       = "auto"
	GPUDiscrete   = "dgpu"
	GPUIntegrated = "igpu"

	driPrimeEnv = "DRI_PRIME"
)

func parseGPUPreference(value string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "auto":
		return GPUAuto, true
	case "dgpu", "discrete":
		return GPUDiscrete, true
	case "igpu", "integrated":
		return GPUIntegrated, true
	default:
		return "", false
	}
}

// ResolveGPUPreference picks override, then persisted, then discrete.
func ResolveGPUPreference(override, persisted string) string {
	if pref, ok := parseGPUPreference(override); ok {
		return pref
	}
	if pref, ok := parseGPUPreference(persisted); ok {
		return pref
	}
	return GPUDiscrete
}

// ApplyGPUPreference exports DRI_PRIME for pref unless it is already set.
// It returns the value now in effect, or "" when untouched.
func ApplyGPUPreference(pref string) string {
	return applyGPUPreference(pref, os.LookupEnv, os.Setenv)
}

func applyGPUPreference(pref string, lookup func(string) (string, bool), setenv func(string, string) error) string {
	if current, ok := lookup(driPrimeEnv); ok {
		return current
	}
	var value string
	switch pref {
	case GPUDiscrete:
		value = "1"
	case GPUIntegrated:
		value = "0"
	default:
		return ""
	}
	if err := setenv(driPrimeEnv, value); err != nil {
		return ""
	}
	return value
}

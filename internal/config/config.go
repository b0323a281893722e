// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults, Load(ctx) to layer sources.
// - External errors must be wrapped via this package's sentinel errors.
package config

import "fmt"

// ClockReference is the serialized form of a pre-calibrated counter
// reference: the absolute UCTS time (ns TAI) at which the counter read
// Counter0 nanoseconds.
type ClockReference struct {
	UCTSTimestamp uint64 `koanf:"ucts_timestamp"`
	Counter0      int64  `koanf:"counter0"`
}

// TelescopeReference holds the optional per-telescope calibration. A nil
// entry leaves the corresponding counter to first-event bootstrapping.
type TelescopeReference struct {
	Dragon *ClockReference `koanf:"dragon"`
	TIB    *ClockReference `koanf:"tib"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Inputs lists the substream files to merge, one per readout chain.
	Inputs []string `koanf:"inputs"`

	// Output is the path of the JSONL file receiving reconciled events.
	Output string `koanf:"output"`

	// ClockSource selects the counter used for the final timestamp:
	// ucts, dragon or tib.
	ClockSource string `koanf:"clock_source"`

	// DragonModuleID is the camera module whose counters drive jump
	// detection and the dragon timestamp.
	DragonModuleID uint16 `koanf:"dragon_module_id"`

	// UseFirstEvent allows bootstrapping missing clock references from the
	// first usable event.
	UseFirstEvent bool `koanf:"use_first_event"`

	// JumpToleranceNS is the UCTS-versus-dragon discrepancy, in
	// nanoseconds, above which a jump is declared.
	JumpToleranceNS int64 `koanf:"jump_tolerance_ns"`

	// MetricsAddr configures the Prometheus listen address, e.g. ":9090".
	// Empty disables the metrics endpoint.
	MetricsAddr string `koanf:"metrics_addr"`

	// References maps telescope ids (as decimal strings, a YAML/env
	// key restriction) to pre-calibrated clock references.
	References map[string]TelescopeReference `koanf:"references"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		ClockSource:     "dragon",
		DragonModuleID:  132,
		UseFirstEvent:   true,
		JumpToleranceNS: 1_000,
	}
}

// validClockSources are the accepted clock_source values.
var validClockSources = map[string]struct{}{
	"ucts":   {},
	"dragon": {},
	"tib":    {},
}

// Validate checks the invariants that do not depend on the filesystem.
func (c *Config) Validate() error {
	if _, ok := validClockSources[c.ClockSource]; !ok {
		return fmt.Errorf("%w: unknown clock_source %q", ErrInvalidConfig, c.ClockSource)
	}
	if c.JumpToleranceNS <= 0 {
		return fmt.Errorf("%w: jump_tolerance_ns must be positive, got %d", ErrInvalidConfig, c.JumpToleranceNS)
	}
	return nil
}

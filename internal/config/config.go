// Package config centralizes all application configuration into typed structs.
//
// Go Learning Note — Configuration Management:
// Go projects typically manage configuration in one of these ways:
//  1. Struct literals with defaults (used here — simplest for MVPs)
//  2. Environment variables via os.Getenv() or "github.com/kelseyhightower/envconfig"
//  3. Config files (YAML/TOML) via "github.com/spf13/viper"
//  4. Command-line flags via "github.com/jessevdk/go-flags", which the cmd/
//     binaries use to override the defaults below
//
// Using typed structs (not raw strings/maps) gives you compile-time safety
// and IDE autocompletion. This is strongly preferred in Go over untyped config.
package config

import (
	"time"
)

// Config is the top-level configuration container. Grouping related settings
// into sub-structs keeps the config organized as the application grows.
//
// Go Learning Note — Struct Composition:
// Go doesn't have classes or inheritance. Instead, you compose structs by
// embedding or nesting them. Here Config "has a" RingConfig, PaymentsConfig,
// etc. This is composition over inheritance — a core Go design principle.
type Config struct {
	Ring      RingConfig
	Payments  PaymentsConfig
	Passenger PassengerConfig
	Debug     DebugConfig
}

// RingConfig controls the driver ring's fixed topology and timing parameters.
// These are compile-time constants in the reference implementation; they are
// exposed as config here so tests can shrink MaxDrivers/TripDuration without
// touching production defaults.
type RingConfig struct {
	BasePort     int           // listening port for driver id 0; driver i listens on BasePort+i
	MaxDrivers   int           // N: fixed upper bound on driver ids, in [0, MaxDrivers)
	TripDuration time.Duration // T_TRIP: simulated trip execution time
	MaxLineBytes int           // maximum bytes per newline-delimited JSON message
	DialTimeout  time.Duration // timeout for a single right-neighbor connect probe
}

// PaymentsConfig controls the standalone payments service.
type PaymentsConfig struct {
	Port string // PAYMENTS_PORT listener address, e.g. ":8000"
}

// PassengerConfig controls the passenger client binary.
type PassengerConfig struct {
	FleetFile    string        // path to the JSON file describing passengers to simulate
	ConnectRetry time.Duration // not read by cmd/passenger or passengerclient; driver ports are dialed back to back
}

// DebugConfig controls the per-driver gin debug/observability sidecar.
// Go Learning Note — Debug ports alongside the domain port:
// Production Go services commonly expose a separate admin/metrics port so
// that operational traffic never competes with the protocol it's watching.
// Here the sidecar listens on BasePort+id+DebugPortOffset.
type DebugConfig struct {
	Enabled         bool
	DebugPortOffset int
}

// NewDefaultConfig returns a Config populated with the defaults from the
// specification: BASE_PORT=6000, PAYMENTS_PORT=8000, MAX_DRIVERS=5,
// T_TRIP=10s.
//
// Go Learning Note — Constructor Functions:
// Go has no constructors. By convention, New<Type>() functions serve the same
// purpose. They return a pointer (*Config) so the caller gets a reference to
// shared, mutable state. Returning a value type would copy the struct on every
// assignment, which is fine for small immutable data but wasteful for large
// config objects that get passed around.
func NewDefaultConfig() *Config {
	return &Config{
		Ring: RingConfig{
			BasePort:     6000,
			MaxDrivers:   5,
			TripDuration: 10 * time.Second,
			MaxLineBytes: 2048,
			DialTimeout:  2 * time.Second,
		},
		Payments: PaymentsConfig{
			Port: ":8000",
		},
		Passenger: PassengerConfig{
			FleetFile:    "passengers.json",
			ConnectRetry: 200 * time.Millisecond,
		},
		Debug: DebugConfig{
			Enabled:         true,
			DebugPortOffset: 10000,
		},
	}
}

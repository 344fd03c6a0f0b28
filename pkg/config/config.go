// Package config loads the ambient, deployment-level settings that sit
// around the core engines: which store backends to construct, where to
// export telemetry, and the log level. It never influences authority,
// tier, or ledger semantics — those come only from the arguments passed
// to the engines' own operations.
//
// Reads os.Getenv with hardcoded fallbacks, so a deployment can
// override any one knob without a config file.
package config

import "os"

// Config holds process-level configuration for a delegacy deployment.
type Config struct {
	LogLevel string

	AuthorityStoreDSN string // "" = in-memory
	LedgerStoreDSN    string // "" = in-memory
	CooldownRedisAddr string // "" = in-memory

	OTLPEndpoint string
	OTELEnabled  bool
}

// Load reads configuration from environment variables, falling back to
// in-memory/no-op defaults when unset so the library has no required
// external dependency out of the box.
func Load() *Config {
	logLevel := os.Getenv("DELEGACY_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	return &Config{
		LogLevel:          logLevel,
		AuthorityStoreDSN: os.Getenv("DELEGACY_AUTHORITY_STORE_DSN"),
		LedgerStoreDSN:    os.Getenv("DELEGACY_LEDGER_STORE_DSN"),
		CooldownRedisAddr: os.Getenv("DELEGACY_COOLDOWN_REDIS_ADDR"),
		OTLPEndpoint:      os.Getenv("DELEGACY_OTLP_ENDPOINT"),
		OTELEnabled:       os.Getenv("DELEGACY_OTEL_ENABLED") == "true",
	}
}

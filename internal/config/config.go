// Package config parses process environment variables into a typed
// ProverConfig. No third-party configuration library is used: the set of
// recognized keys is small and flat, and every value falls back to a
// well-defined default rather than aborting startup, so a handful of
// os.Getenv/strconv.Parse calls is the idiomatic shape here.
package config

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/provable-labs/remote-prover/internal/logging"
	"github.com/provable-labs/remote-prover/internal/network"
)

const (
	// DefaultListenAddr is used when PROVER_LISTEN_ADDR is unset or invalid.
	DefaultListenAddr = ":3030"

	// DefaultProgramCacheTTL bounds how long a fetched program source is
	// cached. Cache entries are keyed by edition, and the latest edition
	// is looked up without the cache, so this TTL does not delay seeing a
	// new edition.
	DefaultProgramCacheTTL = 5 * time.Minute

	httpClientTimeout = 20 * time.Second
)

// ProverConfig holds everything the prover service needs to run, resolved
// once at startup from the process environment.
type ProverConfig struct {
	ListenAddr             string
	MaxConcurrentProofs    int
	Network                network.Network
	HTTPClient             *http.Client
	EnforceProgramEditions bool
	RESTEndpointOverride   string
	BroadcastEndpointOverride string
	LogLevel               string
	LogFormat              string
	TracingEnabled         bool
	TracingEndpoint        string
	TracingSampleRate      float64
	MetricsNamespace       string
	ProgramCacheAddr       string
	ProgramCacheTTL        time.Duration
}

// Default returns a ProverConfig with every field set to its documented
// default, before any environment variable is consulted.
func Default() *ProverConfig {
	return &ProverConfig{
		ListenAddr:             DefaultListenAddr,
		MaxConcurrentProofs:    defaultParallelism(),
		Network:                network.Mainnet,
		HTTPClient:             &http.Client{Timeout: httpClientTimeout},
		EnforceProgramEditions: true,
		LogLevel:               "info",
		LogFormat:              "text",
		TracingSampleRate:      1.0,
		MetricsNamespace:       "prover",
		ProgramCacheTTL:        DefaultProgramCacheTTL,
	}
}

func defaultParallelism() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// LoadFromEnv builds a ProverConfig from Default() and overrides it with
// any recognized environment variables. Unrecognized or malformed values
// are logged and the previous (default) value is kept; startup never
// aborts because of a bad environment variable.
func LoadFromEnv() *ProverConfig {
	cfg := Default()

	if v := os.Getenv("PROVER_LISTEN_ADDR"); v != "" {
		if _, _, err := net.SplitHostPort(v); err != nil {
			logging.Op().Warn("invalid PROVER_LISTEN_ADDR, keeping default",
				"value", v, "default", cfg.ListenAddr)
		} else {
			cfg.ListenAddr = v
		}
	}

	if v := os.Getenv("MAX_CONCURRENT_PROOFS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			logging.Op().Warn("invalid MAX_CONCURRENT_PROOFS, keeping default",
				"value", v, "default", cfg.MaxConcurrentProofs)
		} else {
			cfg.MaxConcurrentProofs = n
		}
	}

	if v := os.Getenv("NETWORK"); v != "" {
		n, err := network.Parse(v)
		if err != nil {
			logging.Op().Warn("invalid NETWORK, keeping default",
				"value", v, "default", cfg.Network.String())
		} else {
			cfg.Network = n
		}
	}

	if v := os.Getenv("ENFORCE_PROGRAM_EDITIONS"); v != "" {
		b, ok := parseBool(v)
		if !ok {
			logging.Op().Warn("invalid ENFORCE_PROGRAM_EDITIONS, keeping default",
				"value", v, "default", cfg.EnforceProgramEditions)
		} else {
			cfg.EnforceProgramEditions = b
		}
	}

	if v := os.Getenv("REST_ENDPOINT_OVERRIDE"); v != "" {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			cfg.RESTEndpointOverride = trimmed
		}
	}

	if v := os.Getenv("BROADCAST_ENDPOINT_OVERRIDE"); v != "" {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			cfg.BroadcastEndpointOverride = trimmed
		}
	}

	if v := os.Getenv("PROVER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("PROVER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	if v := os.Getenv("PROVER_TRACING_ENABLED"); v != "" {
		b, ok := parseBool(v)
		if !ok {
			logging.Op().Warn("invalid PROVER_TRACING_ENABLED, keeping default",
				"value", v, "default", cfg.TracingEnabled)
		} else {
			cfg.TracingEnabled = b
		}
	}

	if v := os.Getenv("PROVER_TRACING_ENDPOINT"); v != "" {
		cfg.TracingEndpoint = v
	}

	if v := os.Getenv("PROVER_TRACING_SAMPLE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			logging.Op().Warn("invalid PROVER_TRACING_SAMPLE_RATE, keeping default",
				"value", v, "default", cfg.TracingSampleRate)
		} else {
			cfg.TracingSampleRate = f
		}
	}

	if v := os.Getenv("PROVER_METRICS_NAMESPACE"); v != "" {
		cfg.MetricsNamespace = v
	}

	if v := os.Getenv("PROVER_PROGRAM_CACHE_ADDR"); v != "" {
		cfg.ProgramCacheAddr = v
	}

	if v := os.Getenv("PROVER_PROGRAM_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			logging.Op().Warn("invalid PROVER_PROGRAM_CACHE_TTL, keeping default",
				"value", v, "default", cfg.ProgramCacheTTL.String())
		} else {
			cfg.ProgramCacheTTL = d
		}
	}

	return cfg
}

// EffectiveRESTEndpoint returns the REST base to use for program fetches
// and ledger queries: the override if one is configured, otherwise the
// selected network's default REST base.
func (c *ProverConfig) EffectiveRESTEndpoint() string {
	if c.RESTEndpointOverride != "" {
		return c.RESTEndpointOverride
	}
	return network.RESTBase(c.Network)
}

// EffectiveBroadcastEndpoint returns the explorer broadcast URL to use:
// the override if one is configured, otherwise the selected network's
// default broadcast endpoint.
func (c *ProverConfig) EffectiveBroadcastEndpoint() string {
	if c.BroadcastEndpointOverride != "" {
		return c.BroadcastEndpointOverride
	}
	return network.BroadcastEndpoint(c.Network)
}

func parseBool(input string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

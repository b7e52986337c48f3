package config

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
)

func getHostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}

// getBuildVersion extracts version info from Go's embedded build info.
// Returns git short hash + "-dirty" suffix if uncommitted changes, or "unknown" if unavailable.
func getBuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	if revision == "" {
		return "unknown"
	}

	if len(revision) > 8 {
		revision = revision[:8]
	}
	if dirty {
		revision += "-dirty"
	}
	return revision
}

// Config holds the debug/admin binary's configuration. It is much
// smaller than a full hypervisor host's config: there is no network,
// volume, or VM lifecycle surface to configure here, only the sandbox
// core and the HTTP admin surface around it.
type Config struct {
	Port string

	// CacheRoot is the directory OverlayWorkspace creates per-invocation
	// upper/work directories under.
	CacheRoot string
	// AllowNetwork is passed to SandboxLauncher for every command this
	// binary runs; a request cannot override it.
	AllowNetwork bool
	// MaxCombinedOutput caps CommandResult.Combined; requests whose
	// combined output would exceed it get truncated with a notice
	// appended, rather than growing the response body unbounded.
	MaxCombinedOutput string

	JwtSecret string

	// OpenTelemetry configuration
	OtelEnabled           bool
	OtelEndpoint          string
	OtelServiceName       string
	OtelServiceInstanceID string
	OtelInsecure          bool
	Version               string
	Env                   string

	LogLevel string
}

// Load loads configuration from environment variables.
// Automatically loads .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		CacheRoot:         getEnv("BUBBLE_CACHE_DIR", "/var/lib/bubbled/cache"),
		AllowNetwork:      getEnvBool("BUBBLE_ALLOW_NETWORK", false),
		MaxCombinedOutput: getEnv("BUBBLE_MAX_COMBINED_OUTPUT", "10MB"),
		JwtSecret:         getEnv("JWT_SECRET", ""),

		OtelEnabled:           getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:          getEnv("OTEL_ENDPOINT", ""),
		OtelServiceName:       getEnv("OTEL_SERVICE_NAME", "bubbled"),
		OtelServiceInstanceID: getEnv("OTEL_SERVICE_INSTANCE_ID", getHostname()),
		OtelInsecure:          getEnvBool("OTEL_INSECURE", false),
		Version:               getEnv("VERSION", getBuildVersion()),
		Env:                   getEnv("ENV", "dev"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.JwtSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if _, err := c.MaxCombinedOutputBytes(); err != nil {
		return fmt.Errorf("BUBBLE_MAX_COMBINED_OUTPUT: %w", err)
	}
	return nil
}

// MaxCombinedOutputBytes parses MaxCombinedOutput ("10MB", "512KB", ...)
// into a byte count for sandbox.NewOutputPumpWithLimit.
func (c *Config) MaxCombinedOutputBytes() (uint64, error) {
	var v datasize.ByteSize
	if err := v.UnmarshalText([]byte(c.MaxCombinedOutput)); err != nil {
		return 0, err
	}
	return v.Bytes(), nil
}

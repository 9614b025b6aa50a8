// Package config provides configuration parsing for the pipeline service.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence over environment variables. The Config struct contains
// all runtime configuration for the pipeline:
//   - Source settings (kind plus per-source SOURCE_* configuration map)
//   - Dataset defaults (site→zone map, default zone, default payroll category)
//   - Evaluation settings (eval year prefix)
//   - Output settings (directory, upload base URL)
//   - Storage backend (memory or redis)
//   - Run mode (interval loop or one-shot), worker cap
//   - HTTP server, logging, and TLS settings
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sitecast/sitecast/pkg/tls"
)

// Config holds all pipeline configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	TLS tls.Config

	Source       string
	SourceConfig map[string]string

	ZoneMap        map[string]string
	DefaultZone    string
	DefaultPayroll string
	DefaultHoliday string
	EvalYear       string

	OutputDir     string
	UploadBaseURL string

	Interval time.Duration
	Once     bool
	Workers  int
}

// ParseFlags parses command-line flags and environment variables into a
// Config. Environment variables are used as fallbacks when flags are not
// provided.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 24*time.Hour), "Redis snapshot TTL")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for HTTP server")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	flag.StringVar(&cfg.Source, "source", getEnv("SOURCE", "csv"), "Input source: csv or http")

	zoneMap := flag.String("zone-map", getEnv("ZONE_MAP", ""), "Site to zone map, e.g. lyon=A,paris=C")
	flag.StringVar(&cfg.DefaultZone, "default-zone", getEnv("DEFAULT_ZONE", "C"), "Zone used for sites absent from the zone map")
	flag.StringVar(&cfg.DefaultPayroll, "default-payroll", getEnv("DEFAULT_PAYROLL", "S_NORMALE"), "Payroll category used for weeks absent from the payroll calendar")
	flag.StringVar(&cfg.DefaultHoliday, "default-holiday", getEnv("DEFAULT_HOLIDAY", "AUCUN"), "Holiday category used for weeks absent from the holiday calendar")
	flag.StringVar(&cfg.EvalYear, "eval-year", getEnv("EVAL_YEAR", "2024"), "Period prefix selecting the holdout evaluation subset")

	flag.StringVar(&cfg.OutputDir, "output-dir", getEnv("OUTPUT_DIR", "out"), "Directory for CSV artifacts")
	flag.StringVar(&cfg.UploadBaseURL, "upload-base-url", getEnv("UPLOAD_BASE_URL", ""), "Base URL for HTTP PUT artifact upload (empty disables)")

	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 6*time.Hour), "Pipeline re-run interval")
	flag.BoolVar(&cfg.Once, "once", getEnvBool("ONCE", false), "Run the pipeline once and exit")
	flag.IntVar(&cfg.Workers, "workers", getEnvInt("WORKERS", 8), "Maximum concurrent site fits")

	flag.Parse()

	cfg.SourceConfig = parseSourceConfig()
	cfg.ZoneMap = parseZoneMap(*zoneMap)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Source != "csv" && c.Source != "http" {
		return fmt.Errorf("invalid source %q (must be csv or http)", c.Source)
	}
	if c.Storage != "memory" && c.Storage != "redis" {
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	if c.EvalYear == "" {
		return fmt.Errorf("eval year cannot be empty")
	}
	if c.DefaultZone == "" {
		return fmt.Errorf("default zone cannot be empty")
	}
	if c.DefaultPayroll == "" {
		return fmt.Errorf("default payroll category cannot be empty")
	}
	if c.DefaultHoliday == "" {
		return fmt.Errorf("default holiday category cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if !c.Once && c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0 unless -once is set")
	}
	return c.TLS.Validate()
}

// parseSourceConfig parses SOURCE_* environment variables into a generic
// configuration map. Source-specific settings use the SOURCE_ prefix, for
// example SOURCE_HISTORY_PATH, SOURCE_ROWS_PATH. Names are converted to
// camelCase (SOURCE_HISTORY_PATH → historyPath).
func parseSourceConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		if len(env) > 7 && env[:7] == "SOURCE_" {
			parts := splitEnv(env)
			if len(parts) == 2 && parts[0] != "SOURCE" {
				key := toLowerCamelCase(parts[0][7:])
				config[key] = parts[1]
			}
		}
	}

	return config
}

// parseZoneMap parses "site=zone,site=zone" into a map. Malformed entries
// are skipped.
func parseZoneMap(s string) map[string]string {
	m := make(map[string]string)
	if s == "" {
		return m
	}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		site, zone, ok := strings.Cut(entry, "=")
		if !ok || site == "" || zone == "" {
			continue
		}
		m[strings.TrimSpace(site)] = strings.TrimSpace(zone)
	}
	return m
}

func splitEnv(env string) []string {
	for i := 0; i < len(env); i++ {
		if env[i] == '=' {
			return []string{env[:i], env[i+1:]}
		}
	}
	return []string{env}
}

func toLowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	parts := []rune(s)
	result := make([]rune, 0, len(parts))
	nextUpper := false
	for i, r := range parts {
		if r == '_' {
			nextUpper = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
		} else if nextUpper {
			result = append(result, r)
			nextUpper = false
		} else {
			result = append(result, toLower(r))
		}
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Query drivers supported by the remote query source
const (
	QueryDriverNone     = "none"
	QueryDriverSQLite   = "sqlite3"
	QueryDriverPostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// StatusInterval is the websocket heartbeat period, 0 disables it
	StatusInterval time.Duration

	// Pipeline
	MaxUploadBytes      int64
	TableRowLimit       int
	ParallelAggregation bool

	// KPI alert thresholds, 0 disables a rule
	AlertMinAnsweredRate float64
	AlertMaxFailedRate   float64
	AlertMaxAvgWait      time.Duration
	AlertMinCalls        int

	// Tracing
	TracingEnabled    bool
	TracingExporter   string
	TracingEndpoint   string
	TracingSampleRate float64
	TracingInsecure   bool
	Environment       string

	// RateLimitPerMinute caps mutating API requests per client, 0 disables
	RateLimitPerMinute int
	// RedisURL shares rate limit counters between replicas when set
	RedisURL string

	// Auth
	SkipAuth   bool
	JWTSecret  string
	OIDCIssuer string

	// Remote query source
	QueryDriver string
	QueryDSN    string
	QueryTable  string

	// Export sink
	ExportBucket          string
	ExportEndpoint        string
	ExportRegion          string
	ExportAccessKeyID     string
	ExportSecretAccessKey string
	ExportPrefix          string
}

// Load loads configuration from a .env file, an optional YAML file named
// by CONFIG_FILE and environment variables, in increasing precedence.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	k := koanf.New(".")
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	get := func(key, koanfKey, defaultValue string) string {
		if k.Exists(koanfKey) {
			defaultValue = k.String(koanfKey)
		}
		return getEnv(key, defaultValue)
	}

	config := &Config{
		Port:           get("PORT", "port", "8080"),
		AllowedOrigins: strings.Split(get("ALLOWED_ORIGINS", "allowed_origins", "http://localhost:5173"), ","),
		LogLevel:       get("LOG_LEVEL", "log_level", "info"),

		TracingExporter: get("OTEL_EXPORTER_TYPE", "tracing.exporter", "otlp-http"),
		TracingEndpoint: get("OTEL_EXPORTER_OTLP_ENDPOINT", "tracing.endpoint", ""),
		Environment:     get("ENVIRONMENT", "environment", "development"),
		RedisURL:        get("REDIS_URL", "rate_limit.redis_url", ""),

		JWTSecret:  get("JWT_SECRET", "auth.jwt_secret", ""),
		OIDCIssuer: get("OIDC_ISSUER", "auth.oidc_issuer", ""),

		QueryDriver: get("QUERY_DRIVER", "query.driver", QueryDriverNone),
		QueryDSN:    get("QUERY_DSN", "query.dsn", ""),
		QueryTable:  get("QUERY_TABLE", "query.table", "cdr"),

		ExportBucket:          get("EXPORT_BUCKET", "export.bucket", ""),
		ExportEndpoint:        get("EXPORT_ENDPOINT", "export.endpoint", ""),
		ExportRegion:          get("EXPORT_REGION", "export.region", "auto"),
		ExportAccessKeyID:     get("EXPORT_ACCESS_KEY_ID", "export.access_key_id", ""),
		ExportSecretAccessKey: get("EXPORT_SECRET_ACCESS_KEY", "export.secret_access_key", ""),
		ExportPrefix:          get("EXPORT_PREFIX", "export.prefix", "reports"),
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(get("WS_READ_TIMEOUT", "ws.read_timeout", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(get("WS_WRITE_TIMEOUT", "ws.write_timeout", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	statusInterval, err := strconv.Atoi(get("STATUS_INTERVAL", "ws.status_interval", "30"))
	if err != nil || statusInterval < 0 {
		return nil, fmt.Errorf("invalid STATUS_INTERVAL: %q", get("STATUS_INTERVAL", "ws.status_interval", "30"))
	}
	config.StatusInterval = time.Duration(statusInterval) * time.Second

	uploadMB, err := strconv.Atoi(get("MAX_UPLOAD_MB", "pipeline.max_upload_mb", "50"))
	if err != nil || uploadMB <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB: %q", get("MAX_UPLOAD_MB", "pipeline.max_upload_mb", "50"))
	}
	config.MaxUploadBytes = int64(uploadMB) << 20

	config.TableRowLimit, err = strconv.Atoi(get("TABLE_ROW_LIMIT", "pipeline.table_row_limit", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid TABLE_ROW_LIMIT: %w", err)
	}

	config.ParallelAggregation, err = strconv.ParseBool(get("PARALLEL_AGGREGATION", "pipeline.parallel", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid PARALLEL_AGGREGATION: %w", err)
	}

	config.AlertMinAnsweredRate, err = strconv.ParseFloat(get("ALERT_MIN_ANSWERED_RATE", "alerts.min_answered_rate", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_MIN_ANSWERED_RATE: %w", err)
	}
	config.AlertMaxFailedRate, err = strconv.ParseFloat(get("ALERT_MAX_FAILED_RATE", "alerts.max_failed_rate", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_MAX_FAILED_RATE: %w", err)
	}
	maxWait, err := strconv.Atoi(get("ALERT_MAX_AVG_WAIT", "alerts.max_avg_wait", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_MAX_AVG_WAIT: %w", err)
	}
	config.AlertMaxAvgWait = time.Duration(maxWait) * time.Second
	config.AlertMinCalls, err = strconv.Atoi(get("ALERT_MIN_CALLS", "alerts.min_calls", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_MIN_CALLS: %w", err)
	}

	config.TracingEnabled, err = strconv.ParseBool(get("TRACING_ENABLED", "tracing.enabled", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRACING_ENABLED: %w", err)
	}
	config.TracingInsecure, err = strconv.ParseBool(get("OTEL_EXPORTER_OTLP_INSECURE", "tracing.insecure", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_EXPORTER_OTLP_INSECURE: %w", err)
	}
	config.TracingSampleRate, err = strconv.ParseFloat(get("TRACING_SAMPLE_RATE", "tracing.sample_rate", "0.1"), 64)
	if err != nil || config.TracingSampleRate < 0 || config.TracingSampleRate > 1 {
		return nil, fmt.Errorf("invalid TRACING_SAMPLE_RATE: %q", get("TRACING_SAMPLE_RATE", "tracing.sample_rate", "0.1"))
	}

	config.RateLimitPerMinute, err = strconv.Atoi(get("RATE_LIMIT_PER_MINUTE", "rate_limit.per_minute", "60"))
	if err != nil || config.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %q", get("RATE_LIMIT_PER_MINUTE", "rate_limit.per_minute", "60"))
	}

	config.SkipAuth, err = strconv.ParseBool(get("SKIP_AUTH", "auth.skip", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid SKIP_AUTH: %w", err)
	}

	switch config.QueryDriver {
	case QueryDriverNone, QueryDriverSQLite, QueryDriverPostgres:
	default:
		return nil, fmt.Errorf("invalid QUERY_DRIVER %q", config.QueryDriver)
	}
	if config.QueryDriver != QueryDriverNone && config.QueryDSN == "" {
		return nil, fmt.Errorf("QUERY_DSN is required for driver %s", config.QueryDriver)
	}

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// ExportEnabled reports whether the export sink has a bucket configured
func (c *Config) ExportEnabled() bool {
	return c.ExportBucket != ""
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

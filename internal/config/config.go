package config

import (
	"os"
	"strconv"
	"time"
	_ "time/tzdata"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	// ConnectAttempts is how many pings startup makes before giving up on the database.
	ConnectAttempts    int
	ConnectTimeoutSec  int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// TokenConfig holds the signing settings for content access tokens.
type TokenConfig struct {
	Secret               string
	Issuer               string
	DefaultExpiryMinutes int
	// MaxExpiryMinutes caps every grant window, whatever the unit asks for.
	MaxExpiryMinutes     int
}

// MaxExpiry is the longest grant window. A non-positive setting means 24 hours.
func (t TokenConfig) MaxExpiry() time.Duration {
	if t.MaxExpiryMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(t.MaxExpiryMinutes) * time.Minute
}

// RedisConfig holds the connection settings of the grant revocation list.
// An empty Addr disables revocation checks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQConfig holds the event publisher settings. An empty URI disables publishing.
type RabbitMQConfig struct {
	URI      string
	Exchange string
}

// ViewerConfig bounds the server-side document viewer.
type ViewerConfig struct {
	MinZoom          float64
	MaxZoom          float64
	ZoomStep         float64
	RenderTimeoutSec int
	MaxSessions      int
	ReapIntervalSec  int
	IdleTimeoutSec   int
	BaseDPI          float64
}

// WatermarkConfig describes the tiled identity watermark.
type WatermarkConfig struct {
	AngleDeg float64
	Opacity  float64
	SpacingX int
	SpacingY int
}

// TracingConfig selects the OTLP trace exporter and sampler.
type TracingConfig struct {
	Disabled    bool
	ServiceName string
	Protocol    string
	Sampler     string
	SamplerArg  string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost            string
	Port               string
	Timezone           string
	InternalAPIKey     string
	TelemetryQueueSize int
	Database           DatabaseConfig
	MinIO              MinIOConfig
	Token              TokenConfig
	Redis              RedisConfig
	RabbitMQ           RabbitMQConfig
	Viewer             ViewerConfig
	Watermark          WatermarkConfig
	Tracing            TracingConfig
}

// Location resolves the configured time zone used for log timestamps, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:            getEnv("APP_HOST", "localhost:8080"),
		Port:               getEnv("PORT", "8080"),
		Timezone:           getEnv("APP_TIMEZONE", "UTC"),
		InternalAPIKey:     getEnv("INTERNAL_API_KEY", ""),
		TelemetryQueueSize: getEnvInt("TELEMETRY_QUEUE_SIZE", 1024),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			ConnectAttempts:    getEnvInt("DB_CONNECT_ATTEMPTS", 5),
			ConnectTimeoutSec:  getEnvInt("DB_CONNECT_TIMEOUT_SEC", 5),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Token: TokenConfig{
			Secret:               getEnv("TOKEN_SECRET", ""),
			Issuer:               getEnv("TOKEN_ISSUER", "contentgate"),
			DefaultExpiryMinutes: getEnvInt("TOKEN_DEFAULT_EXPIRY_MINUTES", 60),
			MaxExpiryMinutes:     getEnvInt("TOKEN_MAX_EXPIRY_MINUTES", 1440),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URI:      getEnv("RABBITMQ_URI", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "content-events"),
		},
		Viewer: ViewerConfig{
			MinZoom:          getEnvFloat("VIEWER_MIN_ZOOM", 0.5),
			MaxZoom:          getEnvFloat("VIEWER_MAX_ZOOM", 3.0),
			ZoomStep:         getEnvFloat("VIEWER_ZOOM_STEP", 0.25),
			RenderTimeoutSec: getEnvInt("VIEWER_RENDER_TIMEOUT_SEC", 20),
			MaxSessions:      getEnvInt("VIEWER_MAX_SESSIONS", 500),
			ReapIntervalSec:  getEnvInt("VIEWER_REAP_INTERVAL_SEC", 30),
			IdleTimeoutSec:   getEnvInt("VIEWER_IDLE_TIMEOUT_SEC", 900),
			BaseDPI:          getEnvFloat("VIEWER_BASE_DPI", 96),
		},
		Watermark: WatermarkConfig{
			AngleDeg: clamp(getEnvFloat("WATERMARK_ANGLE", -35), -45, -30),
			Opacity:  clamp(getEnvFloat("WATERMARK_OPACITY", 0.08), 0.05, 0.1),
			SpacingX: getEnvInt("WATERMARK_SPACING_X", 220),
			SpacingY: getEnvInt("WATERMARK_SPACING_Y", 160),
		},
		Tracing: TracingConfig{
			Disabled:    getEnvBool("OTEL_SDK_DISABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "contentgate"),
			Protocol:    getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			Sampler:     getEnv("OTEL_TRACES_SAMPLER", "parentbased_traceidratio"),
			SamplerArg:  getEnv("OTEL_TRACES_SAMPLER_ARG", "1.0"),
		},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

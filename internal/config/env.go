package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Service    string
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	MinLevel      string
	FlushInterval time.Duration
}

// ServerConfig defines the HTTP surface.
type ServerConfig struct {
	Addr            string
	BodyLimitBytes  int64
	Token           string
	RateLimit       int // requests per minute per client IP, 0 disables
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// ConvertConfig defines rendering and fan-out behavior.
type ConvertConfig struct {
	Engine            string // "mupdf"|"pdfium"
	PdfiumInstances   int
	UploadConcurrency int
	MaxConversions    int
	Quality           int
	RequestTimeout    time.Duration
}

// StorageConfig defines the object store backend.
type StorageConfig struct {
	Backend     string // "s3"|"minio"|"memory"
	AccountID   string
	KeyID       string
	Secret      string
	Bucket      string
	Endpoint    string
	Region      string
	MinioSecure bool
	PathStyle   bool
}

// RedisConfig is optional; when URL is empty admission is process-local.
type RedisConfig struct {
	URL string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Server  ServerConfig
	Convert ConvertConfig
	Storage StorageConfig
	Redis   RedisConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	service := getEnv("PDF_SERVICE_NAME", "pdf2img")

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Service:    service,
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/"+service+".log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_" + service,
		MinLevel:      getEnv("AXIOM_LEVEL", "info"),
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Addr:            getEnv("PDF_ADDR", ":3000"),
		BodyLimitBytes:  int64(parseInt(getEnv("PDF_BODY_LIMIT", "250"), 250)) << 20,
		Token:           getEnv("PDF_TOKEN", ""),
		RateLimit:       parseInt(getEnv("PDF_RATE_LIMIT", "0"), 0),
		CORSOrigins:     parseList(getEnv("PDF_CORS_ORIGINS", "")),
		ShutdownTimeout: parseDuration(getEnv("PDF_SHUTDOWN_TIMEOUT", "30s"), 30*time.Second),
	}

	cfg.Convert = ConvertConfig{
		Engine:            strings.ToLower(getEnv("PDF_ENGINE", "mupdf")),
		PdfiumInstances:   parseInt(getEnv("PDF_PDFIUM_INSTANCES", "4"), 4),
		UploadConcurrency: parseInt(getEnv("PDF_UPLOAD_CONCURRENCY", "8"), 8),
		MaxConversions:    parseInt(getEnv("PDF_MAX_CONVERSIONS", "4"), 4),
		Quality:           parseInt(getEnv("PDF_QUALITY", "90"), 90),
		RequestTimeout:    parseDuration(getEnv("PDF_REQUEST_TIMEOUT", "5m"), 5*time.Minute),
	}
	if cfg.Convert.UploadConcurrency <= 0 {
		cfg.Convert.UploadConcurrency = 8
	}
	if cfg.Convert.Quality <= 0 || cfg.Convert.Quality > 100 {
		cfg.Convert.Quality = 90
	}

	cfg.Storage = StorageConfig{
		Backend:     strings.ToLower(getEnv("PDF_STORAGE", "s3")),
		AccountID:   getEnv("PDF_ACCOUNT_ID", ""),
		KeyID:       getEnv("PDF_KEY_ID", ""),
		Secret:      getEnv("PDF_SECRET", ""),
		Bucket:      getEnv("PDF_BUCKET", ""),
		Endpoint:    getEnv("PDF_ENDPOINT", ""),
		Region:      getEnv("PDF_REGION", "auto"),
		MinioSecure: parseBool(getEnv("PDF_MINIO_SECURE", "true")),
		PathStyle:   parseBool(getEnv("PDF_S3_PATH_STYLE", "false")),
	}

	cfg.Redis = RedisConfig{URL: getEnv("REDIS_URL", "")}

	return cfg
}

// Validate reports configuration that cannot start the service.
func (c Config) Validate() error {
	switch c.Convert.Engine {
	case "mupdf", "pdfium":
	default:
		return fmt.Errorf("PDF_ENGINE: unknown engine %q", c.Convert.Engine)
	}
	switch c.Storage.Backend {
	case "memory":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("PDF_BUCKET is required for s3 storage")
		}
		if c.Storage.Endpoint == "" && c.Storage.AccountID == "" {
			return fmt.Errorf("PDF_ACCOUNT_ID or PDF_ENDPOINT is required for s3 storage")
		}
	case "minio":
		if c.Storage.Bucket == "" || c.Storage.Endpoint == "" {
			return fmt.Errorf("PDF_BUCKET and PDF_ENDPOINT are required for minio storage")
		}
	default:
		return fmt.Errorf("PDF_STORAGE: unknown backend %q", c.Storage.Backend)
	}
	if c.Server.BodyLimitBytes <= 0 {
		return fmt.Errorf("PDF_BODY_LIMIT must be positive")
	}
	return nil
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}

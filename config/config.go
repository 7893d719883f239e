// Package config loads server settings from the environment, optionally
// layered over a YAML file. Environment variables always win.
package config

import (
	"errors"
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

// OwnershipPolicy decides what a non-owner sees when touching another
// user's audit.
type OwnershipPolicy string

const (
	// PolicySplit answers 403 on reads and 404 on updates and deletes.
	PolicySplit   OwnershipPolicy = "split"
	PolicyConceal OwnershipPolicy = "conceal"
	PolicyReveal  OwnershipPolicy = "reveal"
)

type Config struct {
	Port int
	Env  string

	MongoURI      string
	MongoDatabase string

	JWTSecret     string
	JWTExpiration time.Duration

	OwnershipPolicy OwnershipPolicy
	UploadMaxBytes  int64

	BlobBackend   string
	BlobLocalDir  string
	PublicBaseURL string

	S3Bucket          string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicURL       string

	CORSOrigins        []string
	LoginRatePerMinute int

	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	TracingSampleRate float64
}

var (
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required in production")
	ErrInvalidOwnershipPolicy = errors.New("OWNERSHIP_POLICY must be split, conceal or reveal")
	ErrInvalidBlobBackend     = errors.New("BLOB_BACKEND must be local or s3")
	ErrMissingS3Bucket        = errors.New("S3_BUCKET is required when BLOB_BACKEND=s3")
	ErrInvalidSampleRate      = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
)

const (
	DefaultPort               = 8080
	DefaultEnv                = "development"
	DefaultMongoURI           = "mongodb://localhost:27017"
	DefaultMongoDatabase      = "auditmgt"
	DefaultJWTSecret          = "secret"
	DefaultJWTExpiration      = 24 * time.Hour
	DefaultUploadMaxBytes     = 10 * 1024 * 1024
	DefaultBlobBackend        = "local"
	DefaultBlobLocalDir       = "uploads"
	DefaultLoginRatePerMinute = 10
	DefaultTracingExporter    = "otlp-http"
	DefaultTracingSampleRate  = 1.0
)

// Load reads .env (if present), the optional YAML file at path and the
// process environment. It returns every problem it finds, not just the first.
func Load(path string) (*Config, []error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("load config file %s: %w", path, err)}
		}
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	port, err := envInt("PORT", k.Int("port"), DefaultPort)
	collect(err)
	maxBytes, err := envInt("UPLOAD_MAX_BYTES", k.Int("upload_max_bytes"), DefaultUploadMaxBytes)
	collect(err)
	loginRate, err := envInt("LOGIN_RATE_PER_MINUTE", k.Int("login_rate_per_minute"), DefaultLoginRatePerMinute)
	collect(err)
	expiration, err := ParseExpiration(envString([]string{"JWT_EXPIRE"}, k.String("jwt_expire"), ""))
	collect(err)
	sampleRate, err := envFloat("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	collect(err)

	cfg := &Config{
		Port:               port,
		Env:                envString([]string{"APP_ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		MongoURI:           envString([]string{"MONGO_URI", "MONGODB_URI"}, k.String("mongo_uri"), DefaultMongoURI),
		MongoDatabase:      envString([]string{"MONGO_DATABASE"}, k.String("mongo_database"), DefaultMongoDatabase),
		JWTSecret:          envString([]string{"JWT_SECRET"}, k.String("jwt_secret"), ""),
		JWTExpiration:      expiration,
		OwnershipPolicy:    OwnershipPolicy(strings.ToLower(envString([]string{"OWNERSHIP_POLICY"}, k.String("ownership_policy"), string(PolicySplit)))),
		UploadMaxBytes:     int64(maxBytes),
		BlobBackend:        strings.ToLower(envString([]string{"BLOB_BACKEND"}, k.String("blob_backend"), DefaultBlobBackend)),
		BlobLocalDir:       envString([]string{"BLOB_LOCAL_DIR"}, k.String("blob_local_dir"), DefaultBlobLocalDir),
		PublicBaseURL:      envString([]string{"PUBLIC_BASE_URL"}, k.String("public_base_url"), ""),
		S3Bucket:           envString([]string{"S3_BUCKET"}, k.String("s3_bucket"), ""),
		S3Endpoint:         envString([]string{"S3_ENDPOINT"}, k.String("s3_endpoint"), ""),
		S3Region:           envString([]string{"S3_REGION"}, k.String("s3_region"), "auto"),
		S3AccessKeyID:      envString([]string{"S3_ACCESS_KEY_ID"}, k.String("s3_access_key_id"), ""),
		S3SecretAccessKey:  envString([]string{"S3_SECRET_ACCESS_KEY"}, k.String("s3_secret_access_key"), ""),
		S3PublicURL:        envString([]string{"S3_PUBLIC_URL"}, k.String("s3_public_url"), ""),
		CORSOrigins:        splitList(envString([]string{"CORS_ORIGINS"}, k.String("cors_origins"), "*")),
		LoginRatePerMinute: loginRate,
		TracingEnabled:     envBool("TRACING_ENABLED", k.Bool("tracing_enabled")),
		TracingExporter:    envString([]string{"TRACING_EXPORTER"}, k.String("tracing_exporter"), DefaultTracingExporter),
		OTLPEndpoint:       envString([]string{"OTLP_ENDPOINT"}, k.String("otlp_endpoint"), ""),
		TracingSampleRate:  sampleRate,
	}

	errs = append(errs, cfg.Validate()...)
	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		cfg.JWTSecret = DefaultJWTSecret
	}
	return cfg, errs
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) Validate() []error {
	var errs []error
	if c.JWTSecret == "" && c.IsProduction() {
		errs = append(errs, ErrMissingJWTSecret)
	}
	switch c.OwnershipPolicy {
	case PolicySplit, PolicyConceal, PolicyReveal:
	default:
		errs = append(errs, ErrInvalidOwnershipPolicy)
	}
	switch c.BlobBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, ErrMissingS3Bucket)
		}
	default:
		errs = append(errs, ErrInvalidBlobBackend)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	return errs
}

// ParseExpiration accepts a Go duration or a whole number of days ("7d").
// Empty means the 24h default.
func ParseExpiration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultJWTExpiration, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return DefaultJWTExpiration, fmt.Errorf("invalid JWT_EXPIRE %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return DefaultJWTExpiration, fmt.Errorf("invalid JWT_EXPIRE %q", s)
	}
	return d, nil
}

// LogSummary is safe to log; secrets are masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":             strconv.Itoa(c.Port),
		"env":              c.Env,
		"mongo_uri":        maskURI(c.MongoURI),
		"mongo_database":   c.MongoDatabase,
		"jwt_secret":       maskSecret(c.JWTSecret),
		"jwt_expire":       c.JWTExpiration.String(),
		"ownership_policy": string(c.OwnershipPolicy),
		"blob_backend":     c.BlobBackend,
		"s3_bucket":        c.S3Bucket,
		"s3_endpoint":      c.S3Endpoint,
		"s3_access_key_id": maskSecret(c.S3AccessKeyID),
		"tracing_enabled":  strconv.FormatBool(c.TracingEnabled),
	}
}

func envString(keys []string, koanfVal, def string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return def
}

func envInt(key string, koanfVal, def int) (int, error) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return def, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return def, nil
}

func envFloat(key string, k *koanf.Koanf, koanfKey string, def float64) (float64, error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return def, fmt.Errorf("%s must be a valid number: %w", key, err)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return def, nil
}

func envBool(key string, koanfVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return koanfVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

func maskURI(s string) string {
	scheme := strings.Index(s, "://")
	if scheme < 0 {
		return s
	}
	rest := s[scheme+3:]
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return s
	}
	colon := strings.Index(rest[:at], ":")
	if colon < 0 {
		return s
	}
	return s[:scheme+3] + rest[:colon] + ":****" + rest[at:]
}

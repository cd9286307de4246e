package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"qrelay/internal/constants"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Session SessionConfig `json:"session"`
	Storage StorageConfig `json:"storage"`
	Limits  LimitsConfig  `json:"limits"`
	Redis   RedisConfig   `json:"redis"`
	Log     LogConfig     `json:"log"`
}

type ServerConfig struct {
	Host      string `json:"host" validate:"required"`
	Port      string `json:"port" validate:"required,numeric"`
	PublicURL string `json:"public_url" validate:"omitempty,url"`
	EnableTLS bool   `json:"enable_tls"`
	CertFile  string `json:"cert_file" validate:"required_if=EnableTLS true"`
	KeyFile   string `json:"key_file" validate:"required_if=EnableTLS true"`
}

type SessionConfig struct {
	Timeout       time.Duration `json:"timeout" validate:"gt=0"`
	Liveness      time.Duration `json:"liveness" validate:"gt=0,ltfield=Timeout"`
	SweepInterval time.Duration `json:"sweep_interval" validate:"gt=0"`
}

type StorageConfig struct {
	UploadDir     string `json:"upload_dir" validate:"required"`
	MaxUploadSize int64  `json:"max_upload_size" validate:"gt=0"`
	MinFreeDisk   int64  `json:"min_free_disk" validate:"gte=0"`
}

type LimitsConfig struct {
	CreatePerMinute int `json:"create_per_minute" validate:"gte=0"`
	UploadsPerIP    int `json:"uploads_per_ip" validate:"gte=0"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port" validate:"omitempty,numeric"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LogConfig struct {
	Level  string `json:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `json:"pretty"`
}

// Enabled reports whether a Redis host was configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Load reads configuration from the environment, after merging an optional
// .env file, and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("QRELAY_HOST", constants.DefaultHost),
			Port:      getEnv("PORT", constants.DefaultPort),
			PublicURL: strings.TrimSuffix(getEnv("QRELAY_PUBLIC_URL", ""), "/"),
			EnableTLS: getBoolEnv("QRELAY_ENABLE_TLS", false),
			CertFile:  getEnv("QRELAY_CERT_FILE", ""),
			KeyFile:   getEnv("QRELAY_KEY_FILE", ""),
		},
		Session: SessionConfig{
			Timeout:       getDurationEnv("QRELAY_SESSION_TIMEOUT", constants.DefaultSessionTimeout),
			Liveness:      getDurationEnv("QRELAY_LIVENESS_TIMEOUT", constants.DefaultLivenessTimeout),
			SweepInterval: getDurationEnv("QRELAY_SWEEP_INTERVAL", constants.DefaultSweepInterval),
		},
		Storage: StorageConfig{
			UploadDir:     getEnv("QRELAY_UPLOAD_DIR", filepath.Join(os.TempDir(), "qrelay")),
			MaxUploadSize: getBytesEnv("QRELAY_MAX_UPLOAD_SIZE", constants.DefaultMaxUploadSize),
			MinFreeDisk:   getBytesEnv("QRELAY_MIN_FREE_DISK", constants.DefaultMinFreeDisk),
		},
		Limits: LimitsConfig{
			CreatePerMinute: getIntEnv("QRELAY_CREATE_RATE_LIMIT", constants.DefaultCreateRateLimit),
			UploadsPerIP:    getIntEnv("QRELAY_MAX_UPLOADS_PER_IP", constants.MaxUploadsPerIP),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Pretty: getBoolEnv("LOG_PRETTY", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints, including Liveness < Timeout.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return formatValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
	return v
}

func formatValidationErrors(errs validator.ValidationErrors) error {
	var messages []string
	for _, err := range errs {
		field := strings.TrimPrefix(err.Namespace(), "Config.")
		var message string
		switch err.Tag() {
		case "required", "required_if":
			message = fmt.Sprintf("%s is required", field)
		case "gt":
			message = fmt.Sprintf("%s must be positive", field)
		case "gte":
			message = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "ltfield":
			message = fmt.Sprintf("%s must be shorter than %s", field, strings.ToLower(err.Param()))
		case "url":
			message = fmt.Sprintf("%s must be a valid URL", field)
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		default:
			message = fmt.Sprintf("%s failed validation for %s", field, err.Tag())
		}
		messages = append(messages, message)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getBytesEnv accepts a plain byte count or a KiB/MiB/GiB suffix.
func getBytesEnv(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if n, ok := parseBytes(value); ok {
		return n
	}
	return defaultValue
}

func parseBytes(s string) (int64, bool) {
	units := []struct {
		suffix string
		mult   int64
	}{
		{"GiB", 1 << 30},
		{"MiB", 1 << 20},
		{"KiB", 1 << 10},
		{"B", 1},
	}
	mult := int64(1)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n * mult, true
}

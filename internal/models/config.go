package models

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	DefaultServerAddr      = ":5000"
	DefaultDatabaseURL     = "inventory.db"
	DefaultStorageRoot     = "./uploads"
	DefaultThumbnailSubdir = "thumbnails"
	DefaultTempSubdir      = "tmp"
	DefaultPublicPrefix    = "/uploads"
	DefaultMaxFileSize     = 5 << 20
	DefaultMaxFiles        = 10
	DefaultKafkaTopic      = "inventory.images"
)

type Config struct {
	ServerAddr      string   `yaml:"server_addr"`
	DatabaseURL     string   `yaml:"database_url"`
	StorageRoot     string   `yaml:"storage_root"`
	ThumbnailSubdir string   `yaml:"thumbnail_subdir"`
	TempSubdir      string   `yaml:"temp_subdir"`
	PublicPrefix    string   `yaml:"public_prefix"`
	MaxFileSize     int64    `yaml:"max_file_size"`
	MaxFiles        int      `yaml:"max_files"`
	KafkaBroker     string   `yaml:"kafka_broker"`
	KafkaTopic      string   `yaml:"kafka_topic"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
	CORSOrigins     []string `yaml:"cors_allowed_origins"`
}

// LoadConfig reads path (optional), then .env, then the process environment.
// Later sources win.
func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("%s: %w", op, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("%s: parse %s: %w", op, path, err)
			}
		}
	}

	// .env is a local development convenience; absence is fine.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ServerAddr, "SERVER_ADDR")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.StorageRoot, "STORAGE_ROOT")
	setString(&c.ThumbnailSubdir, "THUMBNAIL_SUBDIR")
	setString(&c.TempSubdir, "TEMP_SUBDIR")
	setString(&c.PublicPrefix, "PUBLIC_PREFIX")
	setString(&c.KafkaBroker, "KAFKA_BROKER")
	setString(&c.KafkaTopic, "KAFKA_TOPIC")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")

	if v := strings.TrimSpace(os.Getenv("MAX_FILE_SIZE")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_FILE_SIZE value %q: %w", v, err)
		}
		c.MaxFileSize = n
	}
	if v := strings.TrimSpace(os.Getenv("MAX_FILES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_FILES value %q: %w", v, err)
		}
		c.MaxFiles = n
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSOrigins = c.CORSOrigins[:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = DefaultServerAddr
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = DefaultDatabaseURL
	}
	if c.StorageRoot == "" {
		c.StorageRoot = DefaultStorageRoot
	}
	if c.ThumbnailSubdir == "" {
		c.ThumbnailSubdir = DefaultThumbnailSubdir
	}
	if c.TempSubdir == "" {
		c.TempSubdir = DefaultTempSubdir
	}
	if c.PublicPrefix == "" {
		c.PublicPrefix = DefaultPublicPrefix
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxFiles == 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	if c.KafkaTopic == "" {
		c.KafkaTopic = DefaultKafkaTopic
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.StorageRoot) == "" {
		return fmt.Errorf("storage_root must not be empty")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be > 0")
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("max_files must be > 0")
	}
	if c.ThumbnailSubdir == c.TempSubdir {
		return fmt.Errorf("thumbnail_subdir and temp_subdir must differ")
	}
	if !strings.HasPrefix(c.PublicPrefix, "/") {
		return fmt.Errorf("public_prefix must start with /")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be one of: console, json")
	}
	return nil
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

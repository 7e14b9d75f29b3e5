package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDBConnection    = "DB_CONNECTION"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiry       = "JWT_EXPIRY"
	EnvStorageRoot     = "STORAGE_ROOT"
	EnvDefaultUsername = "DEFAULT_USER_USERNAME"
	EnvDefaultPassword = "DEFAULT_USER_PASSWORD"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ServerConfig holds the HTTP listen settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// defaultPort is used when the config omits the listen port.
const defaultPort = 8000

// LoadServerConfig loads listen settings from the YAML config file.
func LoadServerConfig(configPath string) ServerConfig {
	// fileConfig maps the YAML fields needed for the listener.
	type fileConfig struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	}

	result := ServerConfig{Port: defaultPort}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result.Host = strings.TrimSpace(cfg.Host)
			if cfg.Port > 0 {
				result.Port = cfg.Port
			}
		}
	}
	return result
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// S3Config holds S3 byte-storage settings.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	KeyPrefix string `yaml:"key-prefix"`
}

// StorageConfig selects and parameterizes the byte-storage backend.
type StorageConfig struct {
	Backend string   `yaml:"backend"` // "local" (default) or "s3".
	Root    string   `yaml:"root"`    // Local backend root directory.
	S3      S3Config `yaml:"s3"`
}

// SeedConfig holds the optional bootstrap user credentials.
type SeedConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * time.Minute

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// defaultStorageRoot is used when the config omits the local storage root.
const defaultStorageRoot = "./storage"

// LoadStorageConfig loads byte-storage settings from the YAML config file.
func LoadStorageConfig(configPath string) (StorageConfig, error) {
	// fileConfig maps the YAML fields needed for storage settings.
	type fileConfig struct {
		Storage StorageConfig `yaml:"storage"`
	}

	result := StorageConfig{Backend: "local", Root: defaultStorageRoot}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Storage
		}
	}

	if root := strings.TrimSpace(os.Getenv(EnvStorageRoot)); root != "" {
		result.Root = root
	}

	result.Backend = strings.ToLower(strings.TrimSpace(result.Backend))
	if result.Backend == "" {
		result.Backend = "local"
	}
	if strings.TrimSpace(result.Root) == "" {
		result.Root = defaultStorageRoot
	}
	return result, nil
}

// LoadSeedConfig loads the optional default-user credentials. Environment
// variables win over the config file; an empty result disables seeding.
func LoadSeedConfig(configPath string) SeedConfig {
	// fileConfig maps the YAML fields needed for seeding.
	type fileConfig struct {
		DefaultUser SeedConfig `yaml:"default-user"`
	}

	var result SeedConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.DefaultUser
		}
	}

	if username := strings.TrimSpace(os.Getenv(EnvDefaultUsername)); username != "" {
		result.Username = username
	}
	if password := strings.TrimSpace(os.Getenv(EnvDefaultPassword)); password != "" {
		result.Password = password
	}
	return result
}

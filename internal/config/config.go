package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"CoachChat/internal/backend"
	"CoachChat/internal/kv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// Config holds application configuration
type Config struct {
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	TokenFile    string        `yaml:"token_file"`
	TokenCommand string        `yaml:"token_command"` // e.g. "gcloud auth print-identity-token"
	DataDir      string        `yaml:"data_dir"`
	DBDriver     string        `yaml:"db_driver"` // sqlite (pure Go) or sqlite3 (cgo)
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	Telemetry    bool          `yaml:"telemetry"`
	Debug        bool          `yaml:"debug"`

	// Ephemeral keeps all local state in memory
	Ephemeral bool `yaml:"-"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		BaseURL:   backend.DefaultBaseURL,
		DataDir:   defaultDataDir(),
		DBDriver:  kv.DriverPure,
		Telemetry: true,
	}
}

// Load reads the configuration and validates it
func Load(path, dataDir string) (*Config, error) {
	cfg, err := Read(path, dataDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Read builds the configuration from defaults, the YAML file and the
// environment (including a .env file), in that order. path names the YAML
// file; when empty the file in the data directory is used if it exists.
// A non-empty dataDir replaces COACH_DATA_DIR and the file's data_dir.
// The result is not validated so callers can apply overrides first.
func Read(path, dataDir string) (*Config, error) {
	cfg := Default()

	// .env is optional; it only fills variables the environment does not set
	_ = godotenv.Load()
	cfg.DataDir = getEnv("COACH_DATA_DIR", cfg.DataDir)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = FilePath(c.DataDir)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.BaseURL = getEnv("COACH_BASE_URL", c.BaseURL)
	c.Token = getEnv("COACH_TOKEN", c.Token)
	c.TokenFile = getEnv("COACH_TOKEN_FILE", c.TokenFile)
	c.TokenCommand = getEnv("COACH_TOKEN_COMMAND", c.TokenCommand)
	c.DataDir = getEnv("COACH_DATA_DIR", c.DataDir)
	c.DBDriver = getEnv("COACH_DB_DRIVER", c.DBDriver)
	c.HTTPTimeout = getEnvDuration("COACH_HTTP_TIMEOUT", c.HTTPTimeout)
	c.Telemetry = getEnvBool("COACH_TELEMETRY", c.Telemetry)
	c.Debug = getEnvBool("COACH_DEBUG", c.Debug)
}

// Validate checks that all required configuration fields are set
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must start with http:// or https://")
	}
	if c.DataDir == "" && !c.Ephemeral {
		return fmt.Errorf("data directory cannot be empty")
	}
	if c.DBDriver != kv.DriverPure && c.DBDriver != kv.DriverCGO {
		return fmt.Errorf("unsupported db driver %q (supported: %s, %s)", c.DBDriver, kv.DriverPure, kv.DriverCGO)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http timeout cannot be negative")
	}
	return nil
}

// FilePath is the config file location inside a data directory
func FilePath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// DBPath is the location of the local database
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "coach.db")
}

// LogDir is where log, trace and metric files are written
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coach"
	}
	return filepath.Join(home, ".coach")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

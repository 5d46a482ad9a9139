// Package config loads and validates Loom server configuration from
// loom.json or loom.yaml, with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loomui/loom/internal/errors"
)

const (
	// JSONFileName is the preferred configuration file name.
	JSONFileName = "loom.json"

	// YAMLFileName is the alternative configuration file name, consulted
	// when loom.json does not exist.
	YAMLFileName = "loom.yaml"

	// DefaultHost is the default listen host.
	DefaultHost = "localhost"

	// DefaultPort is the default listen port.
	DefaultPort = 8080
)

// Duration is a time.Duration that marshals as a string ("30s", "2m")
// in both JSON and YAML.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete loom.json / loom.yaml schema.
type Config struct {
	// Name is the application name, used in logs.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the listen host.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the listen port.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// AllowedOrigins restricts websocket upgrades to these Origin values.
	// Empty means same-host only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`

	// Session configures live session limits and resume behavior.
	Session SessionConfig `json:"session,omitempty" yaml:"session,omitempty"`

	// Store configures the session snapshot store.
	Store StoreConfig `json:"store,omitempty" yaml:"store,omitempty"`

	// Log configures structured logging.
	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`

	// configPath is where the config was loaded from.
	configPath string
}

// SessionConfig configures live session limits and timing.
type SessionConfig struct {
	// MaxSessions caps concurrent live sessions. 0 means the default.
	MaxSessions int `json:"maxSessions,omitempty" yaml:"maxSessions,omitempty"`

	// MaxRetainedBatches caps unacknowledged patch batches kept per
	// session for resume replay.
	MaxRetainedBatches int `json:"maxRetainedBatches,omitempty" yaml:"maxRetainedBatches,omitempty"`

	// ResumeWindow is how long a detached session stays resumable.
	ResumeWindow Duration `json:"resumeWindow,omitempty" yaml:"resumeWindow,omitempty"`

	// ReadTimeout is the per-frame websocket read deadline.
	ReadTimeout Duration `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`

	// WriteTimeout is the per-frame websocket write deadline.
	WriteTimeout Duration `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`

	// PingInterval is how often the server pings idle connections.
	PingInterval Duration `json:"pingInterval,omitempty" yaml:"pingInterval,omitempty"`
}

// Store backend names accepted in StoreConfig.Type.
const (
	StoreMemory = "memory"
	StoreSQL    = "sql"
	StoreS3     = "s3"
)

// StoreConfig selects and configures the session snapshot store.
type StoreConfig struct {
	// Type is one of "memory", "sql" or "s3". Empty means "memory".
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Driver is the database/sql driver name for the sql store.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`

	// DSN is the database connection string for the sql store.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	// Bucket is the S3 bucket name for the s3 store.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	// Prefix is the S3 key prefix for the s3 store.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Region is the AWS region for the s3 store.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn" or "error".
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New returns a Config populated with defaults.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads loom.json from dir, falling back to loom.yaml, and applies
// environment overrides.
func Load(dir string) (*Config, error) {
	jsonPath := filepath.Join(dir, JSONFileName)
	if _, err := os.Stat(jsonPath); err == nil {
		return LoadFile(jsonPath)
	}
	yamlPath := filepath.Join(dir, YAMLFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return LoadFile(yamlPath)
	}
	return nil, errors.New("C001").
		WithSuggestion("Create " + JSONFileName + " or " + YAMLFileName + " in " + dir + ", or pass --config")
}

// LoadFile reads a specific config file, choosing the parser by
// extension, then applies env overrides, defaults, and validation.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("C001").
				WithSuggestion("Check the path: " + path)
		}
		return nil, errors.New("C002").Wrap(err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("C002").
			WithDetail("%s", "Failed to parse "+filepath.Base(path)+": "+err.Error()).
			WithSuggestion("Check the file for syntax errors")
	}

	cfg.configPath = path
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back to the path it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return c.SaveTo(JSONFileName)
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the config to path, choosing the format by extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("C002").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("C002").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path the config was loaded from, or "" for a fresh
// config.
func (c *Config) Path() string { return c.configPath }

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

// Address returns the host:port listen address.
func (c *Config) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// applyEnv overrides file values with LOOM_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("LOOM_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("LOOM_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("LOOM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOOM_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("LOOM_S3_BUCKET"); v != "" {
		c.Store.Bucket = v
	}
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreMemory
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Session.ResumeWindow == 0 {
		c.Session.ResumeWindow = Duration(2 * time.Minute)
	}
}

// Validate checks the config for contradictions that unmarshal cannot
// catch. Returns a C002 error describing the first problem found.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("C002").
			WithDetail("%s", "port must be between 1 and 65535, got "+strconv.Itoa(c.Port))
	}
	switch c.Store.Type {
	case StoreMemory:
	case StoreSQL:
		if c.Store.Driver == "" || c.Store.DSN == "" {
			return errors.New("C002").
				WithDetail("store.type \"sql\" requires store.driver and store.dsn")
		}
	case StoreS3:
		if c.Store.Bucket == "" {
			return errors.New("C002").
				WithDetail("store.type \"s3\" requires store.bucket")
		}
	default:
		return errors.New("C002").
			WithDetail("%s", "unknown store.type "+strconv.Quote(c.Store.Type)).
			WithSuggestion(`Use "memory", "sql" or "s3"`)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("C002").
			WithDetail("%s", "unknown log.level "+strconv.Quote(c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("C002").
			WithDetail("%s", "unknown log.format "+strconv.Quote(c.Log.Format))
	}
	return nil
}

// Exists reports whether a config file exists in dir.
func Exists(dir string) bool {
	for _, name := range []string{JSONFileName, YAMLFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up from startDir looking for a config file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("C001").
				WithSuggestion("Run from inside a project directory, or pass --config")
		}
		dir = parent
	}
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Env var names used as overrides
const (
	EnvConfigFile     = "ROYAL_CONFIG"
	EnvRequireStart   = "ROYAL_REQUIRE_START"
	EnvRequireSpeaker = "ROYAL_REQUIRE_SPEAKER"
	EnvCharset        = "ROYAL_CHARSET"
	EnvJoinSeparator  = "ROYAL_JOIN_SEPARATOR"
	EnvOutputFormat   = "ROYAL_OUTPUT"
	EnvLogLevel       = "ROYAL_LOG_LEVEL"
	EnvLogFormat      = "ROYAL_LOG_FORMAT"
	EnvLogFile        = "ROYAL_LOG_FILE"
	EnvPort           = "ROYAL_PORT"
	EnvMaxBodyBytes   = "ROYAL_MAX_BODY_BYTES"
	EnvDatabasePath   = "ROYAL_DB"
)

const (
	DefaultEnvFile    = ".env"
	DefaultConfigFile = "royal.yaml"
)

// OutputFormats lists the accepted values of Output.Format
var OutputFormats = []string{"text", "json", "yaml"}

// ParserConfig controls parser strictness
type ParserConfig struct {
	RequireStart        bool `yaml:"require_start" json:"require_start"`               // Reject messages without an [s] marker
	RequireSpeakerToken bool `yaml:"require_speaker_token" json:"require_speaker_token"` // Reject [msg ID] headers without a third token
}

// BatchConfig controls how multi-message scripts are split
type BatchConfig struct {
	Charset       string `yaml:"charset" json:"charset"`               // IANA charset of input scripts
	JoinSeparator string `yaml:"join_separator" json:"join_separator"` // Inserted between lines of one message
}

// OutputConfig controls rendering of parsed messages
type OutputConfig struct {
	Format string `yaml:"format" json:"format"` // text, json or yaml
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// ServerConfig controls the HTTP parse service
type ServerConfig struct {
	Port         string `yaml:"port" json:"port"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// StoreConfig controls SQLite persistence of parsed messages
type StoreConfig struct {
	Path string `yaml:"path" json:"path"` // Empty disables persistence
}

// Config represents the complete application configuration
type Config struct {
	Parser  ParserConfig  `yaml:"parser" json:"parser"`
	Batch   BatchConfig   `yaml:"batch" json:"batch"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Store   StoreConfig   `yaml:"store" json:"store"`
}

// GetDefaultConfig returns the default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Parser:  ParserConfig{RequireStart: false, RequireSpeakerToken: false},
		Batch:   BatchConfig{Charset: "utf-8", JoinSeparator: ""},
		Output:  OutputConfig{Format: "text"},
		Logging: LoggingConfig{Level: "info", Format: "text", File: ""},
		Server:  ServerConfig{Port: "8787", MaxBodyBytes: 1 << 20},
		Store:   StoreConfig{Path: ""},
	}
}

// Load loads configuration from the working directory: an optional .env file,
// an optional YAML file (royal.yaml, or the path named by ROYAL_CONFIG), then
// environment variables. Later sources win.
func Load() (*Config, error) {
	configFile := DefaultConfigFile
	if path := os.Getenv(EnvConfigFile); path != "" {
		configFile = path
	}
	return LoadFrom(DefaultEnvFile, configFile)
}

// LoadFrom loads configuration from the given .env and YAML files. Missing files
// are skipped; malformed ones are errors.
func LoadFrom(envFile, configFile string) (*Config, error) {
	cfg := GetDefaultConfig()

	envVars, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}

	// ROYAL_CONFIG may also come from the .env file
	if path, ok := envVars[EnvConfigFile]; ok && os.Getenv(EnvConfigFile) == "" && path != "" {
		configFile = path
	}

	if err := cfg.loadYAML(configFile); err != nil {
		return nil, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := envVars[key]
		return value, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	envVars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return envVars, nil
}

func (c *Config) loadYAML(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var err error
	setBool := func(key string, target *bool) {
		value, ok := lookup(key)
		if !ok || value == "" || err != nil {
			return
		}
		parsed, parseErr := strconv.ParseBool(value)
		if parseErr != nil {
			err = fmt.Errorf("%s must be a boolean, got %q", key, value)
			return
		}
		*target = parsed
	}
	setString := func(key string, target *string) {
		if value, ok := lookup(key); ok && value != "" {
			*target = strings.TrimSpace(value)
		}
	}

	setBool(EnvRequireStart, &c.Parser.RequireStart)
	setBool(EnvRequireSpeaker, &c.Parser.RequireSpeakerToken)
	setString(EnvCharset, &c.Batch.Charset)
	// the separator is taken verbatim so a single space survives
	if value, ok := lookup(EnvJoinSeparator); ok {
		c.Batch.JoinSeparator = value
	}
	setString(EnvOutputFormat, &c.Output.Format)
	setString(EnvLogLevel, &c.Logging.Level)
	setString(EnvLogFormat, &c.Logging.Format)
	setString(EnvLogFile, &c.Logging.File)
	setString(EnvPort, &c.Server.Port)
	setString(EnvDatabasePath, &c.Store.Path)

	if value, ok := lookup(EnvMaxBodyBytes); ok && value != "" && err == nil {
		size, parseErr := strconv.ParseInt(value, 10, 64)
		if parseErr != nil {
			return fmt.Errorf("%s must be an integer, got %q", EnvMaxBodyBytes, value)
		}
		c.Server.MaxBodyBytes = size
	}
	return err
}

// Validate checks value ranges that would otherwise fail late
func (c *Config) Validate() error {
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if !c.IsOutputFormat(c.Output.Format) {
		return fmt.Errorf("output format must be one of %s, got %q", strings.Join(OutputFormats, ", "), c.Output.Format)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if strings.TrimSpace(c.Batch.Charset) == "" {
		c.Batch.Charset = "utf-8"
	}
	return nil
}

// IsOutputFormat reports whether format is a supported output format
func (c *Config) IsOutputFormat(format string) bool {
	for _, f := range OutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// IsStrictStartEnabled returns whether messages must carry an [s] marker
func (c *Config) IsStrictStartEnabled() bool {
	return c.Parser.RequireStart
}

// IsStrictHeaderEnabled returns whether headers must carry three tokens
func (c *Config) IsStrictHeaderEnabled() bool {
	return c.Parser.RequireSpeakerToken
}

// IsStoreEnabled returns whether parsed messages are persisted
func (c *Config) IsStoreEnabled() bool {
	return strings.TrimSpace(c.Store.Path) != ""
}

// GetParserConfiguration returns both strictness switches
func (c *Config) GetParserConfiguration() (requireStart, requireSpeaker bool) {
	return c.Parser.RequireStart, c.Parser.RequireSpeakerToken
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/agentsig/internal/signature"
	"github.com/jeranaias/agentsig/internal/util"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agentsig configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	// DefaultModel seeds the display name until the host reports a model.
	DefaultModel string `toml:"default_model" json:"default_model" yaml:"default_model"`

	Signature SignatureConfig `toml:"signature" json:"signature" yaml:"signature"`
	Tools     ToolsConfig     `toml:"tools" json:"tools" yaml:"tools"`
	Server    ServerConfig    `toml:"server" json:"server" yaml:"server"`
	Ledger    LedgerConfig    `toml:"ledger" json:"ledger" yaml:"ledger"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
}

// SignatureConfig selects the host named in signatures.
type SignatureConfig struct {
	Glyph    string `toml:"glyph" json:"glyph" yaml:"glyph"`
	HostName string `toml:"host_name" json:"host_name" yaml:"host_name"`
	HostURL  string `toml:"host_url" json:"host_url" yaml:"host_url"`
}

// ToolsConfig extends the targeted tool set and toggles command families.
type ToolsConfig struct {
	// Structured lists extra tool identifiers that carry a "body" argument.
	Structured []string `toml:"structured" json:"structured" yaml:"structured"`

	// Shell lists extra tool identifiers that carry a "command" argument.
	Shell []string `toml:"shell" json:"shell" yaml:"shell"`

	GitCommit bool `toml:"git_commit" json:"git_commit" yaml:"git_commit"`
	GitHub    bool `toml:"gh" json:"gh" yaml:"gh"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Listen string `toml:"listen" json:"listen" yaml:"listen"`

	// Token enables bearer authentication when set.
	Token string `toml:"token" json:"token" yaml:"token"`

	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst" yaml:"burst"`
	MaxBodyBytes      int64   `toml:"max_body_bytes" json:"max_body_bytes" yaml:"max_body_bytes"`
}

// LedgerConfig configures the sqlite rewrite ledger.
type LedgerConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path defaults to ledger.db in the config directory.
	Path string `toml:"path" json:"path" yaml:"path"`

	// MaxEntries bounds the table; zero keeps everything.
	MaxEntries int `toml:"max_entries" json:"max_entries" yaml:"max_entries"`

	// QueueSize is the async writer buffer. Entries are dropped when full.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`
}

// LoggingConfig configures the zap logger. Logs always go to stderr or a
// file, never stdout.
type LoggingConfig struct {
	Level string `toml:"level" json:"level" yaml:"level"`
	JSON  bool   `toml:"json" json:"json" yaml:"json"`
	File  string `toml:"file" json:"file" yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Signature: SignatureConfig{
			Glyph:    signature.DefaultGlyph,
			HostName: signature.DefaultHostName,
			HostURL:  signature.DefaultHostURL,
		},
		Tools: ToolsConfig{
			GitCommit: true,
			GitHub:    true,
		},
		Server: ServerConfig{
			Listen:            "127.0.0.1:4141",
			RequestsPerSecond: 20,
			Burst:             40,
			MaxBodyBytes:      1 << 20,
		},
		Ledger: LedgerConfig{
			Enabled:    true,
			MaxEntries: 10000,
			QueueSize:  256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Codec returns the signature codec described by the config.
func (c *Config) Codec() signature.Codec {
	return signature.New(c.Signature.Glyph, c.Signature.HostName, c.Signature.HostURL)
}

// LedgerPath returns the ledger database path, resolving the default.
func (c *Config) LedgerPath() (string, error) {
	if c.Ledger.Path != "" {
		return expandHome(c.Ledger.Path)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ledger.db"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the agentsig configuration directory. AGENTSIG_HOME
// overrides the default of ~/.agentsig.
func ConfigDir() (string, error) {
	if dir := os.Getenv("AGENTSIG_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".agentsig"), nil
}

// ConfigPaths returns the candidate config files in load order.
func ConfigPaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.json"),
	}, nil
}

// ConfigPathTOML returns the path Save writes to.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// FindConfigFile returns the first existing config file, or "" if none.
func FindConfigFile() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the first config file found, falling back
// to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := FindConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		return LoadFromPath(path)
	}

	cfg := Default()
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file. The format is
// chosen by extension: .json, .yaml/.yml, anything else is TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies env overrides, migration, defaults and validation.
func finish(cfg *Config) error {
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return fmt.Errorf("config migration failed: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadYAML decodes a YAML file over cfg.
func LoadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
// The server token lives in this file.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# agentsig configuration file\n")
	buf.WriteString("# Signs pull requests, issues and commits made by AI agents.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as indented JSON.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveYAML writes the configuration as YAML.
func SaveYAML(cfg *Config, path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration and returns all problems at once as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Signature
	if strings.TrimSpace(c.Signature.Glyph) == "" {
		add("signature.glyph", "must not be empty")
	}
	if strings.TrimSpace(c.Signature.HostName) == "" {
		add("signature.host_name", "must not be empty")
	} else if strings.ContainsAny(c.Signature.HostName, "[]\n") {
		add("signature.host_name", "must not contain brackets or newlines")
	} else if strings.ContainsAny(c.Signature.HostName, "\"\\$`") {
		// Escaping these inside double-quoted commands would hide the marker.
		add("signature.host_name", "must not contain shell quoting characters (\" \\ $ `)")
	}
	if u, err := url.Parse(c.Signature.HostURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("signature.host_url", "invalid URL '%s', must be an absolute http(s) URL", c.Signature.HostURL)
	} else if strings.ContainsAny(c.Signature.HostURL, "() ") {
		add("signature.host_url", "must not contain parentheses or spaces")
	}

	// Tools
	for i, name := range c.Tools.Structured {
		if name == "" || strings.ContainsAny(name, " \t\n") {
			add(fmt.Sprintf("tools.structured[%d]", i), "invalid tool identifier '%s'", name)
		}
	}
	for i, name := range c.Tools.Shell {
		if name == "" || strings.ContainsAny(name, " \t\n") {
			add(fmt.Sprintf("tools.shell[%d]", i), "invalid tool identifier '%s'", name)
		}
	}

	// Server
	if _, port, err := net.SplitHostPort(c.Server.Listen); err != nil {
		add("server.listen", "invalid address '%s': %v", c.Server.Listen, err)
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		add("server.listen", "invalid port '%s'", port)
	}
	if c.Server.RequestsPerSecond < 0 {
		add("server.requests_per_second", "must be >= 0")
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst < 1 {
		add("server.burst", "must be >= 1 when rate limiting is enabled")
	}
	if c.Server.MaxBodyBytes < 1024 {
		add("server.max_body_bytes", "must be at least 1024")
	}

	// Ledger
	if c.Ledger.MaxEntries < 0 {
		add("ledger.max_entries", "must be >= 0")
	}
	if c.Ledger.QueueSize < 1 {
		add("ledger.queue_size", "must be >= 1")
	}

	// Logging
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty fields with defaults. Booleans are left alone.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Signature.Glyph == "" {
		c.Signature.Glyph = d.Signature.Glyph
	}
	if c.Signature.HostName == "" {
		c.Signature.HostName = d.Signature.HostName
	}
	if c.Signature.HostURL == "" {
		c.Signature.HostURL = d.Signature.HostURL
	}
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Ledger.QueueSize == 0 {
		c.Ledger.QueueSize = d.Ledger.QueueSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// Migrate upgrades older config layouts in place.
func (c *Config) Migrate() error {
	switch c.Version {
	case "", "0":
		c.Version = CurrentVersion
		return nil
	case CurrentVersion:
		return nil
	default:
		return fmt.Errorf("unsupported config version %q", c.Version)
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - AGENTSIG_MODEL: overrides default_model
//   - AGENTSIG_HOST_NAME, AGENTSIG_HOST_URL, AGENTSIG_GLYPH: signature fields
//   - AGENTSIG_LOG_LEVEL: overrides logging.level
//   - AGENTSIG_LEDGER: "0" or "false" disables the ledger, a path enables it there
//   - AGENTSIG_LISTEN: overrides server.listen
//   - AGENTSIG_TOKEN: overrides server.token
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AGENTSIG_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("AGENTSIG_HOST_NAME"); v != "" {
		c.Signature.HostName = v
	}
	if v := os.Getenv("AGENTSIG_HOST_URL"); v != "" {
		c.Signature.HostURL = v
	}
	if v := os.Getenv("AGENTSIG_GLYPH"); v != "" {
		c.Signature.Glyph = v
	}
	if v := os.Getenv("AGENTSIG_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTSIG_LEDGER"); v != "" {
		switch strings.ToLower(v) {
		case "0", "false", "off", "no":
			c.Ledger.Enabled = false
		case "1", "true", "on", "yes":
			c.Ledger.Enabled = true
		default:
			c.Ledger.Enabled = true
			c.Ledger.Path = v
		}
	}
	if v := os.Getenv("AGENTSIG_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("AGENTSIG_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// fieldByKey walks dot-separated TOML keys ("server.listen") to a field.
func (c *Config) fieldByKey(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	v := reflect.ValueOf(c).Elem()
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i], "."))
		}
		found := false
		for j := 0; j < v.NumField(); j++ {
			if tomlName(v.Type().Field(j)) == part {
				v = v.Field(j)
				found = true
				break
			}
		}
		if !found {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
	}
	return v, nil
}

func tomlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	return name
}

// Get retrieves a configuration value using dot notation.
func (c *Config) Get(key string) (any, error) {
	field, err := c.fieldByKey(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value from its string form using dot notation.
// List fields take a comma-separated value.
func (c *Config) Set(key, value string) error {
	field, err := c.fieldByKey(key)
	if err != nil {
		return err
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %w", key, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %w", key, err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("%s is a section, not a value", key)
	}
	return nil
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + tomlName(f)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Tools.Structured = append([]string(nil), c.Tools.Structured...)
	clone.Tools.Shell = append([]string(nil), c.Tools.Shell...)
	return &clone
}

// String returns the config as indented JSON with the server token redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Server.Token != "" {
		safe.Server.Token = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access. Load errors fall back to defaults.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between tests.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}

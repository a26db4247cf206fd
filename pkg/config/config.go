// Package config loads and writes the repository configuration file
// (.hgbridge/config.toml). Every key can be overridden from the
// environment as HGBRIDGE_<SECTION>_<KEY>.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "HGBRIDGE"

// Config is the repository configuration.
type Config struct {
	Check     CheckConfig       `toml:"check" mapstructure:"check"`
	Graft     GraftConfig       `toml:"graft" mapstructure:"graft"`
	Log       LogConfig         `toml:"log" mapstructure:"log"`
	Remote    RemoteConfig      `toml:"remote" mapstructure:"remote"`
	Metadata  MetadataConfig    `toml:"metadata" mapstructure:"metadata"`
	Bootstrap BootstrapConfig   `toml:"bootstrap" mapstructure:"bootstrap"`
	Remotes   map[string]string `toml:"remotes,omitempty" mapstructure:"remotes"`
}

// CheckConfig selects the import consistency checks.
type CheckConfig struct {
	// Files re-validates file roots and heads after each import.
	Files bool `toml:"files" mapstructure:"files"`
	// Unbundler keeps a compressed copy of each imported changegroup.
	Unbundler bool `toml:"unbundler" mapstructure:"unbundler"`
}

// GraftConfig enables grafting onto existing native history.
type GraftConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	Refs    []string `toml:"refs,omitempty" mapstructure:"refs"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
}

// RemoteConfig configures metadata fetches.
type RemoteConfig struct {
	Timeout     string `toml:"timeout" mapstructure:"timeout"`
	MaxAttempts int    `toml:"max_attempts" mapstructure:"max_attempts"`
}

// TimeoutDuration parses Timeout, falling back to 30s.
func (r RemoteConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(r.Timeout))
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// MetadataConfig configures the persisted metadata commit.
type MetadataConfig struct {
	// SigningKey is the path of an SSH private key used to sign the
	// metadata commit. Empty disables signing.
	SigningKey string `toml:"signing_key" mapstructure:"signing_key"`
}

// BootstrapConfig configures metadata bootstrap.
type BootstrapConfig struct {
	// AllowedSigners is a file of "principal key" lines. When set, fetched
	// metadata must carry a signature from one of them.
	AllowedSigners string `toml:"allowed_signers" mapstructure:"allowed_signers"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Check:   CheckConfig{Files: true},
		Log:     LogConfig{Level: "info", Format: "console"},
		Remote:  RemoteConfig{Timeout: "30s", MaxAttempts: 4},
		Remotes: make(map[string]string),
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("check.files", d.Check.Files)
	v.SetDefault("check.unbundler", d.Check.Unbundler)
	v.SetDefault("graft.enabled", d.Graft.Enabled)
	v.BindEnv("graft.refs")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.max_attempts", d.Remote.MaxAttempts)
	v.SetDefault("metadata.signing_key", "")
	v.SetDefault("bootstrap.allowed_signers", "")
}

// Load reads path. A missing file yields the defaults, still subject to
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("read config: unmarshal: %w", err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]string)
	}
	return cfg, nil
}

// Write atomically writes cfg to path.
func Write(path string, cfg *Config) error {
	if cfg == nil {
		cfg = Default()
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Key access
// ---------------------------------------------------------------------------

// Keys lists the settable keys.
var Keys = []string{
	"check.files",
	"check.unbundler",
	"graft.enabled",
	"graft.refs",
	"log.level",
	"log.format",
	"remote.timeout",
	"remote.max_attempts",
	"metadata.signing_key",
	"bootstrap.allowed_signers",
}

// Get returns the value of key as text. "remotes.<name>" reads a remote.
func (c *Config) Get(key string) (string, error) {
	if name, ok := strings.CutPrefix(key, "remotes."); ok {
		url, ok := c.Remotes[name]
		if !ok {
			return "", fmt.Errorf("remote %q is not configured", name)
		}
		return url, nil
	}
	switch key {
	case "check.files":
		return strconv.FormatBool(c.Check.Files), nil
	case "check.unbundler":
		return strconv.FormatBool(c.Check.Unbundler), nil
	case "graft.enabled":
		return strconv.FormatBool(c.Graft.Enabled), nil
	case "graft.refs":
		return strings.Join(c.Graft.Refs, ","), nil
	case "log.level":
		return c.Log.Level, nil
	case "log.format":
		return c.Log.Format, nil
	case "remote.timeout":
		return c.Remote.Timeout, nil
	case "remote.max_attempts":
		return strconv.Itoa(c.Remote.MaxAttempts), nil
	case "metadata.signing_key":
		return c.Metadata.SigningKey, nil
	case "bootstrap.allowed_signers":
		return c.Bootstrap.AllowedSigners, nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

// Set parses value into key. "remotes.<name>" sets a remote.
func (c *Config) Set(key, value string) error {
	if name, ok := strings.CutPrefix(key, "remotes."); ok {
		return c.SetRemote(name, value)
	}
	parseBool := func(dst *bool) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		*dst = b
		return nil
	}
	switch key {
	case "check.files":
		return parseBool(&c.Check.Files)
	case "check.unbundler":
		return parseBool(&c.Check.Unbundler)
	case "graft.enabled":
		return parseBool(&c.Graft.Enabled)
	case "graft.refs":
		c.Graft.Refs = nil
		for _, r := range strings.Split(value, ",") {
			if r = strings.TrimSpace(r); r != "" {
				c.Graft.Refs = append(c.Graft.Refs, r)
			}
		}
		return nil
	case "log.level":
		c.Log.Level = value
		return nil
	case "log.format":
		c.Log.Format = value
		return nil
	case "remote.timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		c.Remote.Timeout = value
		return nil
	case "remote.max_attempts":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("config %s: want a positive integer, got %q", key, value)
		}
		c.Remote.MaxAttempts = n
		return nil
	case "metadata.signing_key":
		c.Metadata.SigningKey = value
		return nil
	case "bootstrap.allowed_signers":
		c.Bootstrap.AllowedSigners = value
		return nil
	}
	return fmt.Errorf("unknown config key %q", key)
}

// SetRemote stores or updates a named remote URL.
func (c *Config) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}
	if c.Remotes == nil {
		c.Remotes = make(map[string]string)
	}
	c.Remotes[name] = remoteURL
	return nil
}

// RemoteURL resolves a remote name. A value that is not a configured name
// is returned unchanged, so callers accept names and URLs alike.
func (c *Config) RemoteURL(nameOrURL string) string {
	if url, ok := c.Remotes[strings.TrimSpace(nameOrURL)]; ok && strings.TrimSpace(url) != "" {
		return url
	}
	return nameOrURL
}

// RemoteNames returns the configured remote names, sorted.
func (c *Config) RemoteNames() []string {
	names := make([]string, 0, len(c.Remotes))
	for n := range c.Remotes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

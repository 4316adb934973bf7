// Package config loads the comfyone CLI configuration.
//
// The config file may be YAML, TOML or JSON, chosen by extension. Values from
// the environment override the file, and command-line flags override both.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/inercia/comfyone/client"
	"github.com/inercia/comfyone/internal/appdir"
	"github.com/inercia/comfyone/internal/secrets"
)

// Environment variables read by ApplyEnv and ResolveAPIKey.
const (
	EnvAPIKey   = "COMFYONE_API_KEY"
	EnvDomain   = "COMFYONE_DOMAIN"
	EnvLogLevel = "COMFYONE_LOG_LEVEL"
)

// Duration is a time.Duration written as "5s", "1m30s" and so on.
type Duration time.Duration

// UnmarshalText parses a Go duration string. yaml, toml and json all use it.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText writes the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// RateLimit caps outgoing REST requests. RPS 0 disables it.
type RateLimit struct {
	RPS   float64 `yaml:"rps" toml:"rps" json:"rps"`
	Burst int     `yaml:"burst" toml:"burst" json:"burst"`
}

// LogConfig mirrors the logging flags.
type LogConfig struct {
	Level      string   `yaml:"level" toml:"level" json:"level"`
	File       string   `yaml:"file" toml:"file" json:"file"`
	JSON       bool     `yaml:"json" toml:"json" json:"json"`
	Components []string `yaml:"components" toml:"components" json:"components"`
}

// Hook is a command run when a prompt reaches a terminal state.
type Hook struct {
	Name    string `yaml:"name" toml:"name" json:"name"`
	Command string `yaml:"command" toml:"command" json:"command"`
	// Timeout bounds the command. Zero means one minute.
	Timeout Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// Hooks groups the completion hooks.
type Hooks struct {
	OnFinished Hook `yaml:"on_finished" toml:"on_finished" json:"on_finished"`
	OnError    Hook `yaml:"on_error" toml:"on_error" json:"on_error"`
}

// Config is the complete CLI configuration.
type Config struct {
	// APIKey is the lowest-priority source; see ResolveAPIKey.
	APIKey string `yaml:"api_key" toml:"api_key" json:"api_key"`
	Domain string `yaml:"domain" toml:"domain" json:"domain"`

	// BaseURL and WebsocketURL override the URLs derived from Domain.
	BaseURL      string `yaml:"base_url" toml:"base_url" json:"base_url"`
	WebsocketURL string `yaml:"websocket_url" toml:"websocket_url" json:"websocket_url"`

	// MaxRetries is the number of attempts per call. Unset means the library
	// default; 0 and 1 both mean a single attempt.
	MaxRetries     *int      `yaml:"max_retries,omitempty" toml:"max_retries,omitempty" json:"max_retries,omitempty"`
	TimeoutMS      int       `yaml:"timeout_ms" toml:"timeout_ms" json:"timeout_ms"`
	ReconnectDelay Duration  `yaml:"reconnect_delay" toml:"reconnect_delay" json:"reconnect_delay"`
	DownloadDir    string    `yaml:"download_dir" toml:"download_dir" json:"download_dir"`
	RateLimit      RateLimit `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
	Log            LogConfig `yaml:"log" toml:"log" json:"log"`
	Hooks          Hooks     `yaml:"hooks" toml:"hooks" json:"hooks"`

	// Path is the file the config was loaded from, if any.
	Path string `yaml:"-" toml:"-" json:"-"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{Log: LogConfig{Level: "info"}}
}

// Load reads the config file at path. The format follows the extension;
// unknown extensions are parsed as YAML. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// LoadDefault loads the first config file found in the config directory,
// or returns Default when there is none.
func LoadDefault() (*Config, error) {
	path, err := appdir.ConfigPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Format is a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Parse decodes data in the given format on top of Default.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()

	switch format {
	case FormatTOML:
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty file decodes to io.EOF; keep the defaults.
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides values with COMFYONE_* variables. The API key is not
// read here; ResolveAPIKey owns its precedence.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvDomain)); v != "" {
		c.Domain = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("timeout_ms must not be negative"))
	}
	if c.ReconnectDelay < 0 {
		errs = append(errs, fmt.Errorf("reconnect_delay must not be negative"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate_limit values must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if c.Hooks.OnFinished.Timeout < 0 || c.Hooks.OnError.Timeout < 0 {
		errs = append(errs, fmt.Errorf("hook timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// KeySource says where ResolveAPIKey found the key.
type KeySource string

const (
	KeyFromFlag     KeySource = "flag"
	KeyFromEnv      KeySource = "environment"
	KeyFromKeychain KeySource = "keychain"
	KeyFromFile     KeySource = "config file"
)

// ErrNoAPIKey means no source provided an API key.
var ErrNoAPIKey = errors.New("no API key configured: run 'comfyone login' or set " + EnvAPIKey)

// ResolveAPIKey picks the API key by precedence: flag, environment,
// secret store, config file.
func (c *Config) ResolveAPIKey(flag string, getenv func(string) string, store secrets.Store) (string, KeySource, error) {
	if k := strings.TrimSpace(flag); k != "" {
		return k, KeyFromFlag, nil
	}
	if k := strings.TrimSpace(getenv(EnvAPIKey)); k != "" {
		return k, KeyFromEnv, nil
	}
	if store != nil && store.IsSupported() {
		k, err := secrets.LoadAPIKey(store)
		switch {
		case err == nil && k != "":
			return k, KeyFromKeychain, nil
		case err != nil && !errors.Is(err, secrets.ErrNotFound):
			return "", "", fmt.Errorf("failed to read API key from keychain: %w", err)
		}
	}
	if k := strings.TrimSpace(c.APIKey); k != "" {
		return k, KeyFromFile, nil
	}
	return "", "", ErrNoAPIKey
}

// ClientConfig builds the library configuration. apiKey comes from ResolveAPIKey.
func (c *Config) ClientConfig(apiKey string, logger client.Logger) client.Config {
	cc := client.Config{
		APIKey:         apiKey,
		Domain:         c.Domain,
		BaseURL:        c.BaseURL,
		WebsocketURL:   c.WebsocketURL,
		MaxRetries:     c.MaxRetries,
		Timeout:        time.Duration(c.TimeoutMS) * time.Millisecond,
		ReconnectDelay: time.Duration(c.ReconnectDelay),
		DownloadDir:    c.DownloadDir,
		Logger:         logger,
	}
	if cc.DownloadDir == "" {
		if dir, err := appdir.DownloadsDir(); err == nil {
			cc.DownloadDir = dir
		}
	}
	return cc
}

// ClientOptions returns the options the config implies.
func (c *Config) ClientOptions() []client.Option {
	var opts []client.Option
	if c.RateLimit.RPS > 0 {
		burst := c.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, client.WithRateLimit(c.RateLimit.RPS, burst))
	}
	return opts
}

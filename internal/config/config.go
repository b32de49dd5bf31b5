package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Rules  RulesConfig  `yaml:"rules"`
}

// ServerConfig contains proxy-related configuration
type ServerConfig struct {
	Port int `yaml:"port"`
	// CacheTTL is sent as the max-age of proxied requests that the rules allow to cache
	CacheTTL Duration    `yaml:"cache_ttl"`
	HTTPS    HTTPSConfig `yaml:"https"`
}

// HTTPSConfig controls TLS interception of CONNECT tunnels
type HTTPSConfig struct {
	Intercept  bool   `yaml:"intercept"`
	CACertFile string `yaml:"ca_cert_file"`
	CAKeyFile  string `yaml:"ca_key_file"`
}

// ClientConfig is everything the client factory needs
type ClientConfig struct {
	ConnectTimeout Duration    `yaml:"connect_timeout"`
	ReadTimeout    Duration    `yaml:"read_timeout"`
	CallTimeout    Duration    `yaml:"call_timeout"`
	Cache          CacheConfig `yaml:"cache"`
}

// CacheConfig contains disk cache configuration
type CacheConfig struct {
	Folder string `yaml:"folder"`
	// MaxSize in bytes; 0 disables response storage
	MaxSize int64 `yaml:"max_size"`
}

// RulesConfig contains caching rules configuration
type RulesConfig struct {
	Mode  string      `yaml:"mode"` // "whitelist" or "blacklist"
	Rules []CacheRule `yaml:"rules"`
}

// CacheRule defines a caching rule
type CacheRule struct {
	BaseURI string   `yaml:"base_uri"`
	Methods []string `yaml:"methods"`
}

// Duration is a time.Duration written as a Go duration string ("30s", "2m").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decoding duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultCallTimeout    = 2 * time.Minute
	DefaultCacheFolder    = "network_cache"
	DefaultCacheMaxSize   = 5 * 1024 * 1024
	DefaultCacheTTL       = 10 * time.Minute
	DefaultPort           = 8080
)

// DefaultClientConfig returns the client settings used when a file omits them
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout: Duration(DefaultConnectTimeout),
		ReadTimeout:    Duration(DefaultReadTimeout),
		CallTimeout:    Duration(DefaultCallTimeout),
		Cache: CacheConfig{
			Folder:  DefaultCacheFolder,
			MaxSize: DefaultCacheMaxSize,
		},
	}
}

// Default returns a complete configuration with every default applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     DefaultPort,
			CacheTTL: Duration(DefaultCacheTTL),
		},
		Client: DefaultClientConfig(),
		Rules:  RulesConfig{Mode: "blacklist"},
	}
}

// Load loads configuration from a YAML file. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative, got: %s", c.Server.CacheTTL)
	}

	if c.Server.HTTPS.Intercept && (c.Server.HTTPS.CACertFile == "") != (c.Server.HTTPS.CAKeyFile == "") {
		return fmt.Errorf("https: ca_cert_file and ca_key_file must be set together")
	}

	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}

	if c.Rules.Mode != "whitelist" && c.Rules.Mode != "blacklist" {
		return fmt.Errorf("rules mode must be 'whitelist' or 'blacklist', got: %s", c.Rules.Mode)
	}

	for i, rule := range c.Rules.Rules {
		u, err := url.Parse(rule.BaseURI)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("rule %d: base_uri must be an absolute URL, got: %q", i, rule.BaseURI)
		}
	}

	return nil
}

// Validate checks the client settings
func (c ClientConfig) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got: %s", c.ConnectTimeout)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got: %s", c.ReadTimeout)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got: %s", c.CallTimeout)
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache max size must not be negative, got: %d", c.Cache.MaxSize)
	}
	if c.Cache.Folder == "" {
		return fmt.Errorf("cache folder is required")
	}
	return nil
}

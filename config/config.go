package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from human-friendly strings,
// including day and week units ("90s", "1d", "2w").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := str2duration.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SearchConfig points at the managed search index.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Index    string `yaml:"index"`
}

func (c SearchConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("config: search endpoint is required")
	}
	if c.Index == "" {
		return errors.New("config: search index is required")
	}
	if c.APIKey == "" {
		return errors.New("config: search api key is required")
	}
	return nil
}

// EmbeddingsConfig points at the embeddings endpoint.
type EmbeddingsConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

func (c EmbeddingsConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("config: embeddings endpoint is required")
	}
	if c.Model == "" {
		return errors.New("config: embeddings model is required")
	}
	return nil
}

// RemoteConfig points at a remote tool server reached over its event stream.
type RemoteConfig struct {
	StreamURL        string   `yaml:"stream_url"`
	AccessKey        string   `yaml:"access_key"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	CallTimeout      Duration `yaml:"call_timeout"`
}

func (c RemoteConfig) Validate() error {
	if c.StreamURL == "" {
		return errors.New("config: remote stream url is required")
	}
	return nil
}

// CacheConfig selects the result cache backend. Backend is one of "memory",
// "sqlite", "redis" or "off".
type CacheConfig struct {
	Backend    string   `yaml:"backend"`
	TTL        Duration `yaml:"ttl"`
	RedisAddr  string   `yaml:"redis_addr"`
	SQLitePath string   `yaml:"sqlite_path"`
}

func (c CacheConfig) Validate() error {
	switch c.Backend {
	case "", "off", "memory", "sqlite":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("config: cache redis_addr is required for the redis backend")
		}
	default:
		return errors.Newf("config: unknown cache backend %q", c.Backend)
	}
	return nil
}

// ServerConfig holds the listen address for the local HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Remote     RemoteConfig     `yaml:"remote"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
}

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultCallTimeout      = 30 * time.Second
	DefaultCacheTTL         = 5 * time.Minute
	DefaultServerAddr       = "127.0.0.1:8080"
)

// Load builds the configuration. A .env file in the working directory is
// loaded first if present, then the optional yaml file at path, then
// environment variables, which take precedence over everything.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config file %s", path)
		}
	}

	overrideString(&cfg.Search.Endpoint, "SEARCH_ENDPOINT")
	overrideString(&cfg.Search.APIKey, "SEARCH_API_KEY")
	overrideString(&cfg.Search.Index, "SEARCH_INDEX_NAME")

	overrideString(&cfg.Embeddings.Endpoint, "EMBEDDINGS_ENDPOINT")
	overrideString(&cfg.Embeddings.APIKey, "EMBEDDINGS_API_KEY")
	overrideString(&cfg.Embeddings.Model, "EMBEDDINGS_MODEL")

	overrideString(&cfg.Remote.StreamURL, "MCP_STREAM_URL")
	overrideString(&cfg.Remote.AccessKey, "MCP_ACCESS_KEY")
	if err := overrideDuration(&cfg.Remote.HandshakeTimeout, "MCP_HANDSHAKE_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&cfg.Remote.CallTimeout, "MCP_CALL_TIMEOUT"); err != nil {
		return nil, err
	}

	overrideString(&cfg.Cache.Backend, "CACHE_BACKEND")
	overrideString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.Cache.SQLitePath, "CACHE_SQLITE_PATH")
	if err := overrideDuration(&cfg.Cache.TTL, "CACHE_TTL"); err != nil {
		return nil, err
	}

	overrideString(&cfg.Server.Addr, "SERVER_ADDR")

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Remote.HandshakeTimeout <= 0 {
		c.Remote.HandshakeTimeout = Duration(DefaultHandshakeTimeout)
	}
	if c.Remote.CallTimeout <= 0 {
		c.Remote.CallTimeout = Duration(DefaultCallTimeout)
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
}

func overrideString(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func overrideDuration(target *Duration, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parsed, err := str2duration.ParseDuration(val)
	if err != nil {
		return errors.Wrapf(err, "parsing %s", key)
	}
	*target = Duration(parsed)
	return nil
}

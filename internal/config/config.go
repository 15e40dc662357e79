package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr    = ":3000"
	DefaultSiteName      = "Gitado"
	DefaultStorageFile   = "gitado.json"
	DefaultFlushDebounce = 2 * time.Second
)

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type FileStorageConfig struct {
	Path          string        `mapstructure:"path"`
	FlushDebounce time.Duration `mapstructure:"flushDebounce"`
}

type BoltStorageConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig selects the KV backend. Backend is one of memory, file,
// bolt, redis.
type StorageConfig struct {
	Backend string            `mapstructure:"backend"`
	File    FileStorageConfig `mapstructure:"file"`
	Bolt    BoltStorageConfig `mapstructure:"bolt"`
	Redis   RedisConfig       `mapstructure:"redis"`
}

// OAuthConfig covers the authorization code flow endpoints. ClientSecret is
// optional; when empty any client may exchange codes.
type OAuthConfig struct {
	ClientSecret string `mapstructure:"clientSecret"`
}

type Config struct {
	Debug        bool          `mapstructure:"debug"`
	SiteName     string        `mapstructure:"siteName"`
	BaseURL      string        `mapstructure:"baseURL"`
	ListenAddr   string        `mapstructure:"listenAddr"`
	TemplateDir  string        `mapstructure:"templateDir"`
	AllowOrigins []string      `mapstructure:"allowOrigins"`
	Storage      StorageConfig `mapstructure:"storage"`
	OAuth        OAuthConfig   `mapstructure:"oauth"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = DefaultSiteName
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.File.Path == "" {
			c.Storage.File.Path = DefaultStorageFile
		}
		if c.Storage.File.FlushDebounce == 0 {
			c.Storage.File.FlushDebounce = DefaultFlushDebounce
		}
	case "bolt":
		if c.Storage.Bolt.Path == "" {
			return fmt.Errorf("storage.bolt.path is required for the bolt backend")
		}
	case "redis":
		if c.Storage.Redis.URL == "" {
			return fmt.Errorf("storage.redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the process configuration of bunquery.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Index   IndexConfig   `mapstructure:"index"`
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
}

type StorageConfig struct {
	// Path is the database directory. Empty runs in memory.
	Path         string `mapstructure:"path"`
	SyncOnCommit bool   `mapstructure:"synconcommit"`
}

type IndexConfig struct {
	// Workers bounds the goroutines used to build a new index.
	Workers int `mapstructure:"workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr              string `mapstructure:"addr"`
	RequestsPerMinute int    `mapstructure:"requestsperminute"`
	Burst             int    `mapstructure:"burst"`
	QueryCacheSize    int    `mapstructure:"querycachesize"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Path: "./data", SyncOnCommit: true},
		Index:   IndexConfig{Workers: 4},
		Log:     LogConfig{Level: "INFO", Format: "text"},
		Server: ServerConfig{
			Addr:              ":8090",
			RequestsPerMinute: 600,
			Burst:             50,
			QueryCacheSize:    256,
		},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.synconcommit", d.Storage.SyncOnCommit)
	v.SetDefault("index.workers", d.Index.Workers)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.requestsperminute", d.Server.RequestsPerMinute)
	v.SetDefault("server.burst", d.Server.Burst)
	v.SetDefault("server.querycachesize", d.Server.QueryCacheSize)
}

// Load loads configuration from defaults, an optional config file and
// environment variables, later sources winning.
// prefix: Environment variable prefix (e.g. "BUNQUERY_")
// file: Config file path (yaml, json or toml); empty skips it
func Load(prefix, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	// 1. Load from the config file (if given)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 2. Load from environment variables
	// BUNQUERY_SERVER_ADDR -> server.addr, BUNQUERY_STORAGE_SYNCONCOMMIT -> storage.synconcommit
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]
		if prefixUpper == "" || !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		section, field, ok := strings.Cut(strings.TrimPrefix(strings.TrimPrefix(key, prefixUpper), "_"), "_")
		if !ok {
			continue
		}
		v.Set(strings.ToLower(section)+"."+strings.ToLower(strings.ReplaceAll(field, "_", "")), value)
	}

	// 3. Unmarshal into struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Index.Workers < 1 {
		cfg.Index.Workers = 1
	}
	return cfg, nil
}

// Package config loads kvfs settings from a file, KVFS_* environment
// variables and defaults, and builds the backend they describe.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Backend types.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendS3     = "s3"
	BackendDir    = "dir"
)

// Config is the complete kvfs configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Backend BackendConfig `mapstructure:"backend"`

	// FlushTimeout bounds how long Close waits for queued writes.
	FlushTimeout time.Duration `mapstructure:"flush_timeout" validate:"required,gt=0"`

	// SymlinkDepth is the number of symlinks one operation may follow.
	SymlinkDepth int `mapstructure:"symlink_depth" validate:"required,gte=1"`
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// BackendConfig selects and configures the store behind the filesystem.
// Only the section matching Type is read.
type BackendConfig struct {
	Type string `mapstructure:"type" validate:"required,oneof=memory bolt badger redis s3 dir"`

	Bolt   BoltConfig   `mapstructure:"bolt"`
	Badger BadgerConfig `mapstructure:"badger"`
	Redis  RedisConfig  `mapstructure:"redis"`
	S3     S3Config     `mapstructure:"s3"`
	Dir    DirConfig    `mapstructure:"dir"`
}

type BoltConfig struct {
	Path   string `mapstructure:"path"`
	Bucket string `mapstructure:"bucket"`
}

// BadgerConfig points at a Badger directory. An empty Dir keeps the
// database in memory.
type BadgerConfig struct {
	Dir string `mapstructure:"dir"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	Key      string `mapstructure:"key"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}

type DirConfig struct {
	Path    string `mapstructure:"path"`
	Readers int    `mapstructure:"readers" validate:"gte=0"`
}

// Load reads configuration with this precedence, highest first:
//  1. Environment variables (KVFS_*, e.g. KVFS_BACKEND_TYPE=redis)
//  2. The configuration file
//  3. Default values
//
// An empty configPath looks for config.yaml in the default directory. A
// missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

// Validate checks field constraints and the section required by the
// selected backend.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	b := cfg.Backend
	switch b.Type {
	case BackendBolt:
		if b.Bolt.Path == "" {
			return errors.New("backend.bolt.path is required")
		}
	case BackendRedis:
		if b.Redis.Addr == "" {
			return errors.New("backend.redis.addr is required")
		}
	case BackendS3:
		if b.S3.Bucket == "" {
			return errors.New("backend.s3.bucket is required")
		}
	case BackendDir:
		if b.Dir.Path == "" {
			return errors.New("backend.dir.path is required")
		}
	}
	return nil
}

// setupViper registers defaults so every key can be overridden from the
// environment, then points viper at the configuration file.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("KVFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reports whether a configuration file was read.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to read config file")
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook accepts "30s" style strings as well as raw
// nanosecond counts.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML numbers
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/kvfs, ~/.config/kvfs or ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "kvfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "kvfs")
}

// DefaultConfigPath returns the file Load reads when given no path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

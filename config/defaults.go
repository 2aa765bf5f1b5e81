package config

import (
	"time"

	"github.com/absfs/kvfs/backend/rediskv"
)

// defaults returns the default value of every key, keyed by its dotted
// path.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"logging.level":  "info",
		"logging.format": "text",

		"flush_timeout": 30 * time.Second,
		"symlink_depth": 40,

		"backend.type":           BackendMemory,
		"backend.bolt.path":      "",
		"backend.bolt.bucket":    "",
		"backend.badger.dir":     "",
		"backend.redis.addr":     "",
		"backend.redis.password": "",
		"backend.redis.key":      rediskv.DefaultKey,
		"backend.s3.bucket":      "",
		"backend.s3.prefix":      "",
		"backend.s3.region":      "us-east-1",
		"backend.s3.endpoint":    "",
		"backend.s3.access_key":  "",
		"backend.s3.secret_key":  "",
		"backend.s3.path_style":  false,
		"backend.dir.path":       "",
		"backend.dir.readers":    8,
	}
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Backend: BackendConfig{
			Type:  BackendMemory,
			Redis: RedisConfig{Key: rediskv.DefaultKey},
			S3:    S3Config{Region: "us-east-1"},
			Dir:   DirConfig{Readers: 8},
		},
		FlushTimeout: 30 * time.Second,
		SymlinkDepth: 40,
	}
}

package config

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/absfs/kvfs"
	"github.com/absfs/kvfs/backend/badgerkv"
	"github.com/absfs/kvfs/backend/boltkv"
	"github.com/absfs/kvfs/backend/dirkv"
	"github.com/absfs/kvfs/backend/rediskv"
	"github.com/absfs/kvfs/backend/s3kv"
)

// OpenBackend builds the backend selected by cfg.Type. The returned closer
// releases it and is never nil.
func OpenBackend(ctx context.Context, cfg BackendConfig) (kvfs.Backend, io.Closer, error) {
	switch cfg.Type {
	case BackendMemory, "":
		return kvfs.NewMemoryBackend(), nopCloser{}, nil
	case BackendBolt:
		b, err := boltkv.Open(cfg.Bolt.Path, cfg.Bolt.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case BackendBadger:
		b, err := badgerkv.Open(cfg.Badger.Dir)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case BackendRedis:
		b, err := rediskv.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Key)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case BackendS3:
		b, err := s3kv.Dial(ctx, s3kv.Config{
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, nopCloser{}, nil
	case BackendDir:
		b, err := dirkv.New(cfg.Dir.Path)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Dir.Readers > 0 {
			b.Readers = cfg.Dir.Readers
		}
		return b, nopCloser{}, nil
	default:
		return nil, nil, errors.Errorf("unknown backend type %q", cfg.Type)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger returns a logrus logger writing to stderr as cfg describes.
func NewLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return log, nil
}

// StorageOptions returns the kvfs options implied by cfg.
func (c *Config) StorageOptions(log logrus.FieldLogger) []kvfs.Option {
	return []kvfs.Option{
		kvfs.WithLogger(log),
		kvfs.WithSymlinkDepth(c.SymlinkDepth),
	}
}

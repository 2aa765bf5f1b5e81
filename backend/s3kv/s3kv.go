// Package s3kv stores kvfs inodes as objects in an S3 compatible bucket.
package s3kv

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/absfs/kvfs"
)

// Client is the part of *s3.Client the backend uses.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config describes how to reach the bucket.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // Optional, for MinIO and friends
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Backend is a kvfs.Backend storing one object per inode, named
// "<prefix><id>".
type Backend struct {
	client Client
	bucket string
	prefix string
}

// New returns a Backend using client.
func New(client Client, bucket, prefix string) *Backend {
	return &Backend{client: client, bucket: bucket, prefix: prefix}
}

// Dial builds an S3 client from cfg. Static credentials are used when an
// access key is set; otherwise the default AWS credential chain applies.
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "s3kv: loading AWS config")
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
	})
	return New(client, cfg.Bucket, cfg.Prefix), nil
}

func (b *Backend) key(id kvfs.ID) string {
	return b.prefix + id.String()
}

func (b *Backend) Get(ctx context.Context, id kvfs.ID) (kvfs.Inode, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(id)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, kvfs.ErrNoRecord
		}
		return nil, errors.Wrapf(err, "s3kv: get %s", id)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "s3kv: reading %s", id)
	}
	return kvfs.DecodeInode(data)
}

func (b *Backend) Set(ctx context.Context, id kvfs.ID, node kvfs.Inode) error {
	data, err := kvfs.EncodeInode(node)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(id)),
		Body:   bytes.NewReader(data),
	})
	return errors.Wrapf(err, "s3kv: put %s", id)
}

func (b *Backend) Delete(ctx context.Context, id kvfs.ID) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(id)),
	})
	return errors.Wrapf(err, "s3kv: delete %s", id)
}

func (b *Backend) List(ctx context.Context, fn func(kvfs.ID, kvfs.Inode) error) error {
	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return errors.Wrap(err, "s3kv: listing objects")
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			id, err := kvfs.ParseID(strings.TrimPrefix(key, b.prefix))
			if err != nil {
				// Not ours.
				continue
			}
			node, err := b.Get(ctx, id)
			if errors.Is(err, kvfs.ErrNoRecord) {
				continue
			}
			if err != nil {
				return err
			}
			if err := fn(id, node); err != nil {
				return err
			}
		}
	}
	return nil
}

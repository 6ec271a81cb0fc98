package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
)

// S3Options configures an S3-compatible object store.
type S3Options struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// objectClient is the slice of the object API the store needs. get
// returns (nil, nil) when the object does not exist.
type objectClient interface {
	get(ctx context.Context, bucket, name string) ([]byte, error)
	put(ctx context.Context, bucket, name string, data []byte) error
}

// S3Store keeps one JSON object per key. Object stores have no native
// per-object TTL, so the ttl hint is ignored; use a bucket lifecycle rule
// to reclaim space.
type S3Store struct {
	objects objectClient
	bucket  string
	prefix  string
}

// NewS3 connects and creates the bucket if missing.
func NewS3(ctx context.Context, opts S3Options) (*S3Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "s3: create client")
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "s3: check bucket %s", opts.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, eris.Wrapf(err, "s3: create bucket %s", opts.Bucket)
		}
	}
	return &S3Store{objects: minioObjects{client}, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (s *S3Store) objectName(key string) string {
	return path.Join(s.prefix, key+".json")
}

func (s *S3Store) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.objects.get(ctx, s.bucket, s.objectName(key))
	if err != nil {
		return nil, eris.Wrap(err, "s3: get cache entry")
	}
	if data == nil {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrap(err, "s3: decode cache entry")
	}
	return &e, nil
}

func (s *S3Store) Put(ctx context.Context, key string, e Entry, _ time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "s3: encode cache entry")
	}
	return eris.Wrap(s.objects.put(ctx, s.bucket, s.objectName(key), data), "s3: put cache entry")
}

func (s *S3Store) Close() error { return nil }

type minioObjects struct {
	client *minio.Client
}

func (m minioObjects) get(ctx context.Context, bucket, name string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close() //nolint:errcheck

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (m minioObjects) put(ctx context.Context, bucket, name string, data []byte) error {
	_, err := m.client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// Пакет gcs — сборщик метаданных Google Cloud Storage.
//
// Как и в MinIO, каталог — общий префикс имён объектов.
package gcs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
)

// ObjectIterator — итератор листинга (*storage.ObjectIterator).
type ObjectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// API — операции GCS, нужные сборщику.
type API interface {
	Attrs(ctx context.Context, bucket, name string) (*storage.ObjectAttrs, error)
	Objects(ctx context.Context, bucket string, q *storage.Query) ObjectIterator
	Close() error
}

// ClientFactory строит клиент GCS по ключу сервисного аккаунта.
type ClientFactory func(ctx context.Context, storage *model.GCSStorage, secret *model.GCSSecret) (API, error)

// New создаёт сборщик GCS. factory == nil — клиент cloud.google.com/go/storage.
func New(factory ClientFactory) *connector.Collector {
	if factory == nil {
		factory = NewClient
	}
	open := func(ctx context.Context, res *model.Resource, secret *model.Secret) (connector.Session, error) {
		cfg, err := connector.DecodeStorage[model.GCSStorage](res)
		if err != nil {
			return nil, err
		}
		if cfg.BucketName == "" {
			return nil, &connector.LookupError{Stage: connector.StageResource, Err: errors.New("не задан bucketName")}
		}
		creds, err := connector.DecodeSecret[model.GCSSecret](secret)
		if err != nil {
			return nil, err
		}
		api, err := factory(ctx, cfg, creds)
		if err != nil {
			return nil, err
		}
		return &session{api: api, bucket: cfg.BucketName}, nil
	}
	return connector.NewCollector(model.StorageGCS, open, connector.Capabilities{ChildPaths: true, Directories: true})
}

// NewClient создаёт клиент GCS.
func NewClient(ctx context.Context, _ *model.GCSStorage, secret *model.GCSSecret) (API, error) {
	if secret.CredentialsJSON == "" {
		return nil, &connector.LookupError{Stage: connector.StageSecret, Err: errors.New("пустой credentialsJson")}
	}
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(secret.CredentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("создание клиента GCS: %w", err)
	}
	return &gcsClient{client: client}, nil
}

type gcsClient struct {
	client *storage.Client
}

func (c *gcsClient) Attrs(ctx context.Context, bucket, name string) (*storage.ObjectAttrs, error) {
	return c.client.Bucket(bucket).Object(name).Attrs(ctx)
}

func (c *gcsClient) Objects(ctx context.Context, bucket string, q *storage.Query) ObjectIterator {
	return c.client.Bucket(bucket).Objects(ctx, q)
}

func (c *gcsClient) Close() error {
	return c.client.Close()
}

type session struct {
	api    API
	bucket string
}

func (s *session) StatFile(ctx context.Context, p string) (*model.FileMetadata, error) {
	name := strings.TrimPrefix(p, "/")
	attrs, err := s.api.Attrs(ctx, s.bucket, name)
	if err != nil {
		return nil, classify(err, name)
	}
	return fileMetadata(attrs), nil
}

func (s *session) StatDirectory(ctx context.Context, p string) (*model.DirectoryMetadata, error) {
	prefix := dirPrefix(p)
	md := &model.DirectoryMetadata{
		FriendlyName: connector.FriendlyName(p),
		ResourcePath: strings.TrimSuffix(prefix, "/"),
	}

	found := false
	it := s.api.Objects(ctx, s.bucket, &storage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(err, prefix)
		}
		found = true

		if attrs.Prefix != "" {
			sub := strings.TrimSuffix(attrs.Prefix, "/")
			md.Directories = append(md.Directories, model.DirectoryMetadata{
				FriendlyName: connector.FriendlyName(sub),
				ResourcePath: sub,
			})
			continue
		}
		if attrs.Name == prefix {
			continue
		}
		md.Files = append(md.Files, *fileMetadata(attrs))
		if attrs.Updated.After(md.UpdateTime) {
			md.UpdateTime = attrs.Updated
		}
		if md.CreatedTime.IsZero() || attrs.Created.Before(md.CreatedTime) {
			md.CreatedTime = attrs.Created
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: каталог gs://%s/%s", connector.ErrNotFound, s.bucket, prefix)
	}
	return md, nil
}

func (s *session) Exists(ctx context.Context, p string, dir bool) (bool, error) {
	if !dir {
		_, err := s.StatFile(ctx, p)
		if errors.Is(err, connector.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}

	it := s.api.Objects(ctx, s.bucket, &storage.Query{Prefix: dirPrefix(p)})
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, classify(err, p)
	}
	return true, nil
}

func (s *session) Close() error {
	return s.api.Close()
}

func fileMetadata(attrs *storage.ObjectAttrs) *model.FileMetadata {
	return &model.FileMetadata{
		FriendlyName: connector.FriendlyName(attrs.Name),
		ResourcePath: attrs.Name,
		Size:         attrs.Size,
		Checksum:     hex.EncodeToString(attrs.MD5),
		CreatedTime:  attrs.Created,
		UpdateTime:   attrs.Updated,
	}
}

func dirPrefix(p string) string {
	key := strings.Trim(p, "/")
	if key == "" {
		return ""
	}
	return key + "/"
}

func classify(err error, name string) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: gs %s", connector.ErrNotFound, name)
	}
	return fmt.Errorf("gcs %s: %w", name, err)
}

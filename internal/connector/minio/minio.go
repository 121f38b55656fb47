// Пакет minio — сборщик метаданных MinIO.
//
// Каталог в бакете — общий префикс ключей. Каталог существует, если под его
// префиксом есть хотя бы один объект.
package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
)

// API — подмножество *minio.Client.
type API interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

var _ API = (*minio.Client)(nil)

// ClientFactory строит клиент MinIO.
type ClientFactory func(storage *model.MinIOStorage, secret *model.S3Secret) (API, error)

// New создаёт сборщик MinIO. factory == nil — клиент minio-go.
func New(factory ClientFactory) *connector.Collector {
	if factory == nil {
		factory = NewClient
	}
	open := func(_ context.Context, res *model.Resource, secret *model.Secret) (connector.Session, error) {
		storage, err := connector.DecodeStorage[model.MinIOStorage](res)
		if err != nil {
			return nil, err
		}
		if storage.BucketName == "" || storage.Endpoint == "" {
			return nil, &connector.LookupError{Stage: connector.StageResource, Err: errors.New("не заданы bucketName или endpoint")}
		}
		creds, err := connector.DecodeSecret[model.S3Secret](secret)
		if err != nil {
			return nil, err
		}
		api, err := factory(storage, creds)
		if err != nil {
			return nil, err
		}
		return &session{api: api, bucket: storage.BucketName}, nil
	}
	return connector.NewCollector(model.StorageMinIO, open, connector.Capabilities{ChildPaths: true, Directories: true})
}

// NewClient создаёт клиент minio-go со статическими ключами V4.
func NewClient(storage *model.MinIOStorage, secret *model.S3Secret) (API, error) {
	client, err := minio.New(storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(secret.AccessKey, secret.SecretKey, secret.SessionToken),
		Secure: storage.UseSSL,
		Region: storage.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("создание клиента MinIO: %w", err)
	}
	return client, nil
}

type session struct {
	api    API
	bucket string
}

func (s *session) StatFile(ctx context.Context, p string) (*model.FileMetadata, error) {
	key := objectKey(p)
	info, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, classify(err, key)
	}
	return fileMetadata(info), nil
}

func (s *session) StatDirectory(ctx context.Context, p string) (*model.DirectoryMetadata, error) {
	prefix := dirPrefix(p)
	md := &model.DirectoryMetadata{
		FriendlyName: connector.FriendlyName(p),
		ResourcePath: strings.TrimSuffix(prefix, "/"),
	}

	found := false
	for info := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if info.Err != nil {
			return nil, classify(info.Err, prefix)
		}
		found = true
		if info.Key == prefix {
			// маркер каталога
			continue
		}
		if strings.HasSuffix(info.Key, "/") {
			sub := strings.TrimSuffix(info.Key, "/")
			md.Directories = append(md.Directories, model.DirectoryMetadata{
				FriendlyName: connector.FriendlyName(sub),
				ResourcePath: sub,
			})
			continue
		}
		md.Files = append(md.Files, *fileMetadata(info))
		if info.LastModified.After(md.UpdateTime) {
			md.UpdateTime = info.LastModified
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: каталог %s", connector.ErrNotFound, prefix)
	}
	md.CreatedTime = md.UpdateTime
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

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for info := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: dirPrefix(p), MaxKeys: 1}) {
		if info.Err != nil {
			return false, classify(info.Err, p)
		}
		return true, nil
	}
	return false, nil
}

func (s *session) Close() error { return nil }

func fileMetadata(info minio.ObjectInfo) *model.FileMetadata {
	return &model.FileMetadata{
		FriendlyName: connector.FriendlyName(info.Key),
		ResourcePath: info.Key,
		Size:         info.Size,
		Checksum:     strings.Trim(info.ETag, `"`),
		CreatedTime:  info.LastModified,
		UpdateTime:   info.LastModified,
	}
}

func objectKey(p string) string {
	return strings.TrimPrefix(p, "/")
}

// dirPrefix — префикс каталога с завершающим "/". Корень бакета — пустой префикс.
func dirPrefix(p string) string {
	key := strings.Trim(p, "/")
	if key == "" {
		return ""
	}
	return key + "/"
}

func classify(err error, key string) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: minio://%s", connector.ErrNotFound, key)
	}
	return fmt.Errorf("minio %s: %w", key, err)
}

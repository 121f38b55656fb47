// Пакет s3 — сборщик метаданных Amazon S3 (и S3-совместимых хранилищ).
//
// Поддерживаются только метаданные файла и проверка существования:
// адресация потомков и каталоги для S3 не реализованы и возвращают
// connector.ErrUnsupported.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
)

// API — подмножество клиента S3.
type API interface {
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
}

// ClientFactory строит клиент S3 по конфигурации хранилища и ключам доступа.
type ClientFactory func(ctx context.Context, storage *model.S3Storage, secret *model.S3Secret) (API, error)

// New создаёт сборщик S3. factory == nil — клиент aws-sdk-go-v2.
func New(factory ClientFactory) *connector.Collector {
	if factory == nil {
		factory = NewClient
	}
	open := func(ctx context.Context, res *model.Resource, secret *model.Secret) (connector.Session, error) {
		storage, err := connector.DecodeStorage[model.S3Storage](res)
		if err != nil {
			return nil, err
		}
		if storage.BucketName == "" {
			return nil, &connector.LookupError{Stage: connector.StageResource, Err: errors.New("не задан bucketName")}
		}
		creds, err := connector.DecodeSecret[model.S3Secret](secret)
		if err != nil {
			return nil, err
		}
		api, err := factory(ctx, storage, creds)
		if err != nil {
			return nil, err
		}
		return &session{api: api, bucket: storage.BucketName}, nil
	}
	return connector.NewCollector(model.StorageS3, open, connector.Capabilities{ChildAvailability: true})
}

// NewClient создаёт клиент aws-sdk-go-v2. Непустой sessionToken — сессионные
// ключи, иначе статические.
func NewClient(ctx context.Context, storage *model.S3Storage, secret *model.S3Secret) (API, error) {
	provider := credentials.NewStaticCredentialsProvider(secret.AccessKey, secret.SecretKey, secret.SessionToken)

	region := storage.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации AWS: %w", err)
	}

	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.UsePathStyle = storage.UsePathStyle
		if storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(storage.Endpoint)
		}
	}), nil
}

type session struct {
	api    API
	bucket string
}

func (s *session) StatFile(ctx context.Context, p string) (*model.FileMetadata, error) {
	key := objectKey(p)
	out, err := s.api.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err, key)
	}

	modified := aws.ToTime(out.LastModified)
	return &model.FileMetadata{
		FriendlyName: connector.FriendlyName(key),
		ResourcePath: key,
		Size:         aws.ToInt64(out.ContentLength),
		Checksum:     strings.Trim(aws.ToString(out.ETag), `"`),
		// S3 не хранит время создания объекта
		CreatedTime: modified,
		UpdateTime:  modified,
	}, nil
}

func (s *session) StatDirectory(context.Context, string) (*model.DirectoryMetadata, error) {
	return nil, connector.ErrUnsupported
}

// Exists — HeadObject; для каталога проверяется объект с тем же ключом.
func (s *session) Exists(ctx context.Context, p string, _ bool) (bool, error) {
	_, err := s.StatFile(ctx, p)
	if errors.Is(err, connector.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *session) Close() error { return nil }

// objectKey — ключ объекта без ведущего "/".
func objectKey(p string) string {
	return strings.TrimPrefix(p, "/")
}

// classify превращает ответ "объект не найден" в connector.ErrNotFound.
func classify(err error, key string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: s3://%s", connector.ErrNotFound, key)
		}
	}
	// HEAD без тела: SDK может не распознать код ошибки
	msg := err.Error()
	if strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey") {
		return fmt.Errorf("%w: s3://%s", connector.ErrNotFound, key)
	}
	return fmt.Errorf("s3 HeadObject %s: %w", key, err)
}

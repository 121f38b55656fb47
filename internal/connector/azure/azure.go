// Пакет azure — сборщик метаданных Azure Blob Storage.
//
// Поддерживаются файлы и адресация потомков. Каталоги не поддерживаются:
// у плоского пространства имён блобов нет собственных метаданных каталога.
package azure

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
)

// Properties — свойства блоба, нужные сборщику.
type Properties struct {
	Size         int64
	ContentMD5   []byte
	ETag         string
	CreationTime time.Time
	LastModified time.Time
}

// API — операции Azure Blob, нужные сборщику.
type API interface {
	GetProperties(ctx context.Context, container, blobName string) (*Properties, error)
}

// ClientFactory строит клиент по конфигурации хранилища и секрету.
type ClientFactory func(storage *model.AzureStorage, secret *model.AzureSecret) (API, error)

// New создаёт сборщик Azure. factory == nil — клиент azblob.
func New(factory ClientFactory) *connector.Collector {
	if factory == nil {
		factory = NewClient
	}
	open := func(_ context.Context, res *model.Resource, secret *model.Secret) (connector.Session, error) {
		storage, err := connector.DecodeStorage[model.AzureStorage](res)
		if err != nil {
			return nil, err
		}
		if storage.Container == "" {
			return nil, &connector.LookupError{Stage: connector.StageResource, Err: errors.New("не задан container")}
		}
		creds, err := connector.DecodeSecret[model.AzureSecret](secret)
		if err != nil {
			return nil, err
		}
		api, err := factory(storage, creds)
		if err != nil {
			return nil, err
		}
		return &session{api: api, container: storage.Container}, nil
	}
	return connector.NewCollector(model.StorageAzure, open, connector.Capabilities{ChildPaths: true})
}

// NewClient создаёт клиент azblob: строка подключения либо общий ключ аккаунта.
func NewClient(storage *model.AzureStorage, secret *model.AzureSecret) (API, error) {
	if secret.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(secret.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("создание клиента Azure по строке подключения: %w", err)
		}
		return &azblobClient{client: client}, nil
	}

	account := secret.AccountName
	if account == "" {
		account = storage.AccountName
	}
	if account == "" || secret.AccountKey == "" {
		return nil, &connector.LookupError{Stage: connector.StageSecret, Err: errors.New("нужны connectionString или accountName и accountKey")}
	}
	cred, err := azblob.NewSharedKeyCredential(account, secret.AccountKey)
	if err != nil {
		return nil, &connector.LookupError{Stage: connector.StageSecret, Err: err}
	}

	endpoint := storage.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("создание клиента Azure: %w", err)
	}
	return &azblobClient{client: client}, nil
}

type azblobClient struct {
	client *azblob.Client
}

func (c *azblobClient) GetProperties(ctx context.Context, container, blobName string) (*Properties, error) {
	resp, err := c.client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName).GetProperties(ctx, nil)
	if err != nil {
		return nil, err
	}

	props := &Properties{ContentMD5: resp.ContentMD5}
	if resp.ContentLength != nil {
		props.Size = *resp.ContentLength
	}
	if resp.ETag != nil {
		props.ETag = string(*resp.ETag)
	}
	if resp.CreationTime != nil {
		props.CreationTime = *resp.CreationTime
	}
	if resp.LastModified != nil {
		props.LastModified = *resp.LastModified
	}
	return props, nil
}

type session struct {
	api       API
	container string
}

func (s *session) StatFile(ctx context.Context, p string) (*model.FileMetadata, error) {
	name := strings.TrimPrefix(p, "/")
	props, err := s.api.GetProperties(ctx, s.container, name)
	if err != nil {
		return nil, classify(err, name)
	}

	return &model.FileMetadata{
		FriendlyName: connector.FriendlyName(name),
		ResourcePath: name,
		Size:         props.Size,
		Checksum:     checksum(props.ContentMD5, props.ETag),
		CreatedTime:  props.CreationTime,
		UpdateTime:   props.LastModified,
	}, nil
}

func (s *session) StatDirectory(context.Context, string) (*model.DirectoryMetadata, error) {
	return nil, connector.ErrUnsupported
}

func (s *session) Exists(ctx context.Context, p string, _ bool) (bool, error) {
	_, err := s.StatFile(ctx, p)
	if errors.Is(err, connector.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *session) Close() error { return nil }

func classify(err error, name string) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return fmt.Errorf("%w: azure %s", connector.ErrNotFound, name)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: azure %s", connector.ErrNotFound, name)
	}
	return fmt.Errorf("azure %s: %w", name, err)
}

// checksum — Content-MD5 блоба, иначе ETag.
func checksum(md5 []byte, etag string) string {
	if len(md5) > 0 {
		return hex.EncodeToString(md5)
	}
	return strings.Trim(etag, `"`)
}

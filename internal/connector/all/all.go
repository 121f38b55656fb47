// Пакет all регистрирует сборщики метаданных всех поддерживаемых хранилищ.
package all

import (
	"log/slog"
	"net/http"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/connector/azure"
	"github.com/bigkaa/mft/internal/connector/dropbox"
	"github.com/bigkaa/mft/internal/connector/ftp"
	"github.com/bigkaa/mft/internal/connector/gcs"
	"github.com/bigkaa/mft/internal/connector/local"
	"github.com/bigkaa/mft/internal/connector/minio"
	"github.com/bigkaa/mft/internal/connector/s3"
	"github.com/bigkaa/mft/internal/connector/scp"
	"github.com/bigkaa/mft/internal/domain/model"
)

// Options — параметры встроенных бэкендов.
type Options struct {
	// LocalRoot — корень ФС для LOCAL ресурсов
	LocalRoot string
	// KnownHostsPath — known_hosts для SCP
	KnownHostsPath string
	// DropboxBaseURL — эндпоинт Dropbox API (пусто — публичный)
	DropboxBaseURL string
	// HTTPClient — клиент для HTTP-бэкендов (Dropbox)
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewResolver создаёт Resolver со всеми встроенными бэкендами.
func NewResolver(resources connector.ResourceResolver, secrets connector.SecretResolver, opts Options) *connector.Resolver {
	if opts.LocalRoot == "" {
		opts.LocalRoot = "/"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := connector.NewResolver(resources, secrets)
	r.Register(model.StorageS3, func() connector.MetadataCollector { return s3.New(nil) })
	r.Register(model.StorageMinIO, func() connector.MetadataCollector { return minio.New(nil) })
	r.Register(model.StorageSCP, func() connector.MetadataCollector {
		return scp.New(nil, opts.KnownHostsPath, opts.Logger)
	})
	r.Register(model.StorageFTP, func() connector.MetadataCollector { return ftp.New(nil) })
	r.Register(model.StorageLocal, func() connector.MetadataCollector { return local.NewOS(opts.LocalRoot) })
	r.Register(model.StorageGCS, func() connector.MetadataCollector { return gcs.New(nil) })
	r.Register(model.StorageAzure, func() connector.MetadataCollector { return azure.New(nil) })
	r.Register(model.StorageDropbox, func() connector.MetadataCollector {
		return dropbox.New(opts.DropboxBaseURL, opts.HTTPClient)
	})
	return r
}

// collector.go — общий сборщик метаданных поверх сессии конкретного бэкенда.
//
// Бэкенд реализует Opener (открыть клиент по ресурсу и секрету) и Session
// (stat файла, stat каталога, проверка существования). Collector добавляет:
//   - проверку Init и поддерживаемых режимов адресации
//   - двухшаговое разрешение через Binding
//   - построение пути потомка
//   - классификацию ошибок и Prometheus-метрики
//
// Prometheus-метрики:
//   - mft_collector_operations_total{storage_type, operation, result}
//   - mft_collector_operation_duration_seconds{storage_type, operation}
package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/mft/internal/domain/model"
)

var (
	collectorOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mft_collector_operations_total",
		Help: "Количество вызовов сборщиков метаданных",
	}, []string{"storage_type", "operation", "result"})

	collectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mft_collector_operation_duration_seconds",
		Help:    "Длительность вызовов сборщиков метаданных",
		Buckets: prometheus.DefBuckets,
	}, []string{"storage_type", "operation"})
)

// Session — клиент удалённого хранилища, открытый на один вызов.
type Session interface {
	// StatFile возвращает метаданные файла. Отсутствие — ErrNotFound.
	StatFile(ctx context.Context, p string) (*model.FileMetadata, error)
	// StatDirectory возвращает метаданные каталога и его непосредственного содержимого.
	StatDirectory(ctx context.Context, p string) (*model.DirectoryMetadata, error)
	// Exists проверяет существование файла (dir=false) или каталога (dir=true).
	Exists(ctx context.Context, p string, dir bool) (bool, error)
	// Close освобождает клиент.
	Close() error
}

// Opener открывает сессию по разрешённым ресурсу и секрету.
type Opener func(ctx context.Context, res *model.Resource, secret *model.Secret) (Session, error)

// Capabilities — режимы адресации, поддерживаемые бэкендом.
type Capabilities struct {
	// ChildPaths — адресация потомка по относительному пути
	ChildPaths bool
	// ChildAvailability — только проверка существования потомка
	// (для бэкендов без метаданных потомков)
	ChildAvailability bool
	// Directories — метаданные каталогов
	Directories bool
	// OptionalCredentials — при пустом токене секрет не запрашивается
	OptionalCredentials bool
}

// Collector — реализация MetadataCollector поверх Opener.
type Collector struct {
	Binding
	open Opener
	caps Capabilities
}

var _ MetadataCollector = (*Collector)(nil)

// NewCollector создаёт сборщик для типа хранилища.
func NewCollector(storageType model.StorageType, open Opener, caps Capabilities) *Collector {
	return &Collector{
		Binding: NewBinding(storageType),
		open:    open,
		caps:    caps,
	}
}

// Capabilities возвращает поддерживаемые режимы адресации.
func (c *Collector) Capabilities() Capabilities {
	return c.caps
}

// GetFileMetadata возвращает метаданные файла ресурса.
func (c *Collector) GetFileMetadata(ctx context.Context, auth model.AuthToken, ref Ref) (*model.FileMetadata, error) {
	var md *model.FileMetadata
	err := c.observe("file", func() error {
		return c.withSession(ctx, auth, ref, func(sess Session, res *model.Resource) error {
			if res.IsDirectory() {
				return fmt.Errorf("%w: ресурс %s является каталогом", ErrInvalidPath, res.ID)
			}
			var err error
			md, err = sess.StatFile(ctx, res.Path)
			return err
		})
	})
	return md, err
}

// GetChildFileMetadata возвращает метаданные файла внутри ресурса-каталога.
func (c *Collector) GetChildFileMetadata(ctx context.Context, auth model.AuthToken, parent Ref, relativePath string) (*model.FileMetadata, error) {
	var md *model.FileMetadata
	err := c.observe("child_file", func() error {
		if err := c.require(c.caps.ChildPaths); err != nil {
			return err
		}
		return c.withSession(ctx, auth, parent, func(sess Session, res *model.Resource) error {
			p, err := ChildPath(res, relativePath)
			if err != nil {
				return err
			}
			md, err = sess.StatFile(ctx, p)
			return err
		})
	})
	return md, err
}

// GetDirectoryMetadata возвращает метаданные ресурса-каталога.
func (c *Collector) GetDirectoryMetadata(ctx context.Context, auth model.AuthToken, ref Ref) (*model.DirectoryMetadata, error) {
	var md *model.DirectoryMetadata
	err := c.observe("directory", func() error {
		if err := c.require(c.caps.Directories); err != nil {
			return err
		}
		return c.withSession(ctx, auth, ref, func(sess Session, res *model.Resource) error {
			if !res.IsDirectory() {
				return fmt.Errorf("%w: ресурс %s не является каталогом", ErrInvalidPath, res.ID)
			}
			var err error
			md, err = sess.StatDirectory(ctx, res.Path)
			return err
		})
	})
	return md, err
}

// GetChildDirectoryMetadata возвращает метаданные подкаталога ресурса-каталога.
func (c *Collector) GetChildDirectoryMetadata(ctx context.Context, auth model.AuthToken, parent Ref, relativePath string) (*model.DirectoryMetadata, error) {
	var md *model.DirectoryMetadata
	err := c.observe("child_directory", func() error {
		if err := c.require(c.caps.ChildPaths && c.caps.Directories); err != nil {
			return err
		}
		return c.withSession(ctx, auth, parent, func(sess Session, res *model.Resource) error {
			p, err := ChildPath(res, relativePath)
			if err != nil {
				return err
			}
			md, err = sess.StatDirectory(ctx, p)
			return err
		})
	})
	return md, err
}

// IsAvailable проверяет существование ресурса (файла или каталога по виду ресурса).
func (c *Collector) IsAvailable(ctx context.Context, auth model.AuthToken, ref Ref) (bool, error) {
	var ok bool
	err := c.observe("available", func() error {
		return c.withSession(ctx, auth, ref, func(sess Session, res *model.Resource) error {
			var err error
			ok, err = sess.Exists(ctx, res.Path, res.IsDirectory())
			return err
		})
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return ok, err
}

// IsChildAvailable проверяет существование пути внутри ресурса-каталога.
// Вид потомка неизвестен: проверяется файл, затем каталог.
func (c *Collector) IsChildAvailable(ctx context.Context, auth model.AuthToken, parent Ref, relativePath string) (bool, error) {
	var ok bool
	err := c.observe("child_available", func() error {
		if err := c.require(c.caps.ChildPaths || c.caps.ChildAvailability); err != nil {
			return err
		}
		return c.withSession(ctx, auth, parent, func(sess Session, res *model.Resource) error {
			p, err := ChildPath(res, relativePath)
			if err != nil {
				return err
			}
			ok, err = sess.Exists(ctx, p, false)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if !ok && c.caps.Directories {
				ok, err = sess.Exists(ctx, p, true)
			}
			return err
		})
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return ok, err
}

// require проверяет Init и поддержку режима адресации.
func (c *Collector) require(supported bool) error {
	if !c.Initialized() {
		return ErrNotInitialized
	}
	if !supported {
		return fmt.Errorf("%w: %s", ErrUnsupported, c.StorageType())
	}
	return nil
}

// withSession разрешает ссылку, открывает сессию и закрывает её после fn.
// Ошибки удалённого API оборачиваются в LookupError(remote).
func (c *Collector) withSession(ctx context.Context, auth model.AuthToken, ref Ref, fn func(Session, *model.Resource) error) error {
	var (
		res    *model.Resource
		secret *model.Secret
		err    error
	)
	if c.caps.OptionalCredentials && ref.CredentialToken == "" {
		res, err = c.ResolveResource(ctx, auth, ref)
	} else {
		res, secret, err = c.Resolve(ctx, auth, ref)
	}
	if err != nil {
		return err
	}

	sess, err := c.open(ctx, res, secret)
	if err != nil {
		return RemoteError(err)
	}
	defer sess.Close() //nolint:errcheck // сессия одноразовая

	if err := fn(sess, res); err != nil {
		if errors.Is(err, ErrInvalidPath) {
			return err
		}
		return RemoteError(err)
	}
	return nil
}

// observe считает вызов и его длительность.
func (c *Collector) observe(operation string, fn func() error) error {
	start := time.Now()
	err := fn()

	storageType := string(c.StorageType())
	collectorDuration.WithLabelValues(storageType, operation).Observe(time.Since(start).Seconds())
	collectorOpsTotal.WithLabelValues(storageType, operation, resultLabel(err)).Inc()
	return err
}

// resultLabel классифицирует ошибку для метрик.
func resultLabel(err error) string {
	var le *LookupError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.As(err, &le):
		return le.Stage + "_error"
	default:
		return "error"
	}
}

// DecodeStorage разбирает конфигурацию хранилища ресурса; ошибка относится к этапу resource.
func DecodeStorage[T any](res *model.Resource) (*T, error) {
	cfg, err := model.DecodeStorageConfig[T](res)
	if err != nil {
		return nil, &LookupError{Stage: StageResource, Err: err}
	}
	return cfg, nil
}

// DecodeSecret разбирает секрет; ошибка относится к этапу secret.
func DecodeSecret[T any](secret *model.Secret) (*T, error) {
	out, err := model.DecodeSecret[T](secret)
	if err != nil {
		return nil, &LookupError{Stage: StageSecret, Err: err}
	}
	return out, nil
}

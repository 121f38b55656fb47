// metadata.go — сервис метаданных ресурсов поверх сборщиков.
//
// Для каждого запроса Resolver выдаёт новый сборщик нужного типа хранилища.
// Непустой Path — адресация потомка внутри ресурса-каталога.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
)

// CollectorResolver — таблица сборщиков (connector.Resolver).
type CollectorResolver interface {
	Resolve(storageType model.StorageType) (connector.MetadataCollector, error)
}

// MetadataQuery — запрос метаданных ресурса.
type MetadataQuery struct {
	// Type — тип хранилища ресурса
	Type model.StorageType
	// Ref — ресурс и учётные данные
	Ref connector.Ref
	// Path — относительный путь потомка (пусто — сам ресурс)
	Path string
}

// MetadataService — сервис метаданных.
type MetadataService struct {
	resolver CollectorResolver
	timeout  time.Duration
	logger   *slog.Logger
}

// NewMetadataService создаёт сервис метаданных.
// timeout — ограничение на вызов сборщика (MFT_LOOKUP_TIMEOUT).
func NewMetadataService(resolver CollectorResolver, timeout time.Duration, logger *slog.Logger) *MetadataService {
	return &MetadataService{
		resolver: resolver,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "metadata_service")),
	}
}

// FileMetadata возвращает метаданные файла.
func (s *MetadataService) FileMetadata(ctx context.Context, auth model.AuthToken, q MetadataQuery) (*model.FileMetadata, error) {
	c, err := s.collector(q)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if q.Path != "" {
		return c.GetChildFileMetadata(ctx, auth, q.Ref, q.Path)
	}
	return c.GetFileMetadata(ctx, auth, q.Ref)
}

// DirectoryMetadata возвращает метаданные каталога.
func (s *MetadataService) DirectoryMetadata(ctx context.Context, auth model.AuthToken, q MetadataQuery) (*model.DirectoryMetadata, error) {
	c, err := s.collector(q)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if q.Path != "" {
		return c.GetChildDirectoryMetadata(ctx, auth, q.Ref, q.Path)
	}
	return c.GetDirectoryMetadata(ctx, auth, q.Ref)
}

// Available проверяет существование ресурса или потомка.
func (s *MetadataService) Available(ctx context.Context, auth model.AuthToken, q MetadataQuery) (bool, error) {
	c, err := s.collector(q)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if q.Path != "" {
		return c.IsChildAvailable(ctx, auth, q.Ref, q.Path)
	}
	return c.IsAvailable(ctx, auth, q.Ref)
}

func (s *MetadataService) collector(q MetadataQuery) (connector.MetadataCollector, error) {
	if q.Ref.ResourceID == "" {
		return nil, fmt.Errorf("%w: не задан идентификатор ресурса", ErrValidation)
	}
	c, err := s.resolver.Resolve(q.Type)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Сборщик метаданных выбран",
		slog.String("storage_type", string(q.Type)),
		slog.String("resource_id", q.Ref.ResourceID),
	)
	return c, nil
}

// resources.go — регистрация хранилищ и ресурсов в SQL-реестре (backend "sql").
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/repository"
)

// ResourceService — сервис SQL-реестра ресурсов.
type ResourceService struct {
	repo   repository.ResourceRepository
	logger *slog.Logger
}

// NewResourceService создаёт сервис реестра ресурсов.
func NewResourceService(repo repository.ResourceRepository, logger *slog.Logger) *ResourceService {
	return &ResourceService{
		repo:   repo,
		logger: logger.With(slog.String("component", "resource_service")),
	}
}

// CreateStorage регистрирует хранилище. Пустой ID — генерируется.
func (s *ResourceService) CreateStorage(ctx context.Context, st *model.Storage) (*model.Storage, error) {
	st.Type = model.ParseStorageType(string(st.Type))
	if !slices.Contains(model.StorageTypes, st.Type) {
		return nil, fmt.Errorf("%w: неизвестный тип хранилища %q", ErrValidation, st.Type)
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}

	if err := s.repo.CreateStorage(ctx, st); err != nil {
		return nil, mapRepoError(err, "хранилище "+st.ID)
	}

	s.logger.Info("Хранилище зарегистрировано",
		slog.String("storage_id", st.ID),
		slog.String("type", string(st.Type)),
	)
	return st, nil
}

// GetStorage возвращает хранилище.
func (s *ResourceService) GetStorage(ctx context.Context, id string) (*model.Storage, error) {
	st, err := s.repo.GetStorage(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "хранилище "+id)
	}
	return st, nil
}

// DeleteStorage удаляет хранилище вместе с ресурсами.
func (s *ResourceService) DeleteStorage(ctx context.Context, id string) error {
	if err := s.repo.DeleteStorage(ctx, id); err != nil {
		return mapRepoError(err, "хранилище "+id)
	}
	s.logger.Info("Хранилище удалено", slog.String("storage_id", id))
	return nil
}

// CreateResource регистрирует ресурс в существующем хранилище.
func (s *ResourceService) CreateResource(ctx context.Context, res *model.Resource) (*model.Resource, error) {
	var errs []error
	if res.Storage.ID == "" {
		errs = append(errs, errors.New("storageId обязателен"))
	}
	if res.Path == "" {
		errs = append(errs, errors.New("path обязателен"))
	}
	if res.Kind == "" {
		res.Kind = model.KindFile
	}
	if res.Kind != model.KindFile && res.Kind != model.KindDirectory {
		errs = append(errs, fmt.Errorf("некорректный kind %q", res.Kind))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}

	if err := s.repo.CreateResource(ctx, res); err != nil {
		return nil, mapRepoError(err, "ресурс "+res.ID)
	}

	created, err := s.repo.GetResource(ctx, res.ID)
	if err != nil {
		return nil, mapRepoError(err, "ресурс "+res.ID)
	}
	s.logger.Info("Ресурс зарегистрирован",
		slog.String("resource_id", created.ID),
		slog.String("storage_id", created.Storage.ID),
	)
	return created, nil
}

// GetResource возвращает ресурс с описанием хранилища.
func (s *ResourceService) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "ресурс "+id)
	}
	return res, nil
}

// DeleteResource удаляет ресурс.
func (s *ResourceService) DeleteResource(ctx context.Context, id string) error {
	if err := s.repo.DeleteResource(ctx, id); err != nil {
		return mapRepoError(err, "ресурс "+id)
	}
	s.logger.Info("Ресурс удалён", slog.String("resource_id", id))
	return nil
}

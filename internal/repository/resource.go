package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/mft/internal/domain/model"
)

// ResourceRepository — реестр ресурсов в PostgreSQL (backend "sql").
type ResourceRepository interface {
	// CreateStorage регистрирует хранилище.
	CreateStorage(ctx context.Context, s *model.Storage) error
	// GetStorage возвращает хранилище по id.
	GetStorage(ctx context.Context, id string) (*model.Storage, error)
	// DeleteStorage удаляет хранилище вместе с его ресурсами.
	DeleteStorage(ctx context.Context, id string) error
	// CreateResource регистрирует ресурс в существующем хранилище.
	CreateResource(ctx context.Context, res *model.Resource) error
	// GetResource возвращает ресурс вместе с описанием хранилища.
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	// DeleteResource удаляет ресурс.
	DeleteResource(ctx context.Context, id string) error
}

type resourceRepo struct {
	db DBTX
}

// NewResourceRepository создаёт репозиторий реестра ресурсов.
func NewResourceRepository(db DBTX) ResourceRepository {
	return &resourceRepo{db: db}
}

func (r *resourceRepo) CreateStorage(ctx context.Context, s *model.Storage) error {
	config := s.Config
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO storages (id, type, name, config) VALUES ($1, $2, $3, $4)`,
		s.ID, string(s.Type), s.Name, []byte(config),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: хранилище %s уже зарегистрировано", ErrConflict, s.ID)
		}
		return fmt.Errorf("ошибка создания хранилища: %w", err)
	}
	return nil
}

func (r *resourceRepo) GetStorage(ctx context.Context, id string) (*model.Storage, error) {
	s := &model.Storage{}
	var typ string
	var config []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, type, name, config FROM storages WHERE id = $1`, id,
	).Scan(&s.ID, &typ, &s.Name, &config)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения хранилища: %w", err)
	}
	s.Type = model.StorageType(typ)
	s.Config = json.RawMessage(config)
	return s, nil
}

func (r *resourceRepo) DeleteStorage(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM storages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления хранилища: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *resourceRepo) CreateResource(ctx context.Context, res *model.Resource) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO resources (id, storage_id, kind, path) VALUES ($1, $2, $3, $4)`,
		res.ID, res.Storage.ID, string(res.Kind), res.Path,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ресурс %s уже зарегистрирован", ErrConflict, res.ID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: хранилище %s", ErrNotFound, res.Storage.ID)
		}
		return fmt.Errorf("ошибка создания ресурса: %w", err)
	}
	return nil
}

func (r *resourceRepo) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	query := `
		SELECT r.id, r.kind, r.path, s.id, s.type, s.name, s.config
		FROM resources r
		JOIN storages s ON s.id = r.storage_id
		WHERE r.id = $1`

	res := &model.Resource{}
	var kind, typ string
	var config []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&res.ID, &kind, &res.Path,
		&res.Storage.ID, &typ, &res.Storage.Name, &config,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ресурса: %w", err)
	}
	res.Kind = model.ResourceKind(kind)
	res.Storage.Type = model.StorageType(typ)
	res.Storage.Config = json.RawMessage(config)
	return res, nil
}

func (r *resourceRepo) DeleteResource(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления ресурса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/mft/internal/domain/model"
)

// TransferRepository — журнал передач. Запись создаётся один раз и не изменяется.
type TransferRepository interface {
	// Save сохраняет новую передачу. Повторный id — ErrConflict.
	Save(ctx context.Context, t *model.Transfer) error
	// GetByID возвращает передачу по id или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Transfer, error)
}

type transferRepo struct {
	db DBTX
}

// NewTransferRepository создаёт репозиторий передач.
func NewTransferRepository(db DBTX) TransferRepository {
	return &transferRepo{db: db}
}

func (r *transferRepo) Save(ctx context.Context, t *model.Transfer) error {
	query := `
		INSERT INTO transfers (id,
			source_id, source_token, source_type, source_resource_backend, source_credential_backend,
			dest_id, dest_token, dest_type, dest_resource_backend, dest_credential_backend,
			affinity_transfer, target_agents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`

	targets := t.TargetAgents
	if targets == nil {
		targets = map[string]string{}
	}

	err := r.db.QueryRow(ctx, query,
		t.ID,
		t.Source.ResourceID, t.Source.Token, string(t.Source.Type),
		t.Source.ResourceBackend, t.Source.CredentialBackend,
		t.Destination.ResourceID, t.Destination.Token, string(t.Destination.Type),
		t.Destination.ResourceBackend, t.Destination.CredentialBackend,
		t.AffinityTransfer, targets, t.CreatedAt,
	).Scan(&t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: передача %s уже существует", ErrConflict, t.ID)
		}
		return fmt.Errorf("ошибка сохранения передачи: %w", err)
	}
	return nil
}

func (r *transferRepo) GetByID(ctx context.Context, id string) (*model.Transfer, error) {
	query := `
		SELECT id,
			source_id, source_token, source_type, source_resource_backend, source_credential_backend,
			dest_id, dest_token, dest_type, dest_resource_backend, dest_credential_backend,
			affinity_transfer, target_agents, created_at
		FROM transfers
		WHERE id = $1`

	t := &model.Transfer{}
	var srcType, dstType string
	var targets map[string]string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.Source.ResourceID, &t.Source.Token, &srcType,
		&t.Source.ResourceBackend, &t.Source.CredentialBackend,
		&t.Destination.ResourceID, &t.Destination.Token, &dstType,
		&t.Destination.ResourceBackend, &t.Destination.CredentialBackend,
		&t.AffinityTransfer, &targets, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения передачи: %w", err)
	}
	t.Source.Type = model.StorageType(srcType)
	t.Destination.Type = model.StorageType(dstType)
	if len(targets) > 0 {
		t.TargetAgents = targets
	}
	return t, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/mft/internal/domain/model"
)

// TransferStatusRepository — история состояний передач (только добавление).
type TransferStatusRepository interface {
	// Append добавляет строку истории. Передача должна существовать, иначе ErrNotFound.
	Append(ctx context.Context, s *model.TransferStatus) error
	// ListByTransfer возвращает историю в порядке поступления.
	ListByTransfer(ctx context.Context, transferID string) ([]*model.TransferStatus, error)
	// Latest возвращает последнюю поступившую строку или ErrNotFound.
	Latest(ctx context.Context, transferID string) (*model.TransferStatus, error)
}

type transferStatusRepo struct {
	db DBTX
}

// NewTransferStatusRepository создаёт репозиторий истории состояний.
func NewTransferStatusRepository(db DBTX) TransferStatusRepository {
	return &transferStatusRepo{db: db}
}

const statusColumns = `id, transfer_id, percentage, state, update_time_millis, publisher, description, created_at`

func (r *transferStatusRepo) Append(ctx context.Context, s *model.TransferStatus) error {
	query := `
		INSERT INTO transfer_statuses (transfer_id, percentage, state, update_time_millis, publisher, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		s.TransferID, s.Percentage, string(s.State), s.UpdateTimeMillis, s.Publisher, s.Description,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: передача %s", ErrNotFound, s.TransferID)
		}
		return fmt.Errorf("ошибка добавления состояния: %w", err)
	}
	return nil
}

func (r *transferStatusRepo) ListByTransfer(ctx context.Context, transferID string) ([]*model.TransferStatus, error) {
	query := `SELECT ` + statusColumns + `
		FROM transfer_statuses
		WHERE transfer_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, transferID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории состояний: %w", err)
	}
	defer rows.Close()

	var result []*model.TransferStatus
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения состояния: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения истории состояний: %w", err)
	}
	return result, nil
}

func (r *transferStatusRepo) Latest(ctx context.Context, transferID string) (*model.TransferStatus, error) {
	query := `SELECT ` + statusColumns + `
		FROM transfer_statuses
		WHERE transfer_id = $1
		ORDER BY id DESC
		LIMIT 1`

	s, err := scanStatus(r.db.QueryRow(ctx, query, transferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения последнего состояния: %w", err)
	}
	return s, nil
}

func scanStatus(row pgx.Row) (*model.TransferStatus, error) {
	s := &model.TransferStatus{}
	var state string
	err := row.Scan(&s.ID, &s.TransferID, &s.Percentage, &state,
		&s.UpdateTimeMillis, &s.Publisher, &s.Description, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.State = model.JobState(state)
	return s, nil
}

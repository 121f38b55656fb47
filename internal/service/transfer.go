// transfer.go — клиентский сервис передач: отправка запроса и чтение
// журнала передач и истории состояний.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/mft/internal/coordination"
	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/repository"
)

// TransferService — сервис передач для HTTP API.
type TransferService struct {
	store         coordination.Store
	transfers     repository.TransferRepository
	statuses      repository.TransferStatusRepository
	requestPrefix string
	timeout       time.Duration
	newID         func() string
	logger        *slog.Logger
}

// NewTransferService создаёт сервис передач.
func NewTransferService(
	store coordination.Store,
	transfers repository.TransferRepository,
	statuses repository.TransferStatusRepository,
	requestPrefix string,
	timeout time.Duration,
	logger *slog.Logger,
) *TransferService {
	return &TransferService{
		store:         store,
		transfers:     transfers,
		statuses:      statuses,
		requestPrefix: requestPrefix,
		timeout:       timeout,
		newID:         uuid.NewString,
		logger:        logger.With(slog.String("component", "transfer_service")),
	}
}

// Submit проверяет запрос, выдаёт идентификатор передачи и кладёт запрос
// в почтовый ящик контроллера. Передача появляется в журнале после приёма.
func (s *TransferService) Submit(ctx context.Context, req *model.TransferRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err) //nolint:errorlint // намеренный двойной wrap
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("сериализация запроса: %w", err)
	}

	id := s.newID()
	key := coordination.Join(s.requestPrefix, id)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("запись запроса на передачу: %w", err)
	}

	s.logger.Info("Запрос на передачу принят",
		slog.String("transfer_id", id),
		slog.String("source_type", string(req.SourceType)),
		slog.String("destination_type", string(req.DestinationType)),
	)
	return id, nil
}

// Get возвращает запись о передаче.
func (s *TransferService) Get(ctx context.Context, id string) (*model.Transfer, error) {
	t, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "передача "+id)
	}
	return t, nil
}

// States возвращает историю состояний в порядке поступления.
// Неизвестная передача — ErrNotFound, передача без состояний — пустой список.
func (s *TransferService) States(ctx context.Context, id string) ([]*model.TransferStatus, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	list, err := s.statuses.ListByTransfer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("получение истории состояний: %w", err)
	}
	return list, nil
}

// LatestState возвращает последнее поступившее состояние.
func (s *TransferService) LatestState(ctx context.Context, id string) (*model.TransferStatus, error) {
	st, err := s.statuses.Latest(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "состояние передачи "+id)
	}
	return st, nil
}

// mapRepoError переводит ошибки репозитория в ошибки сервиса.
func mapRepoError(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

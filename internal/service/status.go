// status.go — приём состояний передач, публикуемых агентами.
//
// StatusService подписывается на префикс состояний (MFT_STATE_PREFIX).
// Каждое состояние декодируется и добавляется в историю передачи.
// Состояния передач, отсутствующих в журнале, отбрасываются.
// Ключ удаляется всегда. Порядок и дубликаты не проверяются.
//
// Prometheus-метрики:
//   - mft_status_updates_total{result} — результат обработки состояния
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/mft/internal/coordination"
	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/repository"
)

var statusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mft_status_updates_total",
	Help: "Количество обработанных состояний передач",
}, []string{"result"}) // result: recorded, decode_error, unknown_transfer, lookup_error, append_error, panic

const (
	statusRecorded        = "recorded"
	statusDecodeError     = "decode_error"
	statusUnknownTransfer = "unknown_transfer"
	statusLookupError     = "lookup_error"
	statusAppendError     = "append_error"
)

// StatusService — координатор состояний передач.
type StatusService struct {
	store     coordination.Store
	transfers repository.TransferRepository
	statuses  repository.TransferStatusRepository
	prefix    string
	timeout   time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStatusService создаёт координатор состояний.
func NewStatusService(
	store coordination.Store,
	transfers repository.TransferRepository,
	statuses repository.TransferStatusRepository,
	prefix string,
	timeout time.Duration,
	logger *slog.Logger,
) *StatusService {
	return &StatusService{
		store:     store,
		transfers: transfers,
		statuses:  statuses,
		prefix:    prefix,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "status")),
	}
}

// Start запускает подписку на префикс состояний.
func (s *StatusService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Приём состояний передач запущен", slog.String("prefix", s.prefix))
		for batch := range s.store.Watch(ctx, s.prefix) {
			for _, pair := range batch {
				s.handle(ctx, pair)
			}
		}
		s.logger.Info("Приём состояний передач остановлен")
	}()
}

// Stop останавливает подписку и ждёт завершения.
func (s *StatusService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

func (s *StatusService) handle(ctx context.Context, pair coordination.Pair) {
	transferID := coordination.KeyID(pair.Key)
	logger := s.logger.With(
		slog.String("key", pair.Key),
		slog.String("transfer_id", transferID),
	)

	result := resultPanic
	defer func() {
		deleteKey(ctx, s.store, pair.Key, s.timeout, logger)
		statusUpdatesTotal.WithLabelValues(result).Inc()
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника при обработке состояния передачи", slog.Any("panic", r))
		}
	}()

	result = s.process(ctx, transferID, pair.Value, logger)
}

func (s *StatusService) process(ctx context.Context, transferID string, value []byte, logger *slog.Logger) string {
	var st model.TransferState
	if err := json.Unmarshal(value, &st); err != nil {
		logger.Error("Некорректное состояние передачи", slog.String("error", err.Error()))
		return statusDecodeError
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err := s.transfers.GetByID(lookupCtx, transferID)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		logger.Debug("Состояние неизвестной передачи отброшено", slog.String("state", string(st.State)))
		return statusUnknownTransfer
	}
	if err != nil {
		logger.Error("Ошибка поиска передачи", slog.String("error", err.Error()))
		return statusLookupError
	}

	status := model.NewTransferStatus(transferID, &st)
	appendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.statuses.Append(appendCtx, status)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		logger.Debug("Состояние неизвестной передачи отброшено", slog.String("state", string(st.State)))
		return statusUnknownTransfer
	}
	if err != nil {
		logger.Error("Ошибка записи состояния передачи", slog.String("error", err.Error()))
		return statusAppendError
	}

	logger.Info("Состояние передачи записано",
		slog.String("state", string(st.State)),
		slog.Float64("percentage", st.Percentage),
		slog.String("publisher", st.Publisher),
	)
	return statusRecorded
}

// intake.go — приём запросов на передачу из координационного хранилища.
//
// IntakeService подписывается на префикс запросов (MFT_REQUEST_PREFIX) и
// обрабатывает каждый ключ изолированно:
//  1. transferId — последний сегмент ключа
//  2. Декодирование TransferRequest
//  3. Сохранение Transfer в журнал
//  4. Выбор живого агента
//  5. Отправка TransferCommand агенту
//  6. Удаление ключа запроса (всегда, в том числе после ошибки или паники)
//
// Доставка не более одного раза: ключ удаляется даже при неудаче,
// повторных попыток нет.
//
// Prometheus-метрики:
//   - mft_intake_requests_total{result} — результат обработки запроса
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/mft/internal/coordination"
	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/repository"
)

var intakeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mft_intake_requests_total",
	Help: "Количество обработанных запросов на передачу",
}, []string{"result"}) // result: dispatched, decode_error, save_error, no_agent, send_error, panic

// Результаты обработки запроса.
const (
	intakeDispatched  = "dispatched"
	intakeDecodeError = "decode_error"
	intakeSaveError   = "save_error"
	intakeNoAgent     = "no_agent"
	intakeSendError   = "send_error"
	resultPanic       = "panic"
)

// AgentDispatcher — реестр агентов (agent.Registry).
type AgentDispatcher interface {
	ListLiveAgentIDs(ctx context.Context) ([]string, error)
	SendCommand(ctx context.Context, agentID string, cmd *model.TransferCommand) error
}

// IntakeService — координатор приёма запросов.
type IntakeService struct {
	store     coordination.Store
	transfers repository.TransferRepository
	agents    AgentDispatcher
	prefix    string
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewIntakeService создаёт координатор приёма запросов.
// timeout — ограничение на каждый внешний вызов (MFT_OPERATION_TIMEOUT).
func NewIntakeService(
	store coordination.Store,
	transfers repository.TransferRepository,
	agents AgentDispatcher,
	prefix string,
	timeout time.Duration,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		store:     store,
		transfers: transfers,
		agents:    agents,
		prefix:    prefix,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "intake")),
	}
}

// Start запускает подписку на префикс запросов.
// Вызывается один раз при старте приложения.
func (s *IntakeService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Приём запросов на передачу запущен", slog.String("prefix", s.prefix))
		for batch := range s.store.Watch(ctx, s.prefix) {
			for _, pair := range batch {
				s.handle(ctx, pair)
			}
		}
		s.logger.Info("Приём запросов на передачу остановлен")
	}()
}

// Stop останавливает подписку и ждёт завершения текущего ключа.
func (s *IntakeService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// handle обрабатывает один ключ запроса. Ошибки и паники не выходят за его пределы.
func (s *IntakeService) handle(ctx context.Context, pair coordination.Pair) {
	transferID := coordination.KeyID(pair.Key)
	logger := s.logger.With(
		slog.String("key", pair.Key),
		slog.String("transfer_id", transferID),
	)

	result := resultPanic
	defer func() {
		deleteKey(ctx, s.store, pair.Key, s.timeout, logger)
		intakeRequestsTotal.WithLabelValues(result).Inc()
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника при обработке запроса на передачу", slog.Any("panic", r))
		}
	}()

	result = s.process(ctx, transferID, pair.Value, logger)
}

// process выполняет шаги 2–5 и возвращает метку результата.
func (s *IntakeService) process(ctx context.Context, transferID string, value []byte, logger *slog.Logger) string {
	var req model.TransferRequest
	if err := json.Unmarshal(value, &req); err != nil {
		logger.Error("Некорректный запрос на передачу", slog.String("error", err.Error()))
		return intakeDecodeError
	}
	if transferID == "" {
		logger.Error("Пустой идентификатор передачи в ключе запроса")
		return intakeDecodeError
	}
	// Неполный запрос всё равно попадает в журнал и назначается агенту.
	if err := req.Validate(); err != nil {
		logger.Warn("Неполное описание передачи", slog.String("error", err.Error()))
	}

	transfer := model.NewTransfer(transferID, &req, s.now())
	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.transfers.Save(ctx, transfer)
	}); err != nil {
		logger.Error("Ошибка сохранения передачи", slog.String("error", err.Error()))
		return intakeSaveError
	}

	var live []string
	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		live, err = s.agents.ListLiveAgentIDs(ctx)
		return err
	}); err != nil {
		logger.Error("Ошибка получения списка живых агентов", slog.String("error", err.Error()))
		return intakeNoAgent
	}

	agentID, err := PickAgent(&req, live)
	if err != nil {
		logger.Error("Не удалось назначить передачу агенту",
			slog.String("error", err.Error()),
			slog.Int("live_agents", len(live)),
			slog.Int("target_agents", len(req.TargetAgents)),
		)
		return intakeNoAgent
	}

	cmd := model.NewTransferCommand(transfer)
	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.agents.SendCommand(ctx, agentID, cmd)
	}); err != nil {
		logger.Error("Ошибка отправки команды агенту",
			slog.String("agent_id", agentID),
			slog.String("error", err.Error()),
		)
		return intakeSendError
	}

	logger.Info("Передача назначена агенту",
		slog.String("agent_id", agentID),
		slog.String("command", cmd.String()),
	)
	return intakeDispatched
}

func (s *IntakeService) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

// PickAgent выбирает агента для передачи:
//   - есть целевые агенты — первый по id, который жив
//   - нет целевых и affinityTransfer=false — первый живой агент
//   - affinityTransfer без целевых агентов — ошибка
func PickAgent(req *model.TransferRequest, live []string) (string, error) {
	if len(live) == 0 {
		return "", ErrNoLiveAgents
	}

	if len(req.TargetAgents) > 0 {
		alive := make(map[string]bool, len(live))
		for _, id := range live {
			alive[id] = true
		}
		targets := make([]string, 0, len(req.TargetAgents))
		for id := range req.TargetAgents {
			targets = append(targets, id)
		}
		sort.Strings(targets)
		for _, id := range targets {
			if alive[id] {
				return id, nil
			}
		}
		return "", fmt.Errorf("%w: %v", ErrNoEligibleAgent, targets)
	}

	if !req.AffinityTransfer {
		return live[0], nil
	}
	return "", ErrAffinityWithoutTargets
}

// deleteKey удаляет обработанный ключ. Контекст отвязан от отмены подписки,
// чтобы ключ удалялся и при остановке.
func deleteKey(ctx context.Context, store coordination.Store, key string, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := store.Delete(ctx, key); err != nil && !errors.Is(err, coordination.ErrKeyNotFound) {
		logger.Error("Ошибка удаления обработанного ключа", slog.String("error", err.Error()))
	}
}

// Пакет handlers — HTTP-обработчики API MFT Controller.
//
// Маршруты:
//   - /api/v1/transfers — приём запросов на передачу и чтение их статуса
//   - /api/v1/resources/{id}/metadata, /availability — метаданные ресурсов через сборщики
//   - /api/v1/storages, /api/v1/resources — SQL-реестр ресурсов
//   - /api/v1/agents — живые агенты
//   - /health/live, /health/ready, /metrics
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/mft/internal/agent"
	apierrors "github.com/bigkaa/mft/internal/api/errors"
	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/service"
)

// maxBodySize — предел размера тела запроса.
const maxBodySize = 1 << 20

// TransferAPI — сервис передач (service.TransferService).
type TransferAPI interface {
	Submit(ctx context.Context, req *model.TransferRequest) (string, error)
	Get(ctx context.Context, id string) (*model.Transfer, error)
	States(ctx context.Context, id string) ([]*model.TransferStatus, error)
	LatestState(ctx context.Context, id string) (*model.TransferStatus, error)
}

// MetadataAPI — сервис метаданных (service.MetadataService).
type MetadataAPI interface {
	FileMetadata(ctx context.Context, auth model.AuthToken, q service.MetadataQuery) (*model.FileMetadata, error)
	DirectoryMetadata(ctx context.Context, auth model.AuthToken, q service.MetadataQuery) (*model.DirectoryMetadata, error)
	Available(ctx context.Context, auth model.AuthToken, q service.MetadataQuery) (bool, error)
}

// RegistryAPI — SQL-реестр ресурсов (service.ResourceService).
type RegistryAPI interface {
	CreateStorage(ctx context.Context, st *model.Storage) (*model.Storage, error)
	GetStorage(ctx context.Context, id string) (*model.Storage, error)
	DeleteStorage(ctx context.Context, id string) error
	CreateResource(ctx context.Context, res *model.Resource) (*model.Resource, error)
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	DeleteResource(ctx context.Context, id string) error
}

// AgentLister — реестр агентов (agent.Registry).
type AgentLister interface {
	ListAgents(ctx context.Context) ([]agent.Info, error)
}

// Handler — обработчики API.
type Handler struct {
	transfers TransferAPI
	metadata  MetadataAPI
	registry  RegistryAPI
	agents    AgentLister
	health    *HealthHandler
	logger    *slog.Logger
}

// New создаёт обработчики API.
func New(
	transfers TransferAPI,
	metadata MetadataAPI,
	registry RegistryAPI,
	agents AgentLister,
	health *HealthHandler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		transfers: transfers,
		metadata:  metadata,
		registry:  registry,
		agents:    agents,
		health:    health,
		logger:    logger.With(slog.String("component", "api")),
	}
}

// Routes регистрирует маршруты на роутере.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/transfers", h.SubmitTransfer)
		r.Get("/transfers/{id}", h.GetTransfer)
		r.Get("/transfers/{id}/states", h.ListTransferStates)
		r.Get("/transfers/{id}/state", h.GetLatestTransferState)

		r.Get("/resources/{id}/metadata", h.GetResourceMetadata)
		r.Get("/resources/{id}/availability", h.GetResourceAvailability)

		r.Post("/storages", h.CreateStorage)
		r.Get("/storages/{id}", h.GetStorage)
		r.Delete("/storages/{id}", h.DeleteStorage)
		r.Post("/resources", h.CreateResource)
		r.Get("/resources/{id}", h.GetResource)
		r.Delete("/resources/{id}", h.DeleteResource)

		r.Get("/agents", h.ListAgents)
	})
}

// writeJSON записывает JSON-ответ.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON разбирает тело запроса; неизвестные поля — ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("пустое тело запроса")
		}
		return fmt.Errorf("некорректный JSON: %w", err)
	}
	return nil
}

// fail пишет ответ по ошибке сервиса.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	apierrors.FromError(w, err, h.logger)
}

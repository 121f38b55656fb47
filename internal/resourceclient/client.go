// Пакет resourceclient — разрешение идентификатора ресурса в описание
// хранилища и пути. Поддерживает несколько экземпляров реестра ресурсов,
// выбираемых селектором backend ("http", "sql").
package resourceclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/lookup"
	"github.com/bigkaa/mft/internal/repository"
)

// Ошибки реестра ресурсов.
var (
	// ErrNotFound — ресурс не зарегистрирован.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrUnknownBackend — селектор не соответствует ни одному реестру.
	ErrUnknownBackend = errors.New("неизвестный backend реестра ресурсов")
)

// Backend — один экземпляр реестра ресурсов.
type Backend interface {
	GetResource(ctx context.Context, auth model.AuthToken, resourceID string) (*model.Resource, error)
}

// --- HTTP ---

// HTTPBackend — реестр ресурсов, доступный по HTTP:
// GET {baseURL}/api/v1/resources/{id}.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPBackend создаёт HTTP-реестр ресурсов.
func NewHTTPBackend(baseURL string, httpClient *http.Client) *HTTPBackend {
	return &HTTPBackend{baseURL: lookup.NormalizeURL(baseURL), httpClient: httpClient}
}

// GetResource запрашивает ресурс у HTTP-сервиса.
func (b *HTTPBackend) GetResource(ctx context.Context, auth model.AuthToken, resourceID string) (*model.Resource, error) {
	reqURL := b.baseURL + "/api/v1/resources/" + url.PathEscape(resourceID)

	var res model.Resource
	if err := lookup.GetJSON(ctx, b.httpClient, reqURL, auth, &res); err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, resourceID)
		}
		return nil, fmt.Errorf("получение ресурса %s: %w", resourceID, err)
	}
	if res.ID == "" {
		res.ID = resourceID
	}
	return &res, nil
}

// --- SQL ---

// SQLBackend — реестр ресурсов в PostgreSQL контроллера.
type SQLBackend struct {
	repo repository.ResourceRepository
}

// NewSQLBackend создаёт SQL-реестр ресурсов.
func NewSQLBackend(repo repository.ResourceRepository) *SQLBackend {
	return &SQLBackend{repo: repo}
}

// GetResource читает ресурс из таблиц storages/resources. Токен не используется.
func (b *SQLBackend) GetResource(ctx context.Context, _ model.AuthToken, resourceID string) (*model.Resource, error) {
	res, err := b.repo.GetResource(ctx, resourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, resourceID)
		}
		return nil, err
	}
	return res, nil
}

// --- Router ---

// Router выбирает реестр по селектору. Пустой селектор — реестр по умолчанию.
type Router struct {
	backends       map[string]Backend
	defaultBackend string
	logger         *slog.Logger
}

// NewRouter создаёт маршрутизатор реестров ресурсов.
func NewRouter(defaultBackend string, logger *slog.Logger) *Router {
	return &Router{
		backends:       make(map[string]Backend),
		defaultBackend: strings.ToLower(defaultBackend),
		logger:         logger.With(slog.String("component", "resource_client")),
	}
}

// Register добавляет реестр под именем селектора. Вызывается при старте.
func (r *Router) Register(name string, b Backend) {
	r.backends[strings.ToLower(name)] = b
}

// Backends возвращает имена зарегистрированных реестров.
func (r *Router) Backends() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetResource разрешает ресурс через реестр, выбранный селектором.
func (r *Router) GetResource(ctx context.Context, auth model.AuthToken, resourceID, backend string) (*model.Resource, error) {
	name := strings.ToLower(strings.TrimSpace(backend))
	if name == "" {
		name = r.defaultBackend
	}
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	res, err := b.GetResource(ctx, auth, resourceID)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Ресурс разрешён",
		slog.String("resource_id", resourceID),
		slog.String("backend", name),
		slog.String("storage_type", string(res.Storage.Type)),
	)
	return res, nil
}

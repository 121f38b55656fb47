// Пакет agent — реестр агентов передачи поверх координационного хранилища.
// Живой агент держит ключ <livePrefix>/<agentId>; команды агенту кладутся
// в его почтовый ящик <messagePrefix>/<agentId>/<transferId>.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/mft/internal/coordination"
	"github.com/bigkaa/mft/internal/domain/model"
)

// ErrInvalidAgentID — пустой идентификатор агента.
var ErrInvalidAgentID = errors.New("некорректный идентификатор агента")

// Info — сведения, которые агент публикует в своём ключе живости.
type Info struct {
	ID        string    `json:"id"`
	Host      string    `json:"host,omitempty"`
	User      string    `json:"user,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
}

// Registry — реестр агентов.
type Registry struct {
	store         coordination.Store
	livePrefix    string
	messagePrefix string
	logger        *slog.Logger
}

// NewRegistry создаёт реестр агентов.
func NewRegistry(store coordination.Store, livePrefix, messagePrefix string, logger *slog.Logger) *Registry {
	return &Registry{
		store:         store,
		livePrefix:    livePrefix,
		messagePrefix: messagePrefix,
		logger:        logger.With(slog.String("component", "agent_registry")),
	}
}

// ListLiveAgentIDs возвращает идентификаторы живых агентов в порядке ключей хранилища.
// Результат не кэшируется: каждое решение о назначении опрашивает хранилище заново.
func (r *Registry) ListLiveAgentIDs(ctx context.Context) ([]string, error) {
	pairs, err := r.store.List(ctx, r.livePrefix)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка агентов: %w", err)
	}

	ids := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if id := r.agentID(p.Key); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListAgents возвращает сведения о живых агентах. Некорректное значение ключа
// не скрывает агента: заполняется только ID.
func (r *Registry) ListAgents(ctx context.Context) ([]Info, error) {
	pairs, err := r.store.List(ctx, r.livePrefix)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка агентов: %w", err)
	}

	agents := make([]Info, 0, len(pairs))
	for _, p := range pairs {
		id := r.agentID(p.Key)
		if id == "" {
			continue
		}
		var info Info
		if len(p.Value) > 0 {
			if err := json.Unmarshal(p.Value, &info); err != nil {
				r.logger.Debug("Некорректные сведения об агенте",
					slog.String("agent_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
		info.ID = id
		agents = append(agents, info)
	}
	return agents, nil
}

// agentID извлекает id из ключа <livePrefix>/<agentId>. List рекурсивен,
// вложенные ключи (<livePrefix>/<agentId>/...) агентами не считаются.
func (r *Registry) agentID(key string) string {
	rest, ok := strings.CutPrefix(strings.TrimPrefix(key, "/"), coordination.Join(r.livePrefix)+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

// SendCommand кладёт команду в почтовый ящик агента.
func (r *Registry) SendCommand(ctx context.Context, agentID string, cmd *model.TransferCommand) error {
	if agentID == "" {
		return ErrInvalidAgentID
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("ошибка сериализации команды: %w", err)
	}

	key := coordination.Join(r.messagePrefix, agentID, cmd.TransferID)
	if err := r.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("ошибка доставки команды агенту %s: %w", agentID, err)
	}

	r.logger.Debug("Команда помещена в почтовый ящик агента",
		slog.String("agent_id", agentID),
		slog.String("key", key),
	)
	return nil
}

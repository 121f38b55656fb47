package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor ждёт выполнения условия или падает по таймауту.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("таймаут ожидания: %s", what)
}

// --- Журнал передач ---

type mockTransferRepo struct {
	mu     sync.Mutex
	items  map[string]*model.Transfer
	saveFn func(t *model.Transfer) error
	getFn  func(id string) (*model.Transfer, error)
}

func newMockTransferRepo() *mockTransferRepo {
	return &mockTransferRepo{items: make(map[string]*model.Transfer)}
}

func (m *mockTransferRepo) Save(_ context.Context, t *model.Transfer) error {
	if m.saveFn != nil {
		return m.saveFn(t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[t.ID]; ok {
		return fmt.Errorf("%w: %s", repository.ErrConflict, t.ID)
	}
	cp := *t
	m.items[t.ID] = &cp
	return nil
}

func (m *mockTransferRepo) GetByID(_ context.Context, id string) (*model.Transfer, error) {
	if m.getFn != nil {
		return m.getFn(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (m *mockTransferRepo) get(id string) *model.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

// --- История состояний ---

type mockStatusRepo struct {
	mu       sync.Mutex
	rows     []*model.TransferStatus
	appendFn func(s *model.TransferStatus) error
}

func (m *mockStatusRepo) Append(_ context.Context, s *model.TransferStatus) error {
	if m.appendFn != nil {
		if err := m.appendFn(s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *mockStatusRepo) ListByTransfer(_ context.Context, transferID string) ([]*model.TransferStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.TransferStatus
	for _, r := range m.rows {
		if r.TransferID == transferID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStatusRepo) Latest(ctx context.Context, transferID string) (*model.TransferStatus, error) {
	list, _ := m.ListByTransfer(ctx, transferID)
	if len(list) == 0 {
		return nil, repository.ErrNotFound
	}
	return list[len(list)-1], nil
}

func (m *mockStatusRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// --- Реестр агентов ---

type sentCommand struct {
	agentID string
	cmd     *model.TransferCommand
}

type mockAgents struct {
	mu     sync.Mutex
	live   []string
	liveFn func() ([]string, error)
	sendFn func(agentID string, cmd *model.TransferCommand) error
	sent   []sentCommand
}

func (m *mockAgents) ListLiveAgentIDs(context.Context) ([]string, error) {
	if m.liveFn != nil {
		return m.liveFn()
	}
	return m.live, nil
}

func (m *mockAgents) SendCommand(_ context.Context, agentID string, cmd *model.TransferCommand) error {
	if m.sendFn != nil {
		if err := m.sendFn(agentID, cmd); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentCommand{agentID: agentID, cmd: cmd})
	return nil
}

func (m *mockAgents) commands() []sentCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentCommand(nil), m.sent...)
}

package coordination

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore — координационное хранилище в памяти процесса с той же
// семантикой индексов, что у Consul KV. Используется в тестах и для
// локального запуска без Consul.
type MemoryStore struct {
	mu      sync.Mutex
	index   uint64
	data    map[string]memEntry
	changed chan struct{}

	waitTime time.Duration
	logger   *slog.Logger
}

type memEntry struct {
	value       []byte
	modifyIndex uint64
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		index:    1,
		data:     make(map[string]memEntry),
		changed:  make(chan struct{}),
		waitTime: time.Minute,
		logger:   logger.With(slog.String("component", "memory_store")),
	}
}

// Get возвращает значение ключа или ErrKeyNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return append([]byte(nil), e.value...), nil
}

// Put записывает значение ключа.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index++
	s.data[key] = memEntry{value: append([]byte(nil), value...), modifyIndex: s.index}
	s.notifyLocked()
	return nil
}

// Delete удаляет ключ.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	s.index++
	delete(s.data, key)
	s.notifyLocked()
	return nil
}

// List возвращает все пары под префиксом, отсортированные по ключу.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(dirPrefix(prefix)), nil
}

// Keys возвращает все ключи хранилища (для проверок в тестах).
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Watch подписывается на изменения под префиксом.
func (s *MemoryStore) Watch(ctx context.Context, prefix string) <-chan Batch {
	return watchPrefix(ctx, s, prefix, s.logger)
}

func (s *MemoryStore) listWait(ctx context.Context, prefix string, waitIndex uint64) ([]Pair, uint64, error) {
	timer := time.NewTimer(s.waitTime)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.index > waitIndex {
			pairs, index := s.listLocked(prefix), s.index
			s.mu.Unlock()
			return pairs, index, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-changed:
		case <-timer.C:
			s.mu.Lock()
			pairs, index := s.listLocked(prefix), s.index
			s.mu.Unlock()
			return pairs, index, nil
		}
	}
}

func (s *MemoryStore) listLocked(prefix string) []Pair {
	var pairs []Pair
	for k, e := range s.data {
		if strings.HasPrefix(k, prefix) {
			pairs = append(pairs, Pair{Key: k, Value: append([]byte(nil), e.value...), ModifyIndex: e.modifyIndex})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs
}

// notifyLocked будит всех ожидающих listWait.
func (s *MemoryStore) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

package coordination

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"
)

// ConsulConfig — параметры подключения к Consul.
type ConsulConfig struct {
	// Address — host:port агента Consul
	Address string
	// Scheme — http или https
	Scheme string
	// Token — ACL-токен (опционально)
	Token string
	// WaitTime — максимальная длительность blocking query
	WaitTime time.Duration
}

// ConsulStore — координационное хранилище поверх Consul KV.
// Подписка реализована через blocking query (WaitIndex).
type ConsulStore struct {
	client   *api.Client
	kv       *api.KV
	waitTime time.Duration
	logger   *slog.Logger
}

// NewConsulStore создаёт клиент Consul. Подключение не проверяется.
func NewConsulStore(cfg ConsulConfig, logger *slog.Logger) (*ConsulStore, error) {
	ccfg := api.DefaultConfig()
	if cfg.Address != "" {
		ccfg.Address = cfg.Address
	}
	if cfg.Scheme != "" {
		ccfg.Scheme = cfg.Scheme
	}
	if cfg.Token != "" {
		ccfg.Token = cfg.Token
	}

	client, err := api.NewClient(ccfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента Consul: %w", err)
	}

	waitTime := cfg.WaitTime
	if waitTime <= 0 {
		waitTime = 5 * time.Minute
	}

	return &ConsulStore{
		client:   client,
		kv:       client.KV(),
		waitTime: waitTime,
		logger:   logger.With(slog.String("component", "consul_store")),
	}, nil
}

// Get возвращает значение ключа или ErrKeyNotFound.
func (s *ConsulStore) Get(ctx context.Context, key string) ([]byte, error) {
	pair, _, err := s.kv.Get(key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("consul get %s: %w", key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return pair.Value, nil
}

// Put записывает значение ключа.
func (s *ConsulStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.kv.Put(&api.KVPair{Key: key, Value: value}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("consul put %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ.
func (s *ConsulStore) Delete(ctx context.Context, key string) error {
	_, err := s.kv.Delete(key, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("consul delete %s: %w", key, err)
	}
	return nil
}

// List возвращает все пары под префиксом.
func (s *ConsulStore) List(ctx context.Context, prefix string) ([]Pair, error) {
	kvs, _, err := s.kv.List(dirPrefix(prefix), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("consul list %s: %w", prefix, err)
	}
	return toPairs(kvs), nil
}

// Watch подписывается на изменения под префиксом.
func (s *ConsulStore) Watch(ctx context.Context, prefix string) <-chan Batch {
	return watchPrefix(ctx, s, prefix, s.logger)
}

func (s *ConsulStore) listWait(ctx context.Context, prefix string, waitIndex uint64) ([]Pair, uint64, error) {
	q := &api.QueryOptions{WaitIndex: waitIndex, WaitTime: s.waitTime}
	kvs, meta, err := s.kv.List(prefix, q.WithContext(ctx))
	if err != nil {
		return nil, 0, fmt.Errorf("consul list %s: %w", prefix, err)
	}
	return toPairs(kvs), meta.LastIndex, nil
}

// CheckReady проверяет наличие лидера кластера Consul.
// Реализует интерфейс handlers.ReadinessChecker.
func (s *ConsulStore) CheckReady() (status string, message string) {
	leader, err := s.client.Status().Leader()
	if err != nil {
		return "fail", fmt.Sprintf("Consul недоступен: %v", err)
	}
	if leader == "" {
		return "fail", "в кластере Consul нет лидера"
	}
	return "ok", "лидер " + leader
}

func toPairs(kvs api.KVPairs) []Pair {
	pairs := make([]Pair, 0, len(kvs))
	for _, kv := range kvs {
		pairs = append(pairs, Pair{Key: kv.Key, Value: kv.Value, ModifyIndex: kv.ModifyIndex})
	}
	return pairs
}

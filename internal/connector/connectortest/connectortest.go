// Пакет connectortest — статические реестр ресурсов и хранилище секретов
// для тестов сборщиков метаданных.
package connectortest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/resourceclient"
	"github.com/bigkaa/mft/internal/secretclient"
)

// Resources — реестр ресурсов в памяти. Считает обращения.
type Resources struct {
	mu    sync.Mutex
	items map[string]*model.Resource
	Calls int
}

// NewResources создаёт реестр из списка ресурсов.
func NewResources(items ...*model.Resource) *Resources {
	r := &Resources{items: make(map[string]*model.Resource)}
	for _, it := range items {
		r.items[it.ID] = it
	}
	return r
}

// GetResource возвращает копию ресурса или resourceclient.ErrNotFound.
func (r *Resources) GetResource(_ context.Context, _ model.AuthToken, resourceID, _ string) (*model.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++

	res, ok := r.items[resourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", resourceclient.ErrNotFound, resourceID)
	}
	cp := *res
	return &cp, nil
}

// Secrets — хранилище секретов в памяти. Считает обращения.
type Secrets struct {
	mu    sync.Mutex
	items map[string]*model.Secret
	Calls int
}

// NewSecrets создаёт пустое хранилище секретов.
func NewSecrets() *Secrets {
	return &Secrets{items: make(map[string]*model.Secret)}
}

// Put кладёт секрет, сериализуя payload в JSON.
func (s *Secrets) Put(token string, payload any) *Secrets {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[token] = &model.Secret{ID: token, Payload: data}
	return s
}

// GetSecret возвращает секрет или secretclient.ErrNotFound.
func (s *Secrets) GetSecret(_ context.Context, _ model.AuthToken, token, _ string) (*model.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++

	secret, ok := s.items[token]
	if !ok {
		return nil, secretclient.ErrNotFound
	}
	cp := *secret
	return &cp, nil
}

// Resource строит ресурс с конфигурацией хранилища, сериализованной в JSON.
func Resource(id string, storageType model.StorageType, kind model.ResourceKind, path string, storageConfig any) *model.Resource {
	data, err := json.Marshal(storageConfig)
	if err != nil {
		panic(err)
	}
	return &model.Resource{
		ID:      id,
		Storage: model.Storage{ID: "storage-" + id, Type: storageType, Config: data},
		Kind:    kind,
		Path:    path,
	}
}

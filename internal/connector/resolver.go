package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bigkaa/mft/internal/domain/model"
)

// Factory создаёт новый неинициализированный сборщик.
type Factory func() MetadataCollector

// Resolver — таблица тип хранилища → фабрика сборщика, заполняемая при старте.
type Resolver struct {
	mu        sync.RWMutex
	factories map[model.StorageType]Factory
	resources ResourceResolver
	secrets   SecretResolver
}

// NewResolver создаёт пустую таблицу сборщиков, привязанную к сервисам поиска.
func NewResolver(resources ResourceResolver, secrets SecretResolver) *Resolver {
	return &Resolver{
		factories: make(map[model.StorageType]Factory),
		resources: resources,
		secrets:   secrets,
	}
}

// Register регистрирует фабрику для типа хранилища. Повторная регистрация заменяет фабрику.
func (r *Resolver) Register(storageType model.StorageType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[storageType] = f
}

// Resolve возвращает новый инициализированный сборщик для типа хранилища.
func (r *Resolver) Resolve(storageType model.StorageType) (MetadataCollector, error) {
	r.mu.RLock()
	f, ok := r.factories[storageType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorageType, storageType)
	}

	c := f()
	if err := c.Init(r.resources, r.secrets); err != nil {
		return nil, fmt.Errorf("инициализация сборщика %s: %w", storageType, err)
	}
	return c, nil
}

// Types возвращает зарегистрированные типы хранилищ.
func (r *Resolver) Types() []model.StorageType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]model.StorageType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

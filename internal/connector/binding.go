package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/mft/internal/domain/model"
)

// Binding — привязка сборщика к сервисам поиска и двухшаговое разрешение ссылки.
// Встраивается в сборщики; Init должен завершиться до конкурентного использования.
type Binding struct {
	storageType model.StorageType
	resources   ResourceResolver
	secrets     SecretResolver
}

// NewBinding создаёт неинициализированную привязку для типа хранилища.
func NewBinding(storageType model.StorageType) Binding {
	return Binding{storageType: storageType}
}

// Init связывает сборщик с реестром ресурсов и хранилищем секретов.
func (b *Binding) Init(resources ResourceResolver, secrets SecretResolver) error {
	if resources == nil || secrets == nil {
		return errors.New("реестр ресурсов и хранилище секретов обязательны")
	}
	b.resources = resources
	b.secrets = secrets
	return nil
}

// Initialized сообщает, вызван ли Init.
func (b *Binding) Initialized() bool {
	return b.resources != nil && b.secrets != nil
}

// StorageType возвращает тип хранилища, которому служит привязка.
func (b *Binding) StorageType() model.StorageType {
	return b.storageType
}

// Resolve разрешает ресурс, затем учётные данные. Результат не кэшируется.
func (b *Binding) Resolve(ctx context.Context, auth model.AuthToken, ref Ref) (*model.Resource, *model.Secret, error) {
	res, err := b.ResolveResource(ctx, auth, ref)
	if err != nil {
		return nil, nil, err
	}

	secret, err := b.secrets.GetSecret(ctx, auth, ref.CredentialToken, ref.CredentialBackend)
	if err != nil {
		return nil, nil, &LookupError{Stage: StageSecret, Err: err}
	}

	return res, secret, nil
}

// ResolveResource разрешает только ресурс и проверяет тип его хранилища.
func (b *Binding) ResolveResource(ctx context.Context, auth model.AuthToken, ref Ref) (*model.Resource, error) {
	if !b.Initialized() {
		return nil, ErrNotInitialized
	}

	res, err := b.resources.GetResource(ctx, auth, ref.ResourceID, ref.ResourceBackend)
	if err != nil {
		return nil, &LookupError{Stage: StageResource, Err: err}
	}
	if b.storageType != "" && res.Storage.Type != "" && res.Storage.Type != b.storageType {
		return nil, fmt.Errorf("%w: ресурс %s в хранилище %s, сборщик %s",
			ErrStorageTypeMismatch, ref.ResourceID, res.Storage.Type, b.storageType)
	}
	return res, nil
}

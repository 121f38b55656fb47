// Пакет connector — контракт сборщиков метаданных удалённых хранилищ.
//
// Каждый вызов сборщика выполняет двухшаговое разрешение: сначала ресурс
// через реестр ресурсов, затем учётные данные через хранилище секретов.
// Только после этого открывается клиент конкретного бэкенда. Разрешённые
// ресурсы, секреты и клиенты между вызовами не кэшируются.
package connector

import (
	"context"

	"github.com/bigkaa/mft/internal/domain/model"
)

// ResourceResolver — реестр ресурсов (resourceclient.Router).
type ResourceResolver interface {
	GetResource(ctx context.Context, auth model.AuthToken, resourceID, backend string) (*model.Resource, error)
}

// SecretResolver — хранилище секретов (secretclient.Router).
type SecretResolver interface {
	GetSecret(ctx context.Context, auth model.AuthToken, token, backend string) (*model.Secret, error)
}

// Ref — ссылка на ресурс и учётные данные для доступа к нему.
type Ref struct {
	// ResourceID — идентификатор ресурса в реестре
	ResourceID string
	// CredentialToken — токен учётных данных в хранилище секретов
	CredentialToken string
	// ResourceBackend — селектор экземпляра реестра ресурсов
	ResourceBackend string
	// CredentialBackend — селектор экземпляра хранилища секретов
	CredentialBackend string
}

// MetadataCollector — сборщик метаданных одного типа хранилища.
//
// Init должен быть вызван до любого запроса; до этого все методы
// возвращают ErrNotInitialized. Неподдерживаемый бэкендом режим адресации
// возвращает ErrUnsupported. Отсутствие удалённого объекта — ErrNotFound,
// сбои реестра, хранилища секретов и удалённого API — *LookupError.
type MetadataCollector interface {
	// Init связывает сборщик с реестром ресурсов и хранилищем секретов.
	Init(resources ResourceResolver, secrets SecretResolver) error

	// GetFileMetadata возвращает метаданные файла, на который указывает ресурс.
	GetFileMetadata(ctx context.Context, auth model.AuthToken, ref Ref) (*model.FileMetadata, error)
	// GetChildFileMetadata — метаданные файла по относительному пути внутри ресурса-каталога.
	GetChildFileMetadata(ctx context.Context, auth model.AuthToken, parent Ref, relativePath string) (*model.FileMetadata, error)
	// GetDirectoryMetadata — метаданные каталога и его непосредственного содержимого.
	GetDirectoryMetadata(ctx context.Context, auth model.AuthToken, ref Ref) (*model.DirectoryMetadata, error)
	// GetChildDirectoryMetadata — метаданные подкаталога внутри ресурса-каталога.
	GetChildDirectoryMetadata(ctx context.Context, auth model.AuthToken, parent Ref, relativePath string) (*model.DirectoryMetadata, error)
	// IsAvailable проверяет существование ресурса. Отсутствие — (false, nil).
	IsAvailable(ctx context.Context, auth model.AuthToken, ref Ref) (bool, error)
	// IsChildAvailable проверяет существование пути внутри ресурса-каталога.
	IsChildAvailable(ctx context.Context, auth model.AuthToken, parent Ref, relativePath string) (bool, error)
}

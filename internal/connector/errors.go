package connector

import (
	"errors"
	"fmt"
)

// Ошибки сборщиков метаданных.
var (
	// ErrNotInitialized — вызов до Init.
	ErrNotInitialized = errors.New("сборщик метаданных не инициализирован")
	// ErrUnsupported — бэкенд не поддерживает этот режим адресации.
	ErrUnsupported = errors.New("операция не поддерживается бэкендом")
	// ErrNotFound — удалённый объект отсутствует.
	ErrNotFound = errors.New("удалённый объект не найден")
	// ErrUnknownStorageType — для типа хранилища не зарегистрирован сборщик.
	ErrUnknownStorageType = errors.New("неизвестный тип хранилища")
	// ErrStorageTypeMismatch — ресурс принадлежит хранилищу другого типа.
	ErrStorageTypeMismatch = errors.New("тип хранилища ресурса не совпадает с типом сборщика")
	// ErrInvalidPath — некорректный относительный путь или родитель не каталог.
	ErrInvalidPath = errors.New("некорректный путь")
)

// Этапы разрешения для LookupError.
const (
	StageResource = "resource"
	StageSecret   = "secret"
	StageRemote   = "remote"
)

// LookupError — сбой реестра ресурсов, хранилища секретов или удалённого API.
type LookupError struct {
	// Stage — этап: resource, secret, remote
	Stage string
	// Err — исходная ошибка
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("ошибка этапа %s: %v", e.Stage, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// RemoteError оборачивает сбой удалённого API. ErrNotFound не оборачивается.
func RemoteError(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnsupported) {
		return err
	}
	var le *LookupError
	if errors.As(err, &le) {
		return err
	}
	return &LookupError{Stage: StageRemote, Err: err}
}

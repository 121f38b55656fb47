// Пакет coordination — координационное хранилище ключ/значение с подпиской
// на изменения по префиксу. Используется как почтовый ящик запросов и состояний
// и как реестр живых агентов.
package coordination

import (
	"context"
	"errors"
	"strings"
)

// ErrKeyNotFound — ключ отсутствует в хранилище.
var ErrKeyNotFound = errors.New("ключ не найден")

// Pair — пара ключ/значение с индексом последнего изменения.
type Pair struct {
	Key         string
	Value       []byte
	ModifyIndex uint64
}

// Batch — пачка новых или изменённых пар, доставленная подпиской.
type Batch []Pair

// Store — координационное хранилище.
type Store interface {
	// Get возвращает значение ключа или ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put записывает значение ключа.
	Put(ctx context.Context, key string, value []byte) error
	// Delete удаляет ключ. Удаление отсутствующего ключа не ошибка.
	Delete(ctx context.Context, key string) error
	// List возвращает все пары под префиксом.
	List(ctx context.Context, prefix string) ([]Pair, error)
	// Watch подписывается на изменения под префиксом. Первая пачка содержит
	// все ключи, существовавшие на момент подписки. Канал закрывается при отмене ctx.
	Watch(ctx context.Context, prefix string) <-chan Batch
}

// KeyID возвращает последний сегмент пути ключа (идентификатор передачи).
func KeyID(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Join собирает ключ из сегментов через "/".
func Join(parts ...string) string {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			trimmed = append(trimmed, p)
		}
	}
	return strings.Join(trimmed, "/")
}

// dirPrefix — префикс каталога с завершающим "/".
func dirPrefix(prefix string) string {
	return strings.TrimRight(prefix, "/") + "/"
}

package coordination

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// listWaiter — blocking query: возвращает пары под префиксом, как только индекс
// хранилища превысит waitIndex (или по истечении времени ожидания).
type listWaiter interface {
	listWait(ctx context.Context, prefix string, waitIndex uint64) ([]Pair, uint64, error)
}

// watchPrefix запускает цикл blocking query и доставляет в канал только новые
// или изменённые пары. Ошибки хранилища повторяются с экспоненциальной задержкой.
func watchPrefix(ctx context.Context, src listWaiter, prefix string, logger *slog.Logger) <-chan Batch {
	out := make(chan Batch)
	dir := dirPrefix(prefix)
	log := logger.With(slog.String("prefix", dir))

	go func() {
		defer close(out)

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxInterval = 30 * time.Second
		bo.MaxElapsedTime = 0 // повторяем бесконечно, пока не отменён ctx

		seen := make(map[string]uint64)
		var waitIndex uint64

		for {
			pairs, index, err := src.listWait(ctx, dir, waitIndex)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				delay := bo.NextBackOff()
				log.Warn("Ошибка подписки на префикс, повтор",
					slog.String("error", err.Error()),
					slog.Duration("retry_in", delay),
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				continue
			}
			bo.Reset()

			// Индекс не должен уменьшаться; если уменьшился (сброс хранилища) — начинаем заново
			if index < waitIndex {
				log.Info("Индекс хранилища уменьшился, подписка сброшена",
					slog.Uint64("old_index", waitIndex),
					slog.Uint64("new_index", index),
				)
				waitIndex = 0
			} else {
				waitIndex = index
			}

			batch := diff(seen, pairs, dir)
			if len(batch) == 0 {
				continue
			}

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// diff отбирает пары, которых не было в seen или у которых изменился ModifyIndex,
// и обновляет seen. Исчезнувшие ключи забываются, повторное создание ключа
// с тем же именем снова попадает в пачку.
func diff(seen map[string]uint64, pairs []Pair, dir string) Batch {
	present := make(map[string]struct{}, len(pairs))
	var batch Batch

	for _, p := range pairs {
		// Ключ-каталог самого префикса не является сообщением
		if p.Key == dir {
			continue
		}
		present[p.Key] = struct{}{}
		if idx, ok := seen[p.Key]; ok && idx == p.ModifyIndex {
			continue
		}
		seen[p.Key] = p.ModifyIndex
		batch = append(batch, p)
	}

	for key := range seen {
		if _, ok := present[key]; !ok {
			delete(seen, key)
		}
	}
	return batch
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bigkaa/mft/internal/coordination"
	"github.com/bigkaa/mft/internal/domain/model"
)

const statePrefix = "mft/transfer/state"

type statusFixture struct {
	store     *coordination.MemoryStore
	transfers *mockTransferRepo
	statuses  *mockStatusRepo
	svc       *StatusService
}

func newStatusFixture(known ...string) *statusFixture {
	f := &statusFixture{
		store:     coordination.NewMemoryStore(discardLogger()),
		transfers: newMockTransferRepo(),
		statuses:  &mockStatusRepo{},
	}
	for _, id := range known {
		_ = f.transfers.Save(context.Background(), &model.Transfer{ID: id})
	}
	f.svc = NewStatusService(f.store, f.transfers, f.statuses, statePrefix, time.Second, discardLogger())
	return f
}

func (f *statusFixture) publish(t *testing.T, id, value string) {
	t.Helper()
	key := coordination.Join(statePrefix, id)
	if err := f.store.Put(context.Background(), key, []byte(value)); err != nil {
		t.Fatal(err)
	}
	f.svc.handle(context.Background(), coordination.Pair{Key: key, Value: []byte(value)})
	if _, err := f.store.Get(context.Background(), key); !errors.Is(err, coordination.ErrKeyNotFound) {
		t.Errorf("ключ %s не удалён после обработки: %v", key, err)
	}
}

func TestStatus_AppendsInArrivalOrder(t *testing.T) {
	f := newStatusFixture("T1")

	f.publish(t, "T1", `{"percentage":50,"state":"IN_PROGRESS","updateTimeMils":1000}`)
	f.publish(t, "T1", `{"percentage":100,"state":"COMPLETED","updateTimeMils":2000,"publisher":"A1"}`)

	rows, _ := f.statuses.ListByTransfer(context.Background(), "T1")
	if len(rows) != 2 {
		t.Fatalf("строк истории: %d, ожидается 2", len(rows))
	}
	if rows[0].State != model.JobInProgress || rows[0].Percentage != 50 || rows[0].UpdateTimeMillis != 1000 {
		t.Errorf("первая строка = %+v", rows[0])
	}
	if rows[1].State != model.JobCompleted || rows[1].Percentage != 100 || rows[1].Publisher != "A1" {
		t.Errorf("вторая строка = %+v", rows[1])
	}
}

func TestStatus_NoReorderingNoDedup(t *testing.T) {
	f := newStatusFixture("T1")

	f.publish(t, "T1", `{"percentage":100,"state":"COMPLETED","updateTimeMils":2000}`)
	f.publish(t, "T1", `{"percentage":50,"state":"IN_PROGRESS","updateTimeMils":1000}`)
	f.publish(t, "T1", `{"percentage":50,"state":"IN_PROGRESS","updateTimeMils":1000}`)

	rows, _ := f.statuses.ListByTransfer(context.Background(), "T1")
	if len(rows) != 3 || rows[0].State != model.JobCompleted {
		t.Errorf("история = %d строк, первая %+v", len(rows), rows[0])
	}
}

func TestStatus_UnknownTransferDropped(t *testing.T) {
	f := newStatusFixture()
	before := testutil.ToFloat64(statusUpdatesTotal.WithLabelValues(statusUnknownTransfer))

	f.publish(t, "T9", `{"percentage":10,"state":"RUNNING","updateTimeMils":1}`)

	if f.statuses.count() != 0 {
		t.Error("состояние неизвестной передачи записано")
	}
	if got := testutil.ToFloat64(statusUpdatesTotal.WithLabelValues(statusUnknownTransfer)) - before; got != 1 {
		t.Errorf("прирост unknown_transfer = %v, ожидается 1", got)
	}
}

func TestStatus_DecodeErrors(t *testing.T) {
	f := newStatusFixture("T1")

	for _, v := range []string{
		`garbage`,
		`{"percentage":150,"state":"RUNNING"}`,
		`{"percentage":10,"state":"EXPLODED"}`,
		`{"percentage":10}`,
	} {
		f.publish(t, "T1", v)
	}
	if f.statuses.count() != 0 {
		t.Errorf("записано %d некорректных состояний", f.statuses.count())
	}
}

func TestStatus_AliasFields(t *testing.T) {
	f := newStatusFixture("T1")

	f.publish(t, "T1", `{"percentage":20,"status":"running","updateTimeMillis":77}`)

	rows, _ := f.statuses.ListByTransfer(context.Background(), "T1")
	if len(rows) != 1 || rows[0].State != model.JobRunning || rows[0].UpdateTimeMillis != 77 {
		t.Errorf("история = %+v", rows)
	}
}

func TestStatus_PanicIsolated(t *testing.T) {
	f := newStatusFixture("T1")
	f.statuses.appendFn = func(s *model.TransferStatus) error {
		if s.Percentage == 13 {
			panic("сбой журнала")
		}
		return nil
	}

	f.publish(t, "T1", `{"percentage":13,"state":"RUNNING"}`)
	f.publish(t, "T1", `{"percentage":14,"state":"RUNNING"}`)

	if f.statuses.count() != 1 {
		t.Errorf("строк истории: %d, ожидается 1", f.statuses.count())
	}
}

func TestStatus_Watch(t *testing.T) {
	f := newStatusFixture("T1")
	ctx := context.Background()

	f.svc.Start(ctx)
	defer f.svc.Stop()

	if err := f.store.Put(ctx, statePrefix+"/T1", []byte(`{"percentage":50,"state":"IN_PROGRESS","updateTimeMils":1000}`)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "первое состояние", func() bool { return f.statuses.count() == 1 })

	// ключ удалён, поэтому то же имя снова доставляется как новое
	waitFor(t, "удаление ключа", func() bool {
		_, err := f.store.Get(ctx, statePrefix+"/T1")
		return errors.Is(err, coordination.ErrKeyNotFound)
	})
	if err := f.store.Put(ctx, statePrefix+"/T1", []byte(`{"percentage":100,"state":"COMPLETED","updateTimeMils":2000}`)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "второе состояние", func() bool { return f.statuses.count() == 2 })

	latest, _ := f.statuses.Latest(ctx, "T1")
	if latest.State != model.JobCompleted {
		t.Errorf("последнее состояние = %s", latest.State)
	}
}

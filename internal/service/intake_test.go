package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bigkaa/mft/internal/agent"
	"github.com/bigkaa/mft/internal/coordination"
	"github.com/bigkaa/mft/internal/domain/model"
)

const requestPrefix = "mft/controller/messages"

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func scpToS3(affinity bool, targets map[string]string) *model.TransferRequest {
	return &model.TransferRequest{
		SourceID:         "R1",
		SourceToken:      "C1",
		SourceType:       model.StorageSCP,
		DestinationID:    "R2",
		DestinationToken: "C2",
		DestinationType:  model.StorageS3,
		AffinityTransfer: affinity,
		TargetAgents:     targets,
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

type intakeFixture struct {
	store     *coordination.MemoryStore
	transfers *mockTransferRepo
	agents    *mockAgents
	svc       *IntakeService
}

func newIntakeFixture(live ...string) *intakeFixture {
	f := &intakeFixture{
		store:     coordination.NewMemoryStore(discardLogger()),
		transfers: newMockTransferRepo(),
		agents:    &mockAgents{live: live},
	}
	f.svc = NewIntakeService(f.store, f.transfers, f.agents, requestPrefix, time.Second, discardLogger())
	f.svc.now = func() time.Time { return fixedTime }
	return f
}

// submit кладёт значение в хранилище и обрабатывает ключ синхронно.
func (f *intakeFixture) submit(t *testing.T, id string, value []byte) {
	t.Helper()
	key := coordination.Join(requestPrefix, id)
	if err := f.store.Put(context.Background(), key, value); err != nil {
		t.Fatal(err)
	}
	f.svc.handle(context.Background(), coordination.Pair{Key: key, Value: value})
	if _, err := f.store.Get(context.Background(), key); !errors.Is(err, coordination.ErrKeyNotFound) {
		t.Errorf("ключ %s не удалён после обработки: %v", key, err)
	}
}

func TestIntake_DispatchToFirstLiveAgent(t *testing.T) {
	f := newIntakeFixture("A1")
	before := testutil.ToFloat64(intakeRequestsTotal.WithLabelValues(intakeDispatched))

	f.submit(t, "T1", mustJSON(t, scpToS3(false, nil)))

	saved := f.transfers.get("T1")
	if saved == nil {
		t.Fatal("передача T1 не сохранена")
	}
	if saved.Source.ResourceID != "R1" || saved.Destination.Type != model.StorageS3 || !saved.CreatedAt.Equal(fixedTime) {
		t.Errorf("сохранённая передача = %+v", saved)
	}

	cmds := f.agents.commands()
	if len(cmds) != 1 {
		t.Fatalf("отправлено команд: %d, ожидается 1", len(cmds))
	}
	if cmds[0].agentID != "A1" || cmds[0].cmd.TransferID != "T1" || cmds[0].cmd.SourceToken != "C1" {
		t.Errorf("команда = %s -> %+v", cmds[0].agentID, cmds[0].cmd)
	}

	if got := testutil.ToFloat64(intakeRequestsTotal.WithLabelValues(intakeDispatched)) - before; got != 1 {
		t.Errorf("прирост dispatched = %v, ожидается 1", got)
	}
}

func TestIntake_SchedulingFailures(t *testing.T) {
	tests := []struct {
		name string
		live []string
		req  *model.TransferRequest
	}{
		{"нет живых агентов", nil, scpToS3(false, nil)},
		{"affinity без целевых агентов", []string{"A1"}, scpToS3(true, nil)},
		{"целевые агенты не живы", []string{"A1"}, scpToS3(false, map[string]string{"A9": ""})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIntakeFixture(tt.live...)
			before := testutil.ToFloat64(intakeRequestsTotal.WithLabelValues(intakeNoAgent))

			f.submit(t, "T2", mustJSON(t, tt.req))

			if f.transfers.get("T2") == nil {
				t.Error("передача должна быть сохранена до выбора агента")
			}
			if n := len(f.agents.commands()); n != 0 {
				t.Errorf("отправлено команд: %d, ожидается 0", n)
			}
			if got := testutil.ToFloat64(intakeRequestsTotal.WithLabelValues(intakeNoAgent)) - before; got != 1 {
				t.Errorf("прирост no_agent = %v, ожидается 1", got)
			}
		})
	}
}

func TestIntake_DecodeError(t *testing.T) {
	f := newIntakeFixture("A1")

	before := testutil.ToFloat64(intakeRequestsTotal.WithLabelValues(intakeDecodeError))

	f.submit(t, "T3", []byte("{not json"))

	if f.transfers.get("T3") != nil {
		t.Error("некорректный запрос не должен попадать в журнал")
	}
	if n := len(f.agents.commands()); n != 0 {
		t.Errorf("отправлено команд: %d, ожидается 0", n)
	}
	if got := testutil.ToFloat64(intakeRequestsTotal.WithLabelValues(intakeDecodeError)) - before; got != 1 {
		t.Errorf("decode_error увеличен на %v, ожидается 1", got)
	}
}

func TestIntake_IncompleteRequestIsSaved(t *testing.T) {
	f := newIntakeFixture("A1")

	f.submit(t, "T9", []byte(`{"sourceId":"R1","sourceType":"SCP","affinityTransfer":false}`))

	saved := f.transfers.get("T9")
	if saved == nil {
		t.Fatal("декодируемый запрос без получателя должен попасть в журнал")
	}
	if saved.Source.ResourceID != "R1" || saved.Source.Type != model.StorageSCP {
		t.Errorf("source = %+v", saved.Source)
	}
	if saved.Destination.ResourceID != "" || saved.Destination.Type != "" {
		t.Errorf("destination = %+v, ожидается пустой", saved.Destination)
	}
	cmds := f.agents.commands()
	if len(cmds) != 1 || cmds[0].agentID != "A1" {
		t.Fatalf("команды = %+v, ожидается одна для A1", cmds)
	}
}

func TestIntake_SaveFailureStopsDispatch(t *testing.T) {
	f := newIntakeFixture("A1")
	f.transfers.saveFn = func(*model.Transfer) error { return errors.New("db down") }

	f.submit(t, "T5", mustJSON(t, scpToS3(false, nil)))

	if n := len(f.agents.commands()); n != 0 {
		t.Errorf("отправлено команд: %d, ожидается 0", n)
	}
}

func TestIntake_SendFailureIsNotRetried(t *testing.T) {
	f := newIntakeFixture("A1")
	calls := 0
	f.agents.sendFn = func(string, *model.TransferCommand) error {
		calls++
		return errors.New("consul unavailable")
	}

	f.submit(t, "T6", mustJSON(t, scpToS3(false, nil)))

	if calls != 1 {
		t.Errorf("попыток отправки: %d, ожидается 1", calls)
	}
}

func TestIntake_PanicIsolated(t *testing.T) {
	f := newIntakeFixture("A1")
	f.agents.sendFn = func(_ string, cmd *model.TransferCommand) error {
		if cmd.TransferID == "boom" {
			panic("сбой агента")
		}
		return nil
	}
	before := testutil.ToFloat64(intakeRequestsTotal.WithLabelValues(resultPanic))

	f.submit(t, "boom", mustJSON(t, scpToS3(false, nil)))
	f.submit(t, "next", mustJSON(t, scpToS3(false, nil)))

	cmds := f.agents.commands()
	if len(cmds) != 1 || cmds[0].cmd.TransferID != "next" {
		t.Errorf("команды после паники = %+v", cmds)
	}
	if got := testutil.ToFloat64(intakeRequestsTotal.WithLabelValues(resultPanic)) - before; got != 1 {
		t.Errorf("прирост panic = %v, ожидается 1", got)
	}
}

func TestIntake_WatchWithBacklogAndRegistry(t *testing.T) {
	store := coordination.NewMemoryStore(discardLogger())
	ctx := context.Background()
	transfers := newMockTransferRepo()
	registry := agent.NewRegistry(store, "mft/agent/live", "mft/agents/messages", discardLogger())

	if err := store.Put(ctx, "mft/agent/live/A1", []byte(`{"id":"A1"}`)); err != nil {
		t.Fatal(err)
	}
	// запрос, поступивший до старта контроллера
	if err := store.Put(ctx, requestPrefix+"/T1", mustJSON(t, scpToS3(false, nil))); err != nil {
		t.Fatal(err)
	}

	svc := NewIntakeService(store, transfers, registry, requestPrefix, time.Second, discardLogger())
	svc.Start(ctx)
	defer svc.Stop()

	waitFor(t, "команда T1 агенту A1", func() bool {
		_, err := store.Get(ctx, "mft/agents/messages/A1/T1")
		return err == nil
	})

	if err := store.Put(ctx, requestPrefix+"/T2", mustJSON(t, scpToS3(false, map[string]string{"A1": ""}))); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "команда T2 агенту A1", func() bool {
		_, err := store.Get(ctx, "mft/agents/messages/A1/T2")
		return err == nil
	})
	waitFor(t, "удаление ключей запросов", func() bool {
		pairs, _ := store.List(ctx, requestPrefix)
		return len(pairs) == 0
	})

	raw, _ := store.Get(ctx, "mft/agents/messages/A1/T1")
	var cmd model.TransferCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.TransferID != "T1" || cmd.SourceID != "R1" || cmd.DestinationType != model.StorageS3 {
		t.Errorf("команда = %+v", cmd)
	}
}

func TestPickAgent(t *testing.T) {
	tests := []struct {
		name    string
		req     *model.TransferRequest
		live    []string
		want    string
		wantErr error
	}{
		{"первый живой", scpToS3(false, nil), []string{"A2", "A1"}, "A2", nil},
		{"нет живых", scpToS3(false, nil), nil, "", ErrNoLiveAgents},
		{"целевой жив", scpToS3(true, map[string]string{"A3": "", "A1": ""}), []string{"A3", "A9"}, "A3", nil},
		{"целевые по порядку id", scpToS3(false, map[string]string{"B": "", "A": ""}), []string{"B", "A"}, "A", nil},
		{"нет пересечения", scpToS3(false, map[string]string{"X": ""}), []string{"A1"}, "", ErrNoEligibleAgent},
		{"affinity без целей", scpToS3(true, nil), []string{"A1"}, "", ErrAffinityWithoutTargets},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PickAgent(tt.req, tt.live)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидается %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("агент = %q, ожидается %q", got, tt.want)
			}
		})
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/mft/internal/agent"
	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/resourceclient"
	"github.com/bigkaa/mft/internal/service"
)

// --- Моки сервисов ---

type mockTransfers struct {
	submitFn func(ctx context.Context, req *model.TransferRequest) (string, error)
	getFn    func(ctx context.Context, id string) (*model.Transfer, error)
	statesFn func(ctx context.Context, id string) ([]*model.TransferStatus, error)
	latestFn func(ctx context.Context, id string) (*model.TransferStatus, error)
}

func (m *mockTransfers) Submit(ctx context.Context, req *model.TransferRequest) (string, error) {
	return m.submitFn(ctx, req)
}

func (m *mockTransfers) Get(ctx context.Context, id string) (*model.Transfer, error) {
	return m.getFn(ctx, id)
}

func (m *mockTransfers) States(ctx context.Context, id string) ([]*model.TransferStatus, error) {
	return m.statesFn(ctx, id)
}

func (m *mockTransfers) LatestState(ctx context.Context, id string) (*model.TransferStatus, error) {
	return m.latestFn(ctx, id)
}

type mockMetadata struct {
	fileFn      func(ctx context.Context, auth model.AuthToken, q service.MetadataQuery) (*model.FileMetadata, error)
	directoryFn func(ctx context.Context, auth model.AuthToken, q service.MetadataQuery) (*model.DirectoryMetadata, error)
	availableFn func(ctx context.Context, auth model.AuthToken, q service.MetadataQuery) (bool, error)
}

func (m *mockMetadata) FileMetadata(ctx context.Context, auth model.AuthToken, q service.MetadataQuery) (*model.FileMetadata, error) {
	return m.fileFn(ctx, auth, q)
}

func (m *mockMetadata) DirectoryMetadata(ctx context.Context, auth model.AuthToken, q service.MetadataQuery) (*model.DirectoryMetadata, error) {
	return m.directoryFn(ctx, auth, q)
}

func (m *mockMetadata) Available(ctx context.Context, auth model.AuthToken, q service.MetadataQuery) (bool, error) {
	return m.availableFn(ctx, auth, q)
}

type mockRegistry struct {
	createStorageFn  func(ctx context.Context, st *model.Storage) (*model.Storage, error)
	createResourceFn func(ctx context.Context, res *model.Resource) (*model.Resource, error)
	deleteFn         func(ctx context.Context, id string) error
}

func (m *mockRegistry) CreateStorage(ctx context.Context, st *model.Storage) (*model.Storage, error) {
	return m.createStorageFn(ctx, st)
}

func (m *mockRegistry) GetStorage(_ context.Context, id string) (*model.Storage, error) {
	return nil, fmt.Errorf("%w: хранилище %s", service.ErrNotFound, id)
}

func (m *mockRegistry) DeleteStorage(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockRegistry) CreateResource(ctx context.Context, res *model.Resource) (*model.Resource, error) {
	return m.createResourceFn(ctx, res)
}

func (m *mockRegistry) GetResource(_ context.Context, id string) (*model.Resource, error) {
	return &model.Resource{ID: id, Kind: model.KindFile, Path: "/a"}, nil
}

func (m *mockRegistry) DeleteResource(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

type mockAgents struct {
	agents []agent.Info
	err    error
}

func (m *mockAgents) ListAgents(context.Context) ([]agent.Info, error) {
	return m.agents, m.err
}

type staticChecker struct{ status string }

func (c staticChecker) CheckReady() (string, string) { return c.status, "" }

// --- Инфраструктура ---

type fixture struct {
	transfers *mockTransfers
	metadata  *mockMetadata
	registry  *mockRegistry
	agents    *mockAgents
	router    chi.Router
}

func newFixture(checks ...NamedChecker) *fixture {
	f := &fixture{
		transfers: &mockTransfers{},
		metadata:  &mockMetadata{},
		registry:  &mockRegistry{},
		agents:    &mockAgents{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(f.transfers, f.metadata, f.registry, f.agents, NewHealthHandler(checks...), logger)
	f.router = chi.NewRouter()
	h.Routes(f.router)
	return f
}

func (f *fixture) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело ошибки не JSON: %s", rec.Body.String())
	}
	return body.Error.Code
}

// --- Передачи ---

func TestSubmitTransfer(t *testing.T) {
	f := newFixture()
	var got *model.TransferRequest
	f.transfers.submitFn = func(_ context.Context, req *model.TransferRequest) (string, error) {
		got = req
		return "T-42", nil
	}

	rec := f.do(http.MethodPost, "/api/v1/transfers",
		`{"sourceId":"R1","sourceType":"SCP","sourceToken":"tok","destinationId":"R2","destinationType":"S3","destinationToken":"tok2"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("статус = %d, тело %s", rec.Code, rec.Body.String())
	}
	var resp submitResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.TransferID != "T-42" {
		t.Errorf("transferId = %q", resp.TransferID)
	}
	if got == nil || got.SourceID != "R1" || got.DestinationType != model.StorageS3 {
		t.Errorf("запрос в сервисе = %+v", got)
	}
}

func TestSubmitTransfer_BadRequests(t *testing.T) {
	f := newFixture()
	f.transfers.submitFn = func(context.Context, *model.TransferRequest) (string, error) {
		return "", fmt.Errorf("%w: sourceId обязателен", service.ErrValidation)
	}

	for name, body := range map[string]string{
		"пустое тело":        "",
		"не JSON":            "{",
		"неизвестное поле":   `{"sourceId":"R1","bogus":1}`,
		"отклонено сервисом": `{"destinationId":"R2"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/transfers", body)
			if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "VALIDATION_ERROR" {
				t.Errorf("статус = %d, тело %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTransferReads(t *testing.T) {
	f := newFixture()
	f.transfers.getFn = func(_ context.Context, id string) (*model.Transfer, error) {
		if id == "T1" {
			return &model.Transfer{ID: "T1"}, nil
		}
		return nil, fmt.Errorf("%w: передача %s", service.ErrNotFound, id)
	}
	f.transfers.statesFn = func(_ context.Context, id string) ([]*model.TransferStatus, error) {
		return nil, nil
	}
	f.transfers.latestFn = func(_ context.Context, id string) (*model.TransferStatus, error) {
		return nil, fmt.Errorf("%w: нет состояний", service.ErrNotFound)
	}

	if rec := f.do(http.MethodGet, "/api/v1/transfers/T1", ""); rec.Code != http.StatusOK {
		t.Errorf("GET передачи: статус %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/transfers/T9", ""); rec.Code != http.StatusNotFound || errorCode(t, rec) != "NOT_FOUND" {
		t.Errorf("GET неизвестной: статус %d", rec.Code)
	}

	rec := f.do(http.MethodGet, "/api/v1/transfers/T1/states", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"states":[]`) {
		t.Errorf("пустая история: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodGet, "/api/v1/transfers/T1/state", ""); rec.Code != http.StatusNotFound {
		t.Errorf("последнее состояние без истории: статус %d", rec.Code)
	}
}

// --- Метаданные ---

func TestResourceMetadata_Query(t *testing.T) {
	f := newFixture()
	var gotAuth model.AuthToken
	var gotQuery service.MetadataQuery
	f.metadata.directoryFn = func(_ context.Context, auth model.AuthToken, q service.MetadataQuery) (*model.DirectoryMetadata, error) {
		gotAuth, gotQuery = auth, q
		return &model.DirectoryMetadata{ResourcePath: "/in/sub"}, nil
	}

	rec := f.do(http.MethodGet,
		"/api/v1/resources/R1/metadata?type=scp&token=T&resourceBackend=sql&credentialBackend=aws&path=sub&kind=DIRECTORY",
		"", "Authorization", "Bearer caller")

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, тело %s", rec.Code, rec.Body.String())
	}
	want := service.MetadataQuery{
		Type: model.StorageSCP,
		Ref:  connector.Ref{ResourceID: "R1", CredentialToken: "T", ResourceBackend: "sql", CredentialBackend: "aws"},
		Path: "sub",
	}
	if gotQuery != want {
		t.Errorf("запрос = %+v, ожидается %+v", gotQuery, want)
	}
	if gotAuth != "caller" {
		t.Errorf("auth = %q, ожидается токен вызывающего", gotAuth)
	}
}

func TestResourceMetadata_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"не поддерживается", fmt.Errorf("%w: каталоги", connector.ErrUnsupported), http.StatusNotImplemented, "NOT_IMPLEMENTED"},
		{"объект отсутствует", connector.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"ресурс не зарегистрирован", &connector.LookupError{Stage: connector.StageResource, Err: resourceclient.ErrNotFound}, http.StatusNotFound, "NOT_FOUND"},
		{"сбой поиска", &connector.LookupError{Stage: connector.StageSecret, Err: errors.New("timeout")}, http.StatusBadGateway, "LOOKUP_UNAVAILABLE"},
		{"неизвестный тип", connector.ErrUnknownStorageType, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"некорректный путь", connector.ErrInvalidPath, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"неклассифицированная", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.metadata.fileFn = func(context.Context, model.AuthToken, service.MetadataQuery) (*model.FileMetadata, error) {
				return nil, tt.err
			}
			rec := f.do(http.MethodGet, "/api/v1/resources/R1/metadata?type=S3", "")
			if rec.Code != tt.status || errorCode(t, rec) != tt.code {
				t.Errorf("статус = %d, тело %s", rec.Code, rec.Body.String())
			}
			if tt.code == "INTERNAL_ERROR" && strings.Contains(rec.Body.String(), "boom") {
				t.Error("детали внутренней ошибки попали в ответ")
			}
		})
	}
}

func TestResourceMetadata_BadParams(t *testing.T) {
	f := newFixture()
	if rec := f.do(http.MethodGet, "/api/v1/resources/R1/metadata", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("без type: статус %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/resources/R1/metadata?type=S3&kind=link", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("kind=link: статус %d", rec.Code)
	}
}

func TestResourceAvailability(t *testing.T) {
	f := newFixture()
	f.metadata.availableFn = func(_ context.Context, _ model.AuthToken, q service.MetadataQuery) (bool, error) {
		return q.Path == "present", nil
	}

	rec := f.do(http.MethodGet, "/api/v1/resources/R1/availability?type=LOCAL&path=present", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"available":true`) {
		t.Errorf("present: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(http.MethodGet, "/api/v1/resources/R1/availability?type=LOCAL&path=missing", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"available":false`) {
		t.Errorf("missing: %d %s", rec.Code, rec.Body.String())
	}
}

// --- Реестр ресурсов ---

func TestRegistry(t *testing.T) {
	f := newFixture()
	f.registry.createStorageFn = func(_ context.Context, st *model.Storage) (*model.Storage, error) {
		if st.ID == "dup" {
			return nil, fmt.Errorf("%w: хранилище dup", service.ErrConflict)
		}
		st.ID = "S1"
		return st, nil
	}
	var gotKind model.ResourceKind
	f.registry.createResourceFn = func(_ context.Context, res *model.Resource) (*model.Resource, error) {
		gotKind = res.Kind
		res.ID = "R1"
		return res, nil
	}
	f.registry.deleteFn = func(_ context.Context, id string) error {
		if id == "missing" {
			return service.ErrNotFound
		}
		return nil
	}

	rec := f.do(http.MethodPost, "/api/v1/storages", `{"type":"S3","config":{"bucketName":"b"}}`)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"storageId":"S1"`) {
		t.Errorf("создание хранилища: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodPost, "/api/v1/storages", `{"storageId":"dup","type":"S3"}`); rec.Code != http.StatusConflict {
		t.Errorf("дубликат: статус %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/storages/S9", ""); rec.Code != http.StatusNotFound {
		t.Errorf("неизвестное хранилище: статус %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/api/v1/resources", `{"storageId":"S1","kind":"directory","path":"/in"}`)
	if rec.Code != http.StatusCreated || gotKind != model.KindDirectory {
		t.Errorf("создание ресурса: %d, kind %q", rec.Code, gotKind)
	}
	if rec := f.do(http.MethodGet, "/api/v1/resources/R1", ""); rec.Code != http.StatusOK {
		t.Errorf("чтение ресурса: статус %d", rec.Code)
	}

	if rec := f.do(http.MethodDelete, "/api/v1/resources/R1", ""); rec.Code != http.StatusNoContent {
		t.Errorf("удаление ресурса: статус %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/v1/storages/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("удаление неизвестного: статус %d", rec.Code)
	}
}

// --- Агенты и health ---

func TestListAgents(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/api/v1/agents", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"agents":[]`) {
		t.Errorf("пустой список: %d %s", rec.Code, rec.Body.String())
	}

	f.agents.agents = []agent.Info{{ID: "A1", Host: "h1"}}
	rec = f.do(http.MethodGet, "/api/v1/agents", "")
	if !strings.Contains(rec.Body.String(), `"id":"A1"`) {
		t.Errorf("список агентов: %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks []NamedChecker
		status int
		want   string
	}{
		{"все ok", []NamedChecker{{"postgresql", staticChecker{"ok"}}, {"consul", staticChecker{"ok"}}}, http.StatusOK, "ok"},
		{"degraded", []NamedChecker{{"postgresql", staticChecker{"ok"}}, {"consul", staticChecker{"degraded"}}}, http.StatusOK, "degraded"},
		{"fail", []NamedChecker{{"postgresql", staticChecker{"fail"}}, {"consul", staticChecker{"ok"}}}, http.StatusServiceUnavailable, "fail"},
		{"не инициализирован", []NamedChecker{{"postgresql", nil}}, http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.checks...)
			rec := f.do(http.MethodGet, "/health/ready", "")
			var resp healthReadyResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if rec.Code != tt.status || resp.Status != tt.want {
				t.Errorf("статус = %d/%q, ожидается %d/%q", rec.Code, resp.Status, tt.status, tt.want)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("checks = %v", resp.Checks)
			}
		})
	}

	f := newFixture()
	if rec := f.do(http.MethodGet, "/health/live", ""); rec.Code != http.StatusOK {
		t.Errorf("live: статус %d", rec.Code)
	}
}

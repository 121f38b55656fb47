package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/mft/internal/config"
	"github.com/bigkaa/mft/internal/database"
	"github.com/bigkaa/mft/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("mft_test"),
		postgres.WithUsername("mft"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("MFT_DB_HOST", host)
	t.Setenv("MFT_DB_PORT", port.Port())
	t.Setenv("MFT_DB_NAME", "mft_test")
	t.Setenv("MFT_DB_USER", "mft")
	t.Setenv("MFT_DB_PASSWORD", "test-password")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newTestTransfer(id string) *model.Transfer {
	req := &model.TransferRequest{
		SourceID: "scp-res", SourceToken: "scp-cred", SourceType: model.StorageSCP,
		SourceResourceBackend: "sql", SourceCredentialBackend: "http",
		DestinationID: "s3-res", DestinationToken: "s3-cred", DestinationType: model.StorageS3,
		DestResourceBackend: "sql", DestCredentialBackend: "aws",
		TargetAgents: map[string]string{"agent-1": "gpu"},
	}
	return model.NewTransfer(id, req, time.Now())
}

// --- Тесты TransferRepository ---

func TestTransferSaveAndGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewTransferRepository(pool)

	id := uuid.New().String()
	tr := newTestTransfer(id)
	if err := repo.Save(ctx, tr); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}

	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Source != tr.Source || got.Destination != tr.Destination {
		t.Errorf("дескрипторы не совпадают: %+v", got)
	}
	if got.TargetAgents["agent-1"] != "gpu" {
		t.Errorf("TargetAgents = %v", got.TargetAgents)
	}

	// Запись создаётся один раз
	if err := repo.Save(ctx, newTestTransfer(id)); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Save() = %v, ожидается ErrConflict", err)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) = %v, ожидается ErrNotFound", err)
	}
}

// --- Тесты TransferStatusRepository ---

func TestTransferStatusAppendOnly(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	transfers := NewTransferRepository(pool)
	statuses := NewTransferStatusRepository(pool)

	id := uuid.New().String()
	if err := transfers.Save(ctx, newTestTransfer(id)); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}

	if _, err := statuses.Latest(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() без истории = %v, ожидается ErrNotFound", err)
	}

	first := &model.TransferStatus{TransferID: id, Percentage: 50, State: model.JobInProgress, UpdateTimeMillis: 1000}
	second := &model.TransferStatus{TransferID: id, Percentage: 100, State: model.JobCompleted, UpdateTimeMillis: 2000}
	for _, s := range []*model.TransferStatus{first, second} {
		if err := statuses.Append(ctx, s); err != nil {
			t.Fatalf("Append() ошибка: %v", err)
		}
	}

	history, err := statuses.ListByTransfer(ctx, id)
	if err != nil {
		t.Fatalf("ListByTransfer() ошибка: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, ожидается 2", len(history))
	}
	if history[0].State != model.JobInProgress || history[0].Percentage != 50 || history[0].UpdateTimeMillis != 1000 {
		t.Errorf("первая строка = %+v", history[0])
	}
	if history[1].State != model.JobCompleted || history[1].UpdateTimeMillis != 2000 {
		t.Errorf("вторая строка = %+v", history[1])
	}

	latest, err := statuses.Latest(ctx, id)
	if err != nil {
		t.Fatalf("Latest() ошибка: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Latest().ID = %d, ожидается %d", latest.ID, second.ID)
	}

	orphan := &model.TransferStatus{TransferID: "unknown", State: model.JobRunning}
	if err := statuses.Append(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("Append() для неизвестной передачи = %v, ожидается ErrNotFound", err)
	}
}

// --- Тесты ResourceRepository ---

func TestResourceCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewResourceRepository(pool)

	storage := &model.Storage{
		ID:     "s3-main",
		Type:   model.StorageS3,
		Name:   "main bucket",
		Config: json.RawMessage(`{"bucketName":"data","region":"us-east-1"}`),
	}
	if err := repo.CreateStorage(ctx, storage); err != nil {
		t.Fatalf("CreateStorage() ошибка: %v", err)
	}
	if err := repo.CreateStorage(ctx, storage); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный CreateStorage() = %v, ожидается ErrConflict", err)
	}

	res := &model.Resource{ID: "res-1", Storage: model.Storage{ID: "s3-main"}, Kind: model.KindFile, Path: "a/b.txt"}
	if err := repo.CreateResource(ctx, res); err != nil {
		t.Fatalf("CreateResource() ошибка: %v", err)
	}

	got, err := repo.GetResource(ctx, "res-1")
	if err != nil {
		t.Fatalf("GetResource() ошибка: %v", err)
	}
	if got.Storage.Type != model.StorageS3 || got.Path != "a/b.txt" || got.Kind != model.KindFile {
		t.Errorf("GetResource() = %+v", got)
	}
	cfg, err := model.DecodeStorageConfig[model.S3Storage](got)
	if err != nil {
		t.Fatalf("DecodeStorageConfig() ошибка: %v", err)
	}
	if cfg.BucketName != "data" {
		t.Errorf("BucketName = %q, ожидается data", cfg.BucketName)
	}

	dangling := &model.Resource{ID: "res-2", Storage: model.Storage{ID: "missing"}, Kind: model.KindFile, Path: "x"}
	if err := repo.CreateResource(ctx, dangling); !errors.Is(err, ErrNotFound) {
		t.Errorf("CreateResource() без хранилища = %v, ожидается ErrNotFound", err)
	}

	if err := repo.DeleteStorage(ctx, "s3-main"); err != nil {
		t.Fatalf("DeleteStorage() ошибка: %v", err)
	}
	if _, err := repo.GetResource(ctx, "res-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ресурс должен удалиться каскадно, получено %v", err)
	}
	if err := repo.DeleteResource(ctx, "res-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteResource() = %v, ожидается ErrNotFound", err)
	}
}

package local

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/connector/connectortest"
	"github.com/bigkaa/mft/internal/domain/model"
)

func newCollector(t *testing.T) (*connector.Collector, *connectortest.Secrets) {
	t.Helper()
	fs := memfs.New()
	files := map[string]string{
		"/srv/mft/data/a.txt":     "hello",
		"/srv/mft/data/sub/b.txt": "world!",
	}
	for name, content := range files {
		if err := util.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c := New(fs)
	storage := model.LocalStorage{RootPath: "/srv/mft"}
	resources := connectortest.NewResources(
		connectortest.Resource("file", model.StorageLocal, model.KindFile, "data/a.txt", storage),
		connectortest.Resource("dir", model.StorageLocal, model.KindDirectory, "data", storage),
		connectortest.Resource("gone", model.StorageLocal, model.KindFile, "data/none.txt", storage),
		connectortest.Resource("wrong-kind", model.StorageLocal, model.KindFile, "data/sub", storage),
	)
	secrets := connectortest.NewSecrets()
	if err := c.Init(resources, secrets); err != nil {
		t.Fatal(err)
	}
	return c, secrets
}

func TestFileMetadata_NoCredentials(t *testing.T) {
	c, secrets := newCollector(t)

	md, err := c.GetFileMetadata(context.Background(), "", connector.Ref{ResourceID: "file"})
	if err != nil {
		t.Fatalf("GetFileMetadata() ошибка: %v", err)
	}
	if md.Size != 5 || md.FriendlyName != "a.txt" || md.ResourcePath != "data/a.txt" {
		t.Errorf("метаданные = %+v", md)
	}
	// md5("hello")
	if md.Checksum != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("Checksum = %q", md.Checksum)
	}
	if secrets.Calls != 0 {
		t.Errorf("хранилище секретов вызвано %d раз при пустом токене", secrets.Calls)
	}
}

func TestDirectoryMetadata(t *testing.T) {
	c, _ := newCollector(t)
	ref := connector.Ref{ResourceID: "dir"}

	md, err := c.GetDirectoryMetadata(context.Background(), "", ref)
	if err != nil {
		t.Fatalf("GetDirectoryMetadata() ошибка: %v", err)
	}
	if len(md.Files) != 1 || len(md.Directories) != 1 {
		t.Fatalf("каталог = %+v", md)
	}
	if md.Directories[0].ResourcePath != "data/sub" {
		t.Errorf("подкаталог = %q", md.Directories[0].ResourcePath)
	}

	child, err := c.GetChildFileMetadata(context.Background(), "", ref, "sub/b.txt")
	if err != nil {
		t.Fatalf("GetChildFileMetadata() ошибка: %v", err)
	}
	if child.Size != 6 {
		t.Errorf("Size = %d, ожидается 6", child.Size)
	}

	if _, err := c.GetChildFileMetadata(context.Background(), "", ref, "../etc/passwd"); !errors.Is(err, connector.ErrInvalidPath) {
		t.Errorf("выход за каталог = %v, ожидается ErrInvalidPath", err)
	}
}

func TestAvailability(t *testing.T) {
	c, _ := newCollector(t)
	ctx := context.Background()

	if ok, err := c.IsAvailable(ctx, "", connector.Ref{ResourceID: "gone"}); err != nil || ok {
		t.Errorf("IsAvailable(gone) = %v, %v; ожидается false, nil", ok, err)
	}
	if ok, err := c.IsAvailable(ctx, "", connector.Ref{ResourceID: "dir"}); err != nil || !ok {
		t.Errorf("IsAvailable(dir) = %v, %v", ok, err)
	}
	// файловый ресурс указывает на каталог
	if ok, err := c.IsAvailable(ctx, "", connector.Ref{ResourceID: "wrong-kind"}); err != nil || ok {
		t.Errorf("IsAvailable(wrong-kind) = %v, %v; ожидается false, nil", ok, err)
	}
	if ok, err := c.IsChildAvailable(ctx, "", connector.Ref{ResourceID: "dir"}, "sub"); err != nil || !ok {
		t.Errorf("IsChildAvailable(sub) = %v, %v", ok, err)
	}
}

func TestCredentialsResolvedWhenTokenGiven(t *testing.T) {
	c, secrets := newCollector(t)

	_, err := c.GetFileMetadata(context.Background(), "", connector.Ref{ResourceID: "file", CredentialToken: "missing"})
	var le *connector.LookupError
	if !errors.As(err, &le) || le.Stage != connector.StageSecret {
		t.Errorf("неизвестный токен = %v, ожидается LookupError(secret)", err)
	}
	if secrets.Calls != 1 {
		t.Errorf("Calls = %d, ожидается 1", secrets.Calls)
	}
}

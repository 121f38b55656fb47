package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/connector/connectortest"
	"github.com/bigkaa/mft/internal/connector/local"
	"github.com/bigkaa/mft/internal/connector/s3"
	"github.com/bigkaa/mft/internal/domain/model"
)

func newMetadataService(t *testing.T) *MetadataService {
	t.Helper()
	fs := memfs.New()
	if err := util.WriteFile(fs, "/data/in/a.txt", []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	resources := connectortest.NewResources(
		connectortest.Resource("F", model.StorageLocal, model.KindFile, "/data/in/a.txt", model.LocalStorage{}),
		connectortest.Resource("D", model.StorageLocal, model.KindDirectory, "/data/in", model.LocalStorage{}),
		connectortest.Resource("O", model.StorageS3, model.KindFile, "x", model.S3Storage{BucketName: "b"}),
	)
	resolver := connector.NewResolver(resources, connectortest.NewSecrets())
	resolver.Register(model.StorageLocal, func() connector.MetadataCollector { return local.New(fs) })
	resolver.Register(model.StorageS3, func() connector.MetadataCollector { return s3.New(nil) })

	return NewMetadataService(resolver, time.Second, discardLogger())
}

func TestMetadataService(t *testing.T) {
	svc := newMetadataService(t)
	ctx := context.Background()

	md, err := svc.FileMetadata(ctx, "", MetadataQuery{Type: model.StorageLocal, Ref: connector.Ref{ResourceID: "F"}})
	if err != nil || md.Size != 5 {
		t.Errorf("FileMetadata() = %+v, %v", md, err)
	}

	child, err := svc.FileMetadata(ctx, "", MetadataQuery{Type: model.StorageLocal, Ref: connector.Ref{ResourceID: "D"}, Path: "a.txt"})
	if err != nil || child.ResourcePath != "/data/in/a.txt" {
		t.Errorf("FileMetadata(потомок) = %+v, %v", child, err)
	}

	dir, err := svc.DirectoryMetadata(ctx, "", MetadataQuery{Type: model.StorageLocal, Ref: connector.Ref{ResourceID: "D"}})
	if err != nil || len(dir.Files) != 1 {
		t.Errorf("DirectoryMetadata() = %+v, %v", dir, err)
	}

	ok, err := svc.Available(ctx, "", MetadataQuery{Type: model.StorageLocal, Ref: connector.Ref{ResourceID: "D"}, Path: "missing"})
	if err != nil || ok {
		t.Errorf("Available(missing) = %v, %v", ok, err)
	}
}

func TestMetadataService_Errors(t *testing.T) {
	svc := newMetadataService(t)
	ctx := context.Background()

	_, err := svc.FileMetadata(ctx, "", MetadataQuery{Type: "TAPE", Ref: connector.Ref{ResourceID: "F"}})
	if !errors.Is(err, connector.ErrUnknownStorageType) {
		t.Errorf("неизвестный тип = %v, ожидается ErrUnknownStorageType", err)
	}

	_, err = svc.FileMetadata(ctx, "", MetadataQuery{Type: model.StorageLocal})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("без id ресурса = %v, ожидается ErrValidation", err)
	}

	_, err = svc.DirectoryMetadata(ctx, "", MetadataQuery{Type: model.StorageS3, Ref: connector.Ref{ResourceID: "O"}})
	if !errors.Is(err, connector.ErrUnsupported) {
		t.Errorf("каталог S3 = %v, ожидается ErrUnsupported", err)
	}

	_, err = svc.FileMetadata(ctx, "", MetadataQuery{Type: model.StorageS3, Ref: connector.Ref{ResourceID: "F"}})
	if !errors.Is(err, connector.ErrStorageTypeMismatch) {
		t.Errorf("ресурс другого типа = %v, ожидается ErrStorageTypeMismatch", err)
	}
}

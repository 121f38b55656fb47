// Пакет local — сборщик метаданных локальной файловой системы.
//
// Пути ресурса отсчитываются от корня ФС сборщика (MFT_LOCAL_ROOT) и
// rootPath хранилища. Учётные данные не требуются.
package local

import (
	"context"
	"crypto/md5" //nolint:gosec // контрольная сумма, не криптография
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
)

// New создаёт сборщик поверх billy.Filesystem.
func New(fs billy.Filesystem) *connector.Collector {
	open := func(_ context.Context, res *model.Resource, _ *model.Secret) (connector.Session, error) {
		storage, err := connector.DecodeStorage[model.LocalStorage](res)
		if err != nil {
			return nil, err
		}
		return &session{fs: fs, root: storage.RootPath}, nil
	}
	return connector.NewCollector(model.StorageLocal, open, connector.Capabilities{
		ChildPaths:          true,
		Directories:         true,
		OptionalCredentials: true,
	})
}

// NewOS создаёт сборщик поверх каталога root хоста.
func NewOS(root string) *connector.Collector {
	return New(osfs.New(root))
}

type session struct {
	fs   billy.Filesystem
	root string
}

// abs — путь внутри ФС сборщика.
func (s *session) abs(p string) string {
	return connector.JoinPath("/", s.root, p)
}

func (s *session) StatFile(_ context.Context, p string) (*model.FileMetadata, error) {
	info, err := s.stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s является каталогом", connector.ErrInvalidPath, p)
	}

	sum, err := s.checksum(p)
	if err != nil {
		return nil, err
	}
	md := fileMetadata(p, info)
	md.Checksum = sum
	return md, nil
}

func (s *session) StatDirectory(_ context.Context, p string) (*model.DirectoryMetadata, error) {
	info, err := s.stat(p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s не является каталогом", connector.ErrInvalidPath, p)
	}

	entries, err := s.fs.ReadDir(s.abs(p))
	if err != nil {
		return nil, fmt.Errorf("чтение каталога %s: %w", p, err)
	}

	md := &model.DirectoryMetadata{
		FriendlyName: connector.FriendlyName(p),
		ResourcePath: p,
		CreatedTime:  info.ModTime(),
		UpdateTime:   info.ModTime(),
	}
	for _, e := range entries {
		child := connector.JoinPath(p, e.Name())
		if e.IsDir() {
			md.Directories = append(md.Directories, model.DirectoryMetadata{
				FriendlyName: e.Name(),
				ResourcePath: child,
				CreatedTime:  e.ModTime(),
				UpdateTime:   e.ModTime(),
			})
			continue
		}
		// содержимое каталога без контрольных сумм
		md.Files = append(md.Files, *fileMetadata(child, e))
	}
	return md, nil
}

func (s *session) Exists(_ context.Context, p string, dir bool) (bool, error) {
	info, err := s.stat(p)
	if errors.Is(err, connector.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir() == dir, nil
}

func (s *session) Close() error { return nil }

func (s *session) stat(p string) (os.FileInfo, error) {
	info, err := s.fs.Stat(s.abs(p))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", connector.ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	return info, nil
}

func (s *session) checksum(p string) (string, error) {
	f, err := s.fs.Open(s.abs(p))
	if err != nil {
		return "", fmt.Errorf("открытие %s: %w", p, err)
	}
	defer f.Close() //nolint:errcheck // только чтение

	h := md5.New() //nolint:gosec // контрольная сумма, не криптография
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("чтение %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func fileMetadata(p string, info os.FileInfo) *model.FileMetadata {
	return &model.FileMetadata{
		FriendlyName: info.Name(),
		ResourcePath: p,
		Size:         info.Size(),
		// ФС не отдаёт время создания переносимо
		CreatedTime: info.ModTime(),
		UpdateTime:  info.ModTime(),
	}
}

package connector

import (
	"fmt"
	"path"
	"strings"

	"github.com/bigkaa/mft/internal/domain/model"
)

// ChildPath строит путь потомка внутри ресурса-каталога. Относительный путь
// не может выходить за пределы родителя.
func ChildPath(parent *model.Resource, relativePath string) (string, error) {
	if !parent.IsDirectory() {
		return "", fmt.Errorf("%w: ресурс %s не является каталогом", ErrInvalidPath, parent.ID)
	}
	rel := strings.TrimSpace(relativePath)
	if rel == "" {
		return "", fmt.Errorf("%w: пустой относительный путь", ErrInvalidPath)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: путь %q выходит за пределы каталога", ErrInvalidPath, relativePath)
		}
	}
	cleaned := path.Clean("/" + rel)
	if cleaned == "/" {
		return "", fmt.Errorf("%w: путь %q указывает на сам каталог", ErrInvalidPath, relativePath)
	}
	return JoinPath(parent.Path, cleaned), nil
}

// JoinPath склеивает сегменты пути через "/" без дублирования разделителей.
// Ведущий "/" первого сегмента сохраняется.
func JoinPath(base string, elems ...string) string {
	all := append([]string{base}, elems...)
	joined := path.Join(all...)
	if !strings.HasPrefix(base, "/") {
		joined = strings.TrimPrefix(joined, "/")
	}
	return joined
}

// FriendlyName — последний сегмент пути.
func FriendlyName(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}
	return path.Base(trimmed)
}

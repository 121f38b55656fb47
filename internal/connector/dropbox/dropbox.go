// Пакет dropbox — сборщик метаданных Dropbox через официальный Go SDK
// (files/get_metadata, files/list_folder).
package dropbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
)

// API — вызовы files-клиента SDK, нужные сборщику.
type API interface {
	GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error)
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
}

// New создаёт сборщик Dropbox. baseURL пуст — публичный API
// (https://api.dropboxapi.com/2), httpClient nil — http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *connector.Collector {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")

	open := func(ctx context.Context, res *model.Resource, secret *model.Secret) (connector.Session, error) {
		storage, err := connector.DecodeStorage[model.DropboxStorage](res)
		if err != nil {
			return nil, err
		}
		creds, err := connector.DecodeSecret[model.DropboxSecret](secret)
		if err != nil {
			return nil, err
		}
		if creds.AccessToken == "" {
			return nil, &connector.LookupError{Stage: connector.StageSecret, Err: errors.New("пустой accessToken")}
		}

		// SDK не принимает context: сессия привязывает свой ctx и токен
		// к каждому HTTP-запросу.
		cfg := sdk.Config{
			Token: creds.AccessToken,
			Client: &http.Client{
				Transport: &sessionTransport{ctx: ctx, token: creds.AccessToken, base: httpClient.Transport},
				Timeout:   httpClient.Timeout,
			},
		}
		if baseURL != "" {
			cfg.URLGenerator = func(_, namespace, route string) string {
				return baseURL + "/" + namespace + "/" + route
			}
		}
		return &session{api: files.New(cfg), root: storage.RootPath}, nil
	}
	return connector.NewCollector(model.StorageDropbox, open, connector.Capabilities{ChildPaths: true, Directories: true})
}

// sessionTransport добавляет Bearer-токен и контекст сессии к запросам SDK.
type sessionTransport struct {
	ctx   context.Context
	token string
	base  http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(t.ctx)
	req.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

type session struct {
	api  API
	root string
}

// apiPath — путь Dropbox: корень задаётся пустой строкой.
func (s *session) apiPath(p string) string {
	full := connector.JoinPath("/", s.root, p)
	if full == "/" {
		return ""
	}
	return full
}

func (s *session) StatFile(_ context.Context, p string) (*model.FileMetadata, error) {
	e, err := s.getMetadata(p)
	if err != nil {
		return nil, err
	}
	f, ok := e.(*files.FileMetadata)
	if !ok {
		return nil, fmt.Errorf("%w: %s не является файлом", connector.ErrInvalidPath, p)
	}
	return fileMetadata(p, f), nil
}

func (s *session) StatDirectory(_ context.Context, p string) (*model.DirectoryMetadata, error) {
	if s.apiPath(p) != "" {
		e, err := s.getMetadata(p)
		if err != nil {
			return nil, err
		}
		if _, ok := e.(*files.FolderMetadata); !ok {
			return nil, fmt.Errorf("%w: %s не является каталогом", connector.ErrInvalidPath, p)
		}
	}

	md := &model.DirectoryMetadata{
		FriendlyName: connector.FriendlyName(p),
		ResourcePath: p,
	}

	page, err := s.api.ListFolder(files.NewListFolderArg(s.apiPath(p)))
	if err != nil {
		return nil, classify(err, p)
	}
	for {
		for _, entry := range page.Entries {
			switch e := entry.(type) {
			case *files.FolderMetadata:
				md.Directories = append(md.Directories, model.DirectoryMetadata{
					FriendlyName: e.Name,
					ResourcePath: connector.JoinPath(p, e.Name),
				})
			case *files.FileMetadata:
				md.Files = append(md.Files, *fileMetadata(connector.JoinPath(p, e.Name), e))
				if e.ServerModified.After(md.UpdateTime) {
					md.UpdateTime = e.ServerModified
				}
			}
		}
		if !page.HasMore {
			break
		}
		page, err = s.api.ListFolderContinue(files.NewListFolderContinueArg(page.Cursor))
		if err != nil {
			return nil, classify(err, p)
		}
	}
	// Dropbox не хранит время создания папок
	md.CreatedTime = md.UpdateTime
	return md, nil
}

func (s *session) Exists(_ context.Context, p string, dir bool) (bool, error) {
	if dir && s.apiPath(p) == "" {
		return true, nil
	}
	e, err := s.getMetadata(p)
	if errors.Is(err, connector.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if dir {
		_, ok := e.(*files.FolderMetadata)
		return ok, nil
	}
	_, ok := e.(*files.FileMetadata)
	return ok, nil
}

func (s *session) Close() error { return nil }

func (s *session) getMetadata(p string) (files.IsMetadata, error) {
	e, err := s.api.GetMetadata(files.NewGetMetadataArg(s.apiPath(p)))
	if err != nil {
		return nil, classify(err, p)
	}
	return e, nil
}

// classify превращает ошибку маршрута path/not_found в connector.ErrNotFound.
func classify(err error, p string) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: dropbox %s", connector.ErrNotFound, p)
	}
	return fmt.Errorf("dropbox %s: %w", p, err)
}

func isNotFound(err error) bool {
	var (
		getErr  files.GetMetadataAPIError
		listErr files.ListFolderAPIError
	)
	switch {
	case errors.As(err, &getErr):
		return getErr.EndpointError != nil && lookupNotFound(getErr.EndpointError.Path)
	case errors.As(err, &listErr):
		return listErr.EndpointError != nil && lookupNotFound(listErr.EndpointError.Path)
	}
	return false
}

func lookupNotFound(e *files.LookupError) bool {
	return e != nil && e.Tag == files.LookupErrorNotFound
}

func fileMetadata(p string, e *files.FileMetadata) *model.FileMetadata {
	return &model.FileMetadata{
		FriendlyName: e.Name,
		ResourcePath: p,
		Size:         int64(e.Size), //nolint:gosec // размер файла Dropbox укладывается в int64
		Checksum:     e.ContentHash,
		CreatedTime:  e.ClientModified,
		UpdateTime:   e.ServerModified,
	}
}

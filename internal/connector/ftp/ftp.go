// Пакет ftp — сборщик метаданных FTP/FTPS серверов.
package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
)

const (
	defaultPort = 21
	dialTimeout = 30 * time.Second
)

// Client — подмножество *ftp.ServerConn и Abort.
type Client interface {
	FileSize(path string) (int64, error)
	GetTime(path string) (time.Time, error)
	List(path string) ([]*ftp.Entry, error)
	ChangeDir(path string) error
	Quit() error
	// Abort закрывает сетевые соединения, прерывая текущую команду.
	Abort() error
}

var _ Client = (*serverConn)(nil)

// Dialer открывает авторизованное соединение с сервером.
type Dialer func(ctx context.Context, storage *model.FTPStorage, secret *model.FTPSecret) (Client, error)

// New создаёт сборщик FTP. dial == nil — соединение jlaffaye/ftp.
func New(dial Dialer) *connector.Collector {
	if dial == nil {
		dial = Dial
	}
	open := func(ctx context.Context, res *model.Resource, secret *model.Secret) (connector.Session, error) {
		storage, err := connector.DecodeStorage[model.FTPStorage](res)
		if err != nil {
			return nil, err
		}
		if storage.Host == "" {
			return nil, &connector.LookupError{Stage: connector.StageResource, Err: errors.New("не задан host")}
		}
		creds, err := connector.DecodeSecret[model.FTPSecret](secret)
		if err != nil {
			return nil, err
		}
		client, err := dial(ctx, storage, creds)
		if err != nil {
			return nil, err
		}
		return &session{client: client}, nil
	}
	return connector.NewCollector(model.StorageFTP, open, connector.Capabilities{ChildPaths: true, Directories: true})
}

// Dial подключается к серверу и выполняет вход. useTLS — явный FTPS (AUTH TLS).
func Dial(ctx context.Context, storage *model.FTPStorage, secret *model.FTPSecret) (Client, error) {
	port := storage.Port
	if port == 0 {
		port = defaultPort
	}
	addr := net.JoinHostPort(storage.Host, strconv.Itoa(port))

	conn := &serverConn{}
	opts := []ftp.DialOption{
		ftp.DialWithDialFunc(conn.dialFunc(ctx)),
		ftp.DialWithTimeout(dialTimeout),
	}
	if storage.UseTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: storage.Host,
			MinVersion: tls.VersionTLS12,
		}))
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Abort() })
	defer stop()

	sc, err := ftp.Dial(addr, opts...)
	if err != nil {
		_ = conn.Abort()
		return nil, fmt.Errorf("подключение к %s: %w", addr, err)
	}
	if err := sc.Login(secret.User, secret.Password); err != nil {
		_ = sc.Quit()
		return nil, fmt.Errorf("вход на %s: %w", addr, err)
	}
	conn.ServerConn = sc
	return conn, nil
}

// serverConn — *ftp.ServerConn с учётом открытых TCP-соединений
// (управляющего и соединений данных).
type serverConn struct {
	*ftp.ServerConn

	mu    sync.Mutex
	conns []net.Conn
}

func (c *serverConn) dialFunc(ctx context.Context) func(network, address string) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	return func(network, address string) (net.Conn, error) {
		nc, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.conns = append(c.conns, nc)
		c.mu.Unlock()
		return nc, nil
	}
}

func (c *serverConn) Abort() error {
	c.mu.Lock()
	conns := c.conns
	c.conns = nil
	c.mu.Unlock()

	var err error
	for _, nc := range conns {
		if cerr := nc.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

type session struct {
	client Client
}

func (s *session) StatFile(ctx context.Context, p string) (*model.FileMetadata, error) {
	defer s.watch(ctx)()

	size, err := s.client.FileSize(p)
	if err != nil {
		return nil, failure(ctx, err, p)
	}

	// MDTM поддерживается не всеми серверами
	modified, err := s.client.GetTime(p)
	if err != nil {
		if ctx.Err() != nil {
			return nil, failure(ctx, err, p)
		}
		modified = time.Time{}
	}

	return &model.FileMetadata{
		FriendlyName: connector.FriendlyName(p),
		ResourcePath: p,
		Size:         size,
		CreatedTime:  modified,
		UpdateTime:   modified,
	}, nil
}

func (s *session) StatDirectory(ctx context.Context, p string) (*model.DirectoryMetadata, error) {
	defer s.watch(ctx)()

	if err := s.client.ChangeDir(p); err != nil {
		return nil, failure(ctx, err, p)
	}
	entries, err := s.client.List(p)
	if err != nil {
		return nil, failure(ctx, err, p)
	}

	md := &model.DirectoryMetadata{
		FriendlyName: connector.FriendlyName(p),
		ResourcePath: p,
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child := connector.JoinPath(p, e.Name)
		switch e.Type {
		case ftp.EntryTypeFolder:
			md.Directories = append(md.Directories, model.DirectoryMetadata{
				FriendlyName: e.Name,
				ResourcePath: child,
				CreatedTime:  e.Time,
				UpdateTime:   e.Time,
			})
		default:
			md.Files = append(md.Files, model.FileMetadata{
				FriendlyName: e.Name,
				ResourcePath: child,
				Size:         int64(e.Size), //nolint:gosec // размер файла помещается в int64
				CreatedTime:  e.Time,
				UpdateTime:   e.Time,
			})
		}
		if e.Time.After(md.UpdateTime) {
			md.UpdateTime = e.Time
		}
	}
	md.CreatedTime = md.UpdateTime
	return md, nil
}

func (s *session) Exists(ctx context.Context, p string, dir bool) (bool, error) {
	defer s.watch(ctx)()

	var err error
	if dir {
		err = s.client.ChangeDir(p)
	} else {
		_, err = s.client.FileSize(p)
	}
	if err != nil {
		err = failure(ctx, err, p)
	}
	if errors.Is(err, connector.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *session) Close() error {
	return s.client.Quit()
}

// watch прерывает соединение при отмене ctx: команды jlaffaye/ftp
// не принимают context. Возвращает функцию снятия наблюдения.
func (s *session) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() { _ = s.client.Abort() })
}

// failure — ошибка отмены, если ctx завершён, иначе classify.
func failure(ctx context.Context, err error, p string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("ftp %s: %w", p, ctxErr)
	}
	return classify(err, p)
}

// classify превращает ответ 550 в connector.ErrNotFound.
func classify(err error, p string) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable {
		return fmt.Errorf("%w: ftp %s", connector.ErrNotFound, p)
	}
	return fmt.Errorf("ftp %s: %w", p, err)
}

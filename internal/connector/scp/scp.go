// Пакет scp — сборщик метаданных SCP/SFTP хостов.
//
// Метаданные читаются по SFTP поверх SSH-соединения, контрольная сумма
// считается командой md5sum на удалённом хосте, а если команда недоступна,
// чтением файла через SFTP.
package scp

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // контрольная сумма, не криптография
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
)

const defaultPort = 22

// Client — операции удалённого хоста, нужные сборщику.
type Client interface {
	Stat(p string) (os.FileInfo, error)
	ReadDir(p string) ([]os.FileInfo, error)
	Checksum(ctx context.Context, p string) (string, error)
	Close() error
}

// Dialer открывает соединение с хостом.
type Dialer func(ctx context.Context, storage *model.SCPStorage, secret *model.SCPSecret) (Client, error)

// New создаёт сборщик SCP. dial == nil — SSH с проверкой known_hosts
// по пути knownHostsPath (пусто — без проверки ключа хоста).
func New(dial Dialer, knownHostsPath string, logger *slog.Logger) *connector.Collector {
	if dial == nil {
		dial = NewDialer(knownHostsPath, logger)
	}
	open := func(ctx context.Context, res *model.Resource, secret *model.Secret) (connector.Session, error) {
		storage, err := connector.DecodeStorage[model.SCPStorage](res)
		if err != nil {
			return nil, err
		}
		if storage.Host == "" {
			return nil, &connector.LookupError{Stage: connector.StageResource, Err: errors.New("не задан host")}
		}
		creds, err := connector.DecodeSecret[model.SCPSecret](secret)
		if err != nil {
			return nil, err
		}
		client, err := dial(ctx, storage, creds)
		if err != nil {
			return nil, err
		}
		return &session{client: client}, nil
	}
	return connector.NewCollector(model.StorageSCP, open, connector.Capabilities{ChildPaths: true, Directories: true})
}

// NewDialer возвращает Dialer поверх x/crypto/ssh и pkg/sftp.
func NewDialer(knownHostsPath string, logger *slog.Logger) Dialer {
	return func(ctx context.Context, storage *model.SCPStorage, secret *model.SCPSecret) (Client, error) {
		hostKey, err := hostKeyCallback(knownHostsPath, logger)
		if err != nil {
			return nil, err
		}
		auth, err := authMethods(secret)
		if err != nil {
			return nil, &connector.LookupError{Stage: connector.StageSecret, Err: err}
		}

		port := storage.Port
		if port == 0 {
			port = defaultPort
		}
		addr := net.JoinHostPort(storage.Host, strconv.Itoa(port))

		cfg := &ssh.ClientConfig{
			User:            secret.User,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         30 * time.Second,
		}

		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("подключение к %s: %w", addr, err)
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("SSH рукопожатие с %s: %w", addr, err)
		}
		sshClient := ssh.NewClient(sshConn, chans, reqs)

		sftpClient, err := sftp.NewClient(sshClient)
		if err != nil {
			_ = sshClient.Close()
			return nil, fmt.Errorf("SFTP сессия с %s: %w", addr, err)
		}
		return &remote{sftp: sftpClient, exec: sshExec(sshClient), conn: sshClient}, nil
	}
}

// hostKeyCallback — проверка ключа хоста по known_hosts.
func hostKeyCallback(knownHostsPath string, logger *slog.Logger) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		logger.Warn("Проверка ключа SSH хоста отключена: MFT_SCP_KNOWN_HOSTS не задан")
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // явная настройка оператора
	}
	cb, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("чтение known_hosts %s: %w", knownHostsPath, err)
	}
	return cb, nil
}

// authMethods — пароль и/или приватный ключ (опционально зашифрованный).
func authMethods(secret *model.SCPSecret) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if secret.PrivateKey != "" {
		var (
			signer ssh.Signer
			err    error
		)
		if secret.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(secret.PrivateKey), []byte(secret.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(secret.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("разбор приватного ключа: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if secret.Password != "" {
		methods = append(methods, ssh.Password(secret.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("секрет SCP не содержит ни пароля, ни ключа")
	}
	if secret.User == "" {
		return nil, errors.New("секрет SCP не содержит пользователя")
	}
	return methods, nil
}

// remote — Client поверх SFTP. Контрольная сумма считается командой md5sum
// через exec; без exec или при ошибке команды файл читается через SFTP.
type remote struct {
	sftp *sftp.Client
	exec func(ctx context.Context, cmd string) ([]byte, error)
	conn io.Closer
}

func (r *remote) Stat(p string) (os.FileInfo, error) {
	return r.sftp.Stat(p)
}

func (r *remote) ReadDir(p string) ([]os.FileInfo, error) {
	return r.sftp.ReadDir(p)
}

func (r *remote) Checksum(ctx context.Context, p string) (string, error) {
	if r.exec == nil {
		return r.streamChecksum(ctx, p)
	}
	out, err := r.exec(ctx, "md5sum -- "+shellQuote(p))
	if err != nil {
		// md5sum может отсутствовать (BSD, Windows OpenSSH, chroot только с SFTP)
		if ctx.Err() != nil {
			return "", fmt.Errorf("md5sum %s: %w", p, err)
		}
		return r.streamChecksum(ctx, p)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", fmt.Errorf("md5sum %s: пустой вывод", p)
	}
	return fields[0], nil
}

func (r *remote) streamChecksum(ctx context.Context, p string) (string, error) {
	f, err := r.sftp.Open(p)
	if err != nil {
		return "", fmt.Errorf("открытие %s: %w", p, err)
	}
	defer f.Close() //nolint:errcheck // только чтение

	stop := context.AfterFunc(ctx, func() { _ = f.Close() })
	defer stop()

	h := md5.New() //nolint:gosec // контрольная сумма, не криптография
	if _, err := io.Copy(h, f); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", fmt.Errorf("чтение %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (r *remote) Close() error {
	err := r.sftp.Close()
	if r.conn != nil {
		err = errors.Join(err, r.conn.Close())
	}
	return err
}

// sshExec выполняет команду в отдельной SSH-сессии и возвращает stdout.
// Отмена ctx закрывает сессию.
func sshExec(client *ssh.Client) func(ctx context.Context, cmd string) ([]byte, error) {
	return func(ctx context.Context, cmd string) ([]byte, error) {
		sess, err := client.NewSession()
		if err != nil {
			return nil, fmt.Errorf("SSH сессия: %w", err)
		}
		defer sess.Close() //nolint:errcheck // сессия одноразовая

		stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
		defer stop()

		var out bytes.Buffer
		sess.Stdout = &out
		if err := sess.Run(cmd); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}
}

// shellQuote заключает строку в одинарные кавычки POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type session struct {
	client Client
}

func (s *session) StatFile(ctx context.Context, p string) (*model.FileMetadata, error) {
	info, err := s.stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s является каталогом", connector.ErrInvalidPath, p)
	}

	sum, err := s.client.Checksum(ctx, p)
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

	entries, err := s.client.ReadDir(p)
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

func (s *session) Close() error {
	return s.client.Close()
}

func (s *session) stat(p string) (os.FileInfo, error) {
	info, err := s.client.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", connector.ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	return info, nil
}

func fileMetadata(p string, info os.FileInfo) *model.FileMetadata {
	return &model.FileMetadata{
		FriendlyName: info.Name(),
		ResourcePath: p,
		Size:         info.Size(),
		// SFTP v3 не передаёт время создания
		CreatedTime: info.ModTime(),
		UpdateTime:  info.ModTime(),
	}
}

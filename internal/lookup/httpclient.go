// Пакет lookup — общий HTTP-транспорт для сервисов поиска ресурсов и секретов.
// Поддерживает TLS с кастомным CA (MFT_LOOKUP_CA_CERT_PATH).
package lookup

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bigkaa/mft/internal/domain/model"
)

// ErrNotFound — сервис ответил 404.
var ErrNotFound = errors.New("объект не найден в сервисе поиска")

// StatusError — неожиданный HTTP-статус ответа сервиса.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s вернул статус %d: %s", e.URL, e.StatusCode, e.Body)
}

// NewHTTPClient создаёт HTTP-клиент с таймаутом.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
func NewHTTPClient(caCertPath string, timeout time.Duration, logger *slog.Logger) (*http.Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат сервисов поиска добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return httpClient, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("файл %s не содержит PEM-сертификатов", caCertPath)
	}

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// GetJSON выполняет GET и декодирует JSON-ответ в out.
// Токен вызывающего передаётся как Bearer, если не пуст.
func GetJSON(ctx context.Context, client *http.Client, reqURL string, auth model.AuthToken, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+string(auth))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("запрос к %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{URL: reqURL, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("декодирование ответа %s: %w", reqURL, err)
	}
	return nil
}

// NormalizeURL убирает trailing slash из URL.
func NormalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}

// Пакет secretclient — разрешение токена учётных данных в секрет.
// Поддерживает несколько хранилищ секретов, выбираемых селектором
// backend ("http", "aws").
package secretclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/lookup"
)

// Ошибки хранилища секретов.
var (
	// ErrNotFound — секрет не найден.
	ErrNotFound = errors.New("секрет не найден")
	// ErrUnknownBackend — селектор не соответствует ни одному хранилищу.
	ErrUnknownBackend = errors.New("неизвестный backend хранилища секретов")
)

// Backend — одно хранилище секретов.
type Backend interface {
	GetSecret(ctx context.Context, auth model.AuthToken, token string) (*model.Secret, error)
}

// --- HTTP ---

// HTTPBackend — хранилище секретов, доступное по HTTP:
// GET {baseURL}/api/v1/secrets/{token}.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPBackend создаёт HTTP-хранилище секретов.
func NewHTTPBackend(baseURL string, httpClient *http.Client) *HTTPBackend {
	return &HTTPBackend{baseURL: lookup.NormalizeURL(baseURL), httpClient: httpClient}
}

// GetSecret запрашивает секрет у HTTP-сервиса.
func (b *HTTPBackend) GetSecret(ctx context.Context, auth model.AuthToken, token string) (*model.Secret, error) {
	reqURL := b.baseURL + "/api/v1/secrets/" + url.PathEscape(token)

	var secret model.Secret
	if err := lookup.GetJSON(ctx, b.httpClient, reqURL, auth, &secret); err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			return nil, ErrNotFound
		}
		// Токен не попадает в текст ошибки
		return nil, fmt.Errorf("получение секрета: %w", err)
	}
	if secret.ID == "" {
		secret.ID = token
	}
	return &secret, nil
}

// --- AWS Secrets Manager ---

// SecretsManagerAPI — подмножество клиента AWS Secrets Manager.
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSBackend — секреты в AWS Secrets Manager. Токен учётных данных — имя
// или ARN секрета, значение секрета — JSON payload (S3Secret, SCPSecret, ...).
type AWSBackend struct {
	api SecretsManagerAPI
}

// NewAWSBackend создаёт клиент Secrets Manager из стандартной цепочки
// конфигурации AWS. endpoint — кастомный адрес (LocalStack), опционально.
func NewAWSBackend(ctx context.Context, region, endpoint string) (*AWSBackend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации AWS: %w", err)
	}

	api := secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &AWSBackend{api: api}, nil
}

// NewAWSBackendWithAPI создаёт хранилище поверх готового клиента.
func NewAWSBackendWithAPI(api SecretsManagerAPI) *AWSBackend {
	return &AWSBackend{api: api}
}

// GetSecret читает значение секрета.
func (b *AWSBackend) GetSecret(ctx context.Context, _ model.AuthToken, token string) (*model.Secret, error) {
	out, err := b.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(token),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "ResourceNotFoundException" {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("secretsmanager: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return nil, fmt.Errorf("secretsmanager: %w", err)
	}

	var payload []byte
	switch {
	case out.SecretString != nil:
		payload = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		payload = out.SecretBinary
	default:
		return nil, fmt.Errorf("секрет %s пуст", aws.ToString(out.Name))
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("значение секрета %s не является JSON", aws.ToString(out.Name))
	}

	return &model.Secret{ID: token, Payload: json.RawMessage(payload)}, nil
}

// --- Router ---

// Router выбирает хранилище по селектору. Пустой селектор — хранилище по умолчанию.
type Router struct {
	backends       map[string]Backend
	defaultBackend string
	logger         *slog.Logger
}

// NewRouter создаёт маршрутизатор хранилищ секретов.
func NewRouter(defaultBackend string, logger *slog.Logger) *Router {
	return &Router{
		backends:       make(map[string]Backend),
		defaultBackend: strings.ToLower(defaultBackend),
		logger:         logger.With(slog.String("component", "secret_client")),
	}
}

// Register добавляет хранилище под именем селектора.
func (r *Router) Register(name string, b Backend) {
	r.backends[strings.ToLower(name)] = b
}

// Backends возвращает имена зарегистрированных хранилищ.
func (r *Router) Backends() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSecret разрешает секрет через хранилище, выбранное селектором.
// Секреты не кэшируются.
func (r *Router) GetSecret(ctx context.Context, auth model.AuthToken, token, backend string) (*model.Secret, error) {
	name := strings.ToLower(strings.TrimSpace(backend))
	if name == "" {
		name = r.defaultBackend
	}
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	secret, err := b.GetSecret(ctx, auth, token)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Секрет разрешён", slog.String("backend", name))
	return secret, nil
}

// Пакет config — загрузка и валидация конфигурации MFT Controller
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации MFT Controller.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL (журнал передач, реестр ресурсов sql) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Consul (координационное хранилище) ---

	// Адрес агента Consul (host:port)
	ConsulAddr string
	// Схема (http, https)
	ConsulScheme string
	// ACL-токен (опционально)
	ConsulToken string
	// Максимальное время blocking query
	ConsulWaitTime time.Duration

	// --- Префиксы ключей ---

	// Префикс входящих запросов на передачу
	RequestPrefix string
	// Префикс входящих состояний передач от агентов
	StatePrefix string
	// Префикс ключей живых агентов
	AgentLivePrefix string
	// Префикс почтовых ящиков агентов (команды)
	AgentMessagePrefix string

	// Таймаут одной единицы обработки ключа (запрос или состояние)
	OperationTimeout time.Duration

	// --- Сервисы поиска ресурсов и секретов ---

	// URL HTTP-сервиса ресурсов (backend "http", опционально)
	ResourceServiceURL string
	// URL HTTP-сервиса секретов (backend "http", опционально)
	SecretServiceURL string
	// Таймаут HTTP-клиентов сервисов поиска
	LookupTimeout time.Duration
	// Путь к CA-сертификату для TLS с сервисами поиска (опционально)
	LookupCACertPath string
	// Регион AWS Secrets Manager (пусто — backend "aws" отключён)
	AWSSecretsRegion string
	// Кастомный endpoint AWS Secrets Manager (LocalStack)
	AWSSecretsEndpoint string

	// --- JWT ---

	// URL JWKS endpoint (пусто — аутентификация API отключена)
	JWTJWKSURL string
	// Ожидаемый issuer JWT (пусто — не проверяется)
	JWTIssuer string
	// Допустимое отклонение времени
	JWTLeeway time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Локальная ФС ---

	// Корень, относительно которого разрешаются LOCAL ресурсы
	LocalRoot string

	// --- SCP ---

	// Файл known_hosts для проверки ключей SSH хостов (пусто — без проверки)
	SCPKnownHosts string

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// MFT_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("MFT_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("MFT_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MFT_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MFT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MFT_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("MFT_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MFT_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("MFT_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MFT_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("MFT_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MFT_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("MFT_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MFT_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("MFT_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("MFT_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MFT_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("MFT_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("MFT_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("MFT_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("MFT_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MFT_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Consul ---

	cfg.ConsulAddr = getEnvDefault("MFT_CONSUL_ADDR", "127.0.0.1:8500")
	cfg.ConsulScheme = getEnvDefault("MFT_CONSUL_SCHEME", "http")
	if cfg.ConsulScheme != "http" && cfg.ConsulScheme != "https" {
		return nil, fmt.Errorf("MFT_CONSUL_SCHEME: недопустимое значение %q, допустимые: http, https", cfg.ConsulScheme)
	}
	cfg.ConsulToken = getEnvDefault("MFT_CONSUL_TOKEN", "")
	cfg.ConsulWaitTime, err = getEnvDuration("MFT_CONSUL_WAIT_TIME", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MFT_CONSUL_WAIT_TIME: %w", err)
	}

	// --- Префиксы ключей ---

	cfg.RequestPrefix = normalizePrefix(getEnvDefault("MFT_REQUEST_PREFIX", "mft/controller/messages"))
	cfg.StatePrefix = normalizePrefix(getEnvDefault("MFT_STATE_PREFIX", "mft/transfer/state"))
	cfg.AgentLivePrefix = normalizePrefix(getEnvDefault("MFT_AGENT_LIVE_PREFIX", "mft/agent/live"))
	cfg.AgentMessagePrefix = normalizePrefix(getEnvDefault("MFT_AGENT_MESSAGE_PREFIX", "mft/agents/messages"))
	if cfg.RequestPrefix == "" || cfg.StatePrefix == "" {
		return nil, fmt.Errorf("MFT_REQUEST_PREFIX, MFT_STATE_PREFIX: префиксы не могут быть пустыми")
	}
	if overlaps(cfg.RequestPrefix, cfg.StatePrefix) {
		return nil, fmt.Errorf("MFT_REQUEST_PREFIX (%q) и MFT_STATE_PREFIX (%q) должны быть непересекающимися",
			cfg.RequestPrefix, cfg.StatePrefix)
	}

	cfg.OperationTimeout, err = getEnvPositiveDuration("MFT_OPERATION_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MFT_OPERATION_TIMEOUT: %w", err)
	}

	// --- Сервисы поиска ---

	cfg.ResourceServiceURL = strings.TrimRight(getEnvDefault("MFT_RESOURCE_SERVICE_URL", ""), "/")
	cfg.SecretServiceURL = strings.TrimRight(getEnvDefault("MFT_SECRET_SERVICE_URL", ""), "/")
	for key, raw := range map[string]string{
		"MFT_RESOURCE_SERVICE_URL": cfg.ResourceServiceURL,
		"MFT_SECRET_SERVICE_URL":   cfg.SecretServiceURL,
	} {
		if raw == "" {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return nil, fmt.Errorf("%s: некорректный URL %q", key, raw)
		}
	}
	cfg.LookupTimeout, err = getEnvPositiveDuration("MFT_LOOKUP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MFT_LOOKUP_TIMEOUT: %w", err)
	}
	cfg.LookupCACertPath = getEnvDefault("MFT_LOOKUP_CA_CERT_PATH", "")
	cfg.AWSSecretsRegion = getEnvDefault("MFT_AWS_SECRETS_REGION", "")
	cfg.AWSSecretsEndpoint = getEnvDefault("MFT_AWS_SECRETS_ENDPOINT", "")

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("MFT_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("MFT_JWT_ISSUER", "")
	cfg.JWTLeeway, err = getEnvDuration("MFT_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MFT_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvPositiveDuration("MFT_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MFT_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("MFT_DEPHEALTH_GROUP", "mft")
	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("MFT_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MFT_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.LocalRoot = getEnvDefault("MFT_LOCAL_ROOT", "/")
	cfg.SCPKnownHosts = getEnvDefault("MFT_SCP_KNOWN_HOSTS", "")

	cfg.ShutdownTimeout, err = getEnvDuration("MFT_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MFT_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// ConsulURL возвращает базовый URL HTTP API Consul.
func (c *Config) ConsulURL() string {
	return fmt.Sprintf("%s://%s", c.ConsulScheme, c.ConsulAddr)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// normalizePrefix убирает ведущие и завершающие слэши: Consul KV не использует ведущий "/".
func normalizePrefix(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

// overlaps сообщает, вложен ли один префикс в другой.
func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

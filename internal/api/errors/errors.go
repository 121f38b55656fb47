// Пакет errors — ответы с ошибками в едином формате MFT Controller.
// Формат: {"error": {"code": "...", "message": "..."}}.
// FromError переводит ошибки сервисов и сборщиков в HTTP-статус.
package errors

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/resourceclient"
	"github.com/bigkaa/mft/internal/secretclient"
	"github.com/bigkaa/mft/internal/service"
)

// Коды ошибок API.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeNotImplemented    = "NOT_IMPLEMENTED"
	CodeLookupUnavailable = "LOOKUP_UNAVAILABLE"
	CodeInternalError     = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 объект не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 объект уже существует.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// NotImplemented — 501 бэкенд не поддерживает операцию.
func NotImplemented(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotImplemented, CodeNotImplemented, message)
}

// LookupUnavailable — 502 сбой реестра ресурсов, хранилища секретов или удалённого хранилища.
func LookupUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeLookupUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromError выбирает статус по ошибке сервиса. Неклассифицированные ошибки
// логируются и возвращаются как 500 без подробностей.
func FromError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var lookupErr *connector.LookupError

	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, connector.ErrInvalidPath),
		errors.Is(err, connector.ErrUnknownStorageType),
		errors.Is(err, connector.ErrStorageTypeMismatch),
		errors.Is(err, resourceclient.ErrUnknownBackend),
		errors.Is(err, secretclient.ErrUnknownBackend):
		ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, connector.ErrNotFound),
		errors.Is(err, resourceclient.ErrNotFound),
		errors.Is(err, secretclient.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		Conflict(w, err.Error())
	case errors.Is(err, connector.ErrUnsupported):
		NotImplemented(w, err.Error())
	case errors.As(err, &lookupErr):
		LookupUnavailable(w, err.Error())
	default:
		logger.Error("Необработанная ошибка запроса", slog.String("error", err.Error()))
		InternalError(w, "Внутренняя ошибка сервера")
	}
}

// errors стандартизирует ответы об ошибках сессионного API.
// На вход принимает ошибку сервисного слоя, на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Все причины отказа в проверке токена схлопываются в один ответ 401
// unauthenticated: клиент не узнаёт, истёк токен, отозван или подделан.
// Блокировка (429) и CSRF (403) различимы: они не раскрывают существование учётной записи.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"math"
	"net/http"
	"strconv"

	"github.com/pribylovaa/go-auth-core/internal/csrf"
	"github.com/pribylovaa/go-auth-core/internal/service"
)

// StatusClientClosedRequest - нестандартный код для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// ErrInvalidArgument - тело или параметры запроса не разбираются.
var ErrInvalidArgument = stderrors.New("invalid argument")

// APIError - единый формат для фронта.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse - корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело ответа.
// err == nil - программная ошибка вызова: 500/internal.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

// WriteError пишет статус и тело, добавляет request_id и, для блокировки, Retry-After.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	if ra, ok := RetryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.FormatInt(ra, 10))
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="auth"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// RetryAfter возвращает значение заголовка Retry-After в целых секундах
// (с округлением вверх, минимум 1) для ошибки блокировки.
func RetryAfter(err error) (int64, bool) {
	var locked *service.AccountLockedError
	if !stderrors.As(err, &locked) {
		return 0, false
	}

	secs := int64(math.Ceil(locked.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}

	return secs, true
}

// classify - таблица маппинга:
//   - ошибки токена -> 401 unauthenticated
//   - неверные учётные данные и повторное использование refresh -> 401 invalid_credentials
//   - блокировка -> 429 account_locked
//   - CSRF -> 403 csrf_mismatch, неподтверждённый email -> 403 email_unverified
//   - валидация -> 400, занятый email -> 409, не найдено -> 404
//   - отмена клиентом -> 499, дедлайн -> 504
//   - прочее -> 500/internal
func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case service.IsTokenError(err), stderrors.Is(err, service.ErrInvalidSignature):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case stderrors.Is(err, service.ErrInvalidCredentials), stderrors.Is(err, service.ErrReuseDetected):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case stderrors.Is(err, service.ErrAccountLocked):
		return http.StatusTooManyRequests, "account_locked", "too many failed attempts"
	case stderrors.Is(err, csrf.ErrMismatch):
		return http.StatusForbidden, "csrf_mismatch", "csrf token missing or invalid"
	case stderrors.Is(err, service.ErrEmailUnverified):
		return http.StatusForbidden, "email_unverified", "email is not verified"
	case stderrors.Is(err, ErrInvalidArgument),
		stderrors.Is(err, service.ErrInvalidEmail),
		stderrors.Is(err, service.ErrWeakPassword),
		stderrors.Is(err, service.ErrEmptyPassword),
		stderrors.Is(err, service.ErrInvalidState):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case stderrors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "already_exists", "already exists"
	case stderrors.Is(err, service.ErrUserNotFound), stderrors.Is(err, service.ErrUnknownProvider):
		return http.StatusNotFound, "not_found", "not found"
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}


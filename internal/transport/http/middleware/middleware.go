package middleware

import (
	"context"
	"net/http"

	"github.com/pribylovaa/go-auth-core/internal/models"
)

// Middleware - стандартный net/http мидлвар.
type Middleware func(http.Handler) http.Handler

// Chain применяет мидлвары к обработчику в порядке их перечисления.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxBearer
	ctxIdentity
	ctxClientIP
)

// RequestIDFrom возвращает X-Request-Id текущего запроса.
func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

// BearerFrom возвращает "сырой" Bearer-токен запроса (может быть пустым).
func BearerFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxBearer).(string)
	return v
}

// IdentityFrom возвращает личность, установленную RequireAuth.
func IdentityFrom(ctx context.Context) (*models.Identity, bool) {
	v, ok := ctx.Value(ctxIdentity).(*models.Identity)
	return v, ok && v != nil
}

// ClientIPFrom возвращает адрес источника, определённый ClientIP.
func ClientIPFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxClientIP).(string)
	return v
}

// WithIdentity кладёт личность в контекст (тесты и gRPC-мосты).
func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// statusWriter оборачивает ResponseWriter, чтобы перехватить статус и размер.
type statusWriter struct {
	http.ResponseWriter
	status int
	count  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	count, err := w.ResponseWriter.Write(p)
	w.count += count
	return count, err
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w}
}

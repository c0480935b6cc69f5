package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/pribylovaa/go-auth-core/internal/pkg/redact"
	apierrors "github.com/pribylovaa/go-auth-core/internal/transport/http/errors"
)

// Recover перехватывает panic обработчиков сессионного API и отвечает 500/internal.
// Стоит внешним мидлваром, поэтому логгер передаётся явно, а источник
// берётся из RemoteAddr и маскируется. Детали паники клиенту не отдаются.
// http.ErrAbortHandler пробрасывается дальше: net/http сам оборвёт соединение.
func Recover(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "transport.http.middleware.Recover"

			sw := newStatusWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				l.LogAttrs(r.Context(), slog.LevelError, "http_panic",
					slog.String("op", op),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					// RequestID пишет сгенерированный id и в заголовок запроса.
					slog.String("request_id", r.Header.Get("X-Request-Id")),
					slog.String("source", redact.IP(clientIP(r, false))),
					slog.Any("reason", rec),
					slog.String("stack", string(debug.Stack())),
				)

				// Ответ уже начат - дописать конверт ошибки нельзя.
				if sw.status != 0 {
					return
				}
				apierrors.WriteError(sw, r, errors.New("internal"))
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

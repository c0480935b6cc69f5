package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/go-auth-core/internal/pkg/log"
	apierrors "github.com/pribylovaa/go-auth-core/internal/transport/http/errors"
)

// Timeout ограничивает время обработки запроса сессионного API.
// Уже заданный deadline не переопределяется; d<=0 - no-op.
// Если обработчик вернулся по истёкшему deadline, ничего не записав,
// клиент получает 504/deadline_exceeded.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "transport.http.middleware.Timeout"

			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || sw.status != 0 {
				return
			}

			log.From(ctx).LogAttrs(ctx, slog.LevelWarn, "request_timeout",
				slog.String("op", op),
				slog.String("path", r.URL.Path),
				slog.Duration("timeout", d),
			)
			apierrors.WriteError(sw, r, context.DeadlineExceeded)
		})
	}
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-auth-core/internal/csrf"
	"github.com/pribylovaa/go-auth-core/internal/metrics"
	apierrors "github.com/pribylovaa/go-auth-core/internal/transport/http/errors"
	"github.com/pribylovaa/go-auth-core/internal/transport/http/handlers"
	"github.com/pribylovaa/go-auth-core/internal/transport/http/middleware"
)

// Options - параметры сборки HTTP-роутера.
type Options struct {
	Logger     *slog.Logger
	Timeout    time.Duration
	TrustProxy bool
	Metrics    *metrics.Metrics
	// Handlers - параметры cookie и collaborator-путей; BasePath ("/auth")
	// задаёт и префикс маршрутов, и Path refresh-cookie.
	Handlers handlers.Options
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc handlers.SessionService, guard *csrf.Guard, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(opts.Logger),
		middleware.RequestID(),
		middleware.ClientIP(opts.TrustProxy),
		middleware.Logging(opts.Logger),
		middleware.AuthBearer(),
		middleware.Timeout(opts.Timeout),
		// CSRF проверяется до любой проверки Bearer-токена.
		guard.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
			opts.Metrics.CSRFRejected()
			apierrors.WriteError(w, r, err)
		}),
	)

	h := handlers.New(svc, guard, opts.Handlers)
	requireAuth := middleware.RequireAuth(svc)

	register := func(r chi.Router) {
		r.Get("/csrf", h.CSRF)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)

		r.With(requireAuth).Get("/me", h.Me)
		r.With(requireAuth).Post("/password", h.ChangePassword)

		r.Get("/oauth/{provider}/start", h.OAuthStart)
		r.Get("/oauth/{provider}/callback", h.OAuthCallback)
		r.Post("/oauth/{provider}/callback", h.OAuthCallback)

		r.Post("/webhooks/email-verified", h.EmailVerified)
	}

	if base := opts.Handlers.BasePath; base != "" && base != "/" {
		sub := chi.NewRouter()
		register(sub)
		root.Mount(base, sub)
		return root
	}

	register(root)
	return root
}

package handlers

import (
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-auth-core/internal/service"
	apierrors "github.com/pribylovaa/go-auth-core/internal/transport/http/errors"
	"github.com/pribylovaa/go-auth-core/internal/transport/http/middleware"
)

const stateCookie = "oauth_state"

func (h *Handlers) stateCookiePath() string {
	return path.Join(h.opts.BasePath, "oauth")
}

// OAuthStart перенаправляет браузер к провайдеру и запоминает state в cookie.
func (h *Handlers) OAuthStart(w http.ResponseWriter, r *http.Request) {
	target, state, err := h.svc.BeginOAuth(chi.URLParam(r, "provider"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     h.stateCookiePath(),
		Domain:   h.opts.CookieDomain,
		MaxAge:   int(h.opts.OAuthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure(r),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, target, http.StatusFound)
}

// OAuthCallback завершает вход через провайдера: сверяет state с cookie,
// обменивает код и выдаёт пару токенов так же, как Login.
func (h *Handlers) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	var expected string
	if c, err := r.Cookie(stateCookie); err == nil {
		expected = c.Value
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Path:     h.stateCookiePath(),
		Domain:   h.opts.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure(r),
	})

	if err := service.CheckState(expected, r.Form.Get("state")); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	code := r.Form.Get("code")
	if r.Form.Get("error") != "" || code == "" {
		apierrors.WriteError(w, r, service.ErrInvalidCredentials)
		return
	}

	pair, err := h.svc.LoginWithIdentity(r.Context(), chi.URLParam(r, "provider"), code, middleware.ClientIPFrom(r.Context()))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, r, pair)

	if h.opts.OAuthRedirect != "" {
		http.Redirect(w, r, h.opts.OAuthRedirect, http.StatusSeeOther)
		return
	}

	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

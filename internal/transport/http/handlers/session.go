package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pribylovaa/go-auth-core/internal/service"
	apierrors "github.com/pribylovaa/go-auth-core/internal/transport/http/errors"
	"github.com/pribylovaa/go-auth-core/internal/transport/http/middleware"
)

type csrfResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// CSRF выдаёт новый CSRF-токен в cookie, заголовке и теле.
func (h *Handlers) CSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.guard.Issue()
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, h.guard.Cookie(token, h.secure(r)))
	w.Header().Set(h.guard.HeaderName(), token)
	writeJSON(w, http.StatusOK, csrfResponse{CSRFToken: token})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login - вход по email и паролю. Refresh-токен дублируется в HttpOnly cookie.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	pair, err := h.svc.LoginUser(r.Context(), in.Email, in.Password, middleware.ClientIPFrom(r.Context()))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, r, pair)
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

type registerResponse struct {
	UserID string `json:"user_id"`
}

// Register создаёт учётную запись с неподтверждённым email.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	id, err := h.svc.RegisterUser(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{UserID: id.String()})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh обменивает refresh-токен (cookie или тело) на новую пару.
// При любой ошибке токена cookie очищается: цепочка сессии больше не годится.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeOptional(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	token := in.RefreshToken
	if token == "" {
		token = h.refreshFromCookie(r)
	}

	pair, err := h.svc.RefreshSession(r.Context(), token, middleware.ClientIPFrom(r.Context()))
	if err != nil {
		if service.IsTokenError(err) || errors.Is(err, service.ErrReuseDetected) {
			h.clearRefreshCookie(w, r)
		}
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, r, pair)
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

type logoutRequest struct {
	AllDevices   bool   `json:"all_devices"`
	RefreshToken string `json:"refresh_token"`
}

// Logout отзывает текущую сессию (или все при all_devices) и очищает cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in logoutRequest
	if err := decodeOptional(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	refresh := in.RefreshToken
	if refresh == "" {
		refresh = h.refreshFromCookie(r)
	}

	h.clearRefreshCookie(w, r)

	err := h.svc.Logout(r.Context(), service.LogoutRequest{
		AccessToken:  middleware.BearerFrom(r.Context()),
		RefreshToken: refresh,
		AllDevices:   in.AllDevices,
		Source:       middleware.ClientIPFrom(r.Context()),
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	TokenVersion int64     `json:"token_version"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Me возвращает личность владельца access-токена.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrTokenMalformed)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserID:       id.UserID.String(),
		Email:        id.Email,
		TokenVersion: id.TokenVersion,
		ExpiresAt:    id.ExpiresAt,
	})
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword меняет пароль и выдаёт текущему устройству новую пару.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrTokenMalformed)
		return
	}

	var in passwordRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	pair, err := h.svc.ChangePassword(r.Context(), id.UserID, in.CurrentPassword, in.NewPassword, middleware.ClientIPFrom(r.Context()))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, r, pair)
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

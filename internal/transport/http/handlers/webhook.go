package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/service"
	apierrors "github.com/pribylovaa/go-auth-core/internal/transport/http/errors"
)

// SignatureHeader - заголовок с HMAC-SHA256 подписью тела вебхука.
const SignatureHeader = "X-Webhook-Signature"

type emailVerifiedRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// EmailVerified - server-to-server вебхук сервиса подтверждения email.
// Подпись проверяется по сырому телу до разбора JSON.
func (h *Handlers) EmailVerified(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	if err := service.CheckWebhookSignature(h.opts.WebhookSecret, body, r.Header.Get(SignatureHeader)); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in emailVerifiedRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	switch {
	case in.UserID != "":
		id, perr := uuid.Parse(in.UserID)
		if perr != nil {
			apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
			return
		}
		err = h.svc.MarkEmailVerified(r.Context(), id)
	case in.Email != "":
		_, err = h.svc.MarkEmailVerifiedByEmail(r.Context(), in.Email)
	default:
		err = apierrors.ErrInvalidArgument
	}

	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

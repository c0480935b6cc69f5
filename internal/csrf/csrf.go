// Package csrf реализует double-submit защиту от CSRF: токен выдаётся в
// cookie, доступной скрипту, и клиент повторяет его в заголовке каждого
// изменяющего запроса. Сервер сравнивает обе копии за постоянное время и,
// если задан секрет, проверяет HMAC-подпись токена.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pribylovaa/go-auth-core/internal/config"
)

// ErrMismatch - токен отсутствует, копии не совпадают или подпись неверна.
var ErrMismatch = errors.New("csrf token mismatch")

const nonceSize = 32

// Options - параметры Guard.
type Options struct {
	// Secret - ключ HMAC; пустая строка отключает проверку подписи.
	Secret string
	// HeaderNames и CookieNames - упорядоченные списки имён; побеждает первое найденное.
	HeaderNames []string
	CookieNames []string
	// Exempt - пары "METHOD /path", для которых проверка не выполняется.
	Exempt []string
	// TTL - срок жизни cookie с токеном.
	TTL      time.Duration
	Domain   string
	SameSite http.SameSite
}

// Guard выпускает и проверяет CSRF-токены.
type Guard struct {
	secret      []byte
	headerNames []string
	cookieNames []string
	exempt      map[string]struct{}
	ttl         time.Duration
	domain      string
	sameSite    http.SameSite
}

// New создаёт Guard. Списки имён не могут быть пустыми.
func New(opts Options) (*Guard, error) {
	const op = "csrf.New"

	if len(opts.HeaderNames) == 0 || len(opts.CookieNames) == 0 {
		return nil, fmt.Errorf("%s: header and cookie names are required", op)
	}

	g := &Guard{
		headerNames: opts.HeaderNames,
		cookieNames: opts.CookieNames,
		exempt:      make(map[string]struct{}, len(opts.Exempt)),
		ttl:         opts.TTL,
		domain:      opts.Domain,
		sameSite:    opts.SameSite,
	}
	if opts.Secret != "" {
		g.secret = []byte(opts.Secret)
	}

	for _, e := range opts.Exempt {
		method, path, ok := config.SplitExemption(e)
		if !ok {
			return nil, fmt.Errorf("%s: bad exemption %q", op, e)
		}
		g.exempt[method+" "+path] = struct{}{}
	}

	return g, nil
}

// Issue выпускает новый токен: base64url(nonce) "." base64url(HMAC(secret, nonce)).
func (g *Guard) Issue() (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("csrf.Issue: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(nonce) + "." +
		base64.RawURLEncoding.EncodeToString(g.sign(nonce)), nil
}

// Validate сравнивает значения cookie и заголовка.
func (g *Guard) Validate(cookie, header string) error {
	if cookie == "" || header == "" {
		return ErrMismatch
	}

	if subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
		return ErrMismatch
	}

	if g.secret == nil {
		return nil
	}

	nonceB64, sigB64, ok := strings.Cut(cookie, ".")
	if !ok {
		return ErrMismatch
	}

	nonce, err := base64.RawURLEncoding.DecodeString(nonceB64)
	if err != nil || len(nonce) != nonceSize {
		return ErrMismatch
	}

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil || !hmac.Equal(sig, g.sign(nonce)) {
		return ErrMismatch
	}

	return nil
}

// FromRequest возвращает токен из первой найденной cookie и первого найденного заголовка.
func (g *Guard) FromRequest(r *http.Request) (cookie, header string) {
	for _, name := range g.cookieNames {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			cookie = c.Value
			break
		}
	}

	for _, name := range g.headerNames {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			header = v
			break
		}
	}

	return cookie, header
}

// Exempt сообщает, освобождён ли запрос от проверки: безопасные методы
// и точные пары (METHOD, path) из конфигурации.
func (g *Guard) Exempt(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}

	_, ok := g.exempt[r.Method+" "+r.URL.Path]
	return ok
}

// Check проверяет запрос целиком.
func (g *Guard) Check(r *http.Request) error {
	if g.Exempt(r) {
		return nil
	}

	return g.Validate(g.FromRequest(r))
}

// Cookie строит cookie для выданного токена. HttpOnly не ставится:
// клиентский скрипт должен прочитать значение и повторить его в заголовке.
func (g *Guard) Cookie(token string, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     g.cookieNames[0],
		Value:    token,
		Path:     "/",
		Domain:   g.domain,
		Secure:   secure,
		SameSite: g.sameSite,
	}
	if g.ttl > 0 {
		c.MaxAge = int(g.ttl.Seconds())
		c.Expires = time.Now().Add(g.ttl).UTC()
	}

	return c
}

// HeaderName - основное имя заголовка, в котором сервер возвращает токен.
func (g *Guard) HeaderName() string {
	return g.headerNames[0]
}

// Middleware отклоняет изменяющие запросы без валидного токена, вызывая reject.
func (g *Guard) Middleware(reject func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Check(r); err != nil {
				reject(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) sign(nonce []byte) []byte {
	if g.secret == nil {
		return nil
	}

	mac := hmac.New(sha256.New, g.secret)
	mac.Write(nonce)
	return mac.Sum(nil)
}

// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultLockoutThreshold - порог неудачных попыток, если lockout.threshold не задан.
const DefaultLockoutThreshold = 5

// thresholdUnset отличает отсутствующий ключ от явного 0.
const thresholdUnset = math.MinInt32

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config - корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	GRPC     GRPCConfig    `yaml:"grpc"`
	Auth     AuthConfig    `yaml:"auth"`
	CSRF     CSRFConfig    `yaml:"csrf"`
	Cookie   CookieConfig  `yaml:"cookie"`
	Lockout  LockoutConfig `yaml:"lockout"`
	Storage  StorageConfig `yaml:"storage"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	NATS     NATSConfig    `yaml:"nats"`
	Audit    AuditConfig   `yaml:"audit"`
	OAuth    OAuthConfig   `yaml:"oauth"`
	Webhook  WebhookConfig `yaml:"webhook"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Janitor  JanitorConfig `yaml:"janitor"`
}

// TimeoutConfig - таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig - сетевые настройки HTTP-сервера сессионного API.
type HTTPConfig struct {
	Host     string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:"/auth"`
	// TrustProxy - доверять X-Forwarded-For/X-Forwarded-Proto (сервис за балансировщиком).
	TrustProxy bool `yaml:"trust_proxy" env:"HTTP_TRUST_PROXY" env-default:"false"`
}

// GRPCConfig описывает сетевые настройки внутреннего gRPC-сервера.
// Сервер включён по умолчанию; false - нулевое значение, поэтому флаг инвертирован.
type GRPCConfig struct {
	Disabled bool   `yaml:"disabled" env:"GRPC_DISABLED" env-default:"false"`
	Host     string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"GRPC_PORT" env-default:"50051"`
}

// Addr возвращает адрес в формате host:port.
func (g HTTPConfig) Addr() string {
	return net.JoinHostPort(g.Host, g.Port)
}

// Addr возвращает адрес в формате host:port.
func (g GRPCConfig) Addr() string {
	return net.JoinHostPort(g.Host, g.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
//
// AccessTokenTTL намеренно настраиваемый: длинный TTL опирается на отзыв по jti
// и token_version, короткий - на частый silent refresh.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	Issuer          string        `yaml:"issuer" env:"ISSUER" env-default:"auth-core"`
	Audience        []string      `yaml:"audience" env:"AUDIENCE" env-default:"web"`
	Leeway          time.Duration `yaml:"leeway" env:"TOKEN_LEEWAY" env-default:"0s"`
	BcryptCost      int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// CSRFConfig - параметры double-submit защиты.
type CSRFConfig struct {
	// Secret подписывает CSRF-токены (HMAC-SHA256); пустое значение отключает проверку подписи.
	Secret      string   `yaml:"secret" env:"CSRF_SECRET"`
	HeaderNames []string `yaml:"header_names" env:"CSRF_HEADER_NAMES" env-default:"X-CSRF-Token,X-XSRF-Token"`
	CookieNames []string `yaml:"cookie_names" env:"CSRF_COOKIE_NAMES" env-default:"csrf_token,XSRF-TOKEN"`
	// Exempt - точные пары "METHOD /path" без проверки CSRF (server-to-server вебхуки).
	Exempt []string      `yaml:"exempt" env:"CSRF_EXEMPT" env-default:"POST /auth/webhooks/email-verified"`
	TTL    time.Duration `yaml:"ttl" env:"CSRF_TTL" env-default:"12h"`
}

// CookieConfig - параметры cookie с refresh-токеном.
type CookieConfig struct {
	RefreshName string `yaml:"refresh_name" env:"COOKIE_REFRESH_NAME" env-default:"refresh_token"`
	Domain      string `yaml:"domain" env:"COOKIE_DOMAIN"`
	// Secure - всегда ставить Secure; иначе флаг ставится для TLS/X-Forwarded-Proto=https.
	Secure   bool   `yaml:"secure" env:"COOKIE_SECURE" env-default:"false"`
	SameSite string `yaml:"same_site" env:"COOKIE_SAME_SITE" env-default:"lax"`
}

// LockoutConfig - политика блокировки перебора.
//
// У Threshold нет env-default: cleanenv подставил бы его и вместо явного 0.
// Значение по умолчанию применяется в Load, только если ключ не задан.
type LockoutConfig struct {
	Threshold int           `yaml:"threshold" env:"LOCKOUT_THRESHOLD"`
	Window    time.Duration `yaml:"window" env:"LOCKOUT_WINDOW" env-default:"15m"`
	Duration  time.Duration `yaml:"duration" env:"LOCKOUT_DURATION" env-default:"15m"`
}

// StorageConfig - выбор основного хранилища.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE" env-default:"false"`
}

// DBConfig - настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
}

// RedisConfig - Redis для denylist и счётчиков блокировок (опционально).
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"auth:"`
}

// NATSConfig - публикация событий безопасности (опционально).
type NATSConfig struct {
	URL           string `yaml:"url" env:"NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX" env-default:"auth.events"`
}

// AuditConfig - журнал аудита в MongoDB (опционально).
type AuditConfig struct {
	MongoURL   string        `yaml:"mongo_url" env:"AUDIT_MONGO_URL"`
	Retention  time.Duration `yaml:"retention" env:"AUDIT_RETENTION" env-default:"2160h"`
	BufferSize int           `yaml:"buffer_size" env:"AUDIT_BUFFER_SIZE" env-default:"1024"`
}

// OAuthConfig - параметры callback-пути внешнего провайдера идентичности.
type OAuthConfig struct {
	// SuccessRedirect - куда отправить браузер после успешного callback; пусто - ответ JSON.
	SuccessRedirect string        `yaml:"success_redirect" env:"OAUTH_SUCCESS_REDIRECT"`
	StateTTL        time.Duration `yaml:"state_ttl" env:"OAUTH_STATE_TTL" env-default:"10m"`
}

// WebhookConfig - общий секрет server-to-server вебхуков.
type WebhookConfig struct {
	Secret string `yaml:"secret" env:"WEBHOOK_SECRET"`
}

// JanitorConfig - периодическая очистка просроченных записей.
type JanitorConfig struct {
	Interval time.Duration `yaml:"interval" env:"JANITOR_INTERVAL" env-default:"30m"`
}

// MustLoad - обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла поверх значений из YAML накладываются ENV-переменные.
func Load(path string) (*Config, error) {
	var cfg Config
	cfg.Lockout.Threshold = thresholdUnset

	tryRead := func(p string) error {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return fmt.Errorf("failed to overlay env: %w", err)
		}

		return nil
	}

	switch {
	case path != "":
		if err := tryRead(path); err != nil {
			return nil, err
		}
	case os.Getenv("CONFIG_PATH") != "":
		if err := tryRead(os.Getenv("CONFIG_PATH")); err != nil {
			return nil, err
		}
	default:
		if _, err := os.Stat("local.yaml"); err == nil {
			if err := tryRead("local.yaml"); err != nil {
				return nil, err
			}
			break
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
		}
	}

	if cfg.Lockout.Threshold == thresholdUnset {
		cfg.Lockout.Threshold = DefaultLockoutThreshold
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate проверяет зависимости между полями, которые не выражаются тегами.
func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("invalid config: auth.jwt_secret is required")
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DB.DatabaseURL == "" {
			return fmt.Errorf("invalid config: db.db_url is required for storage.driver=%s", DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid config: unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Lockout.Threshold < 1 {
		return fmt.Errorf("invalid config: lockout.threshold must be >= 1")
	}

	if c.Lockout.Window <= 0 || c.Lockout.Duration <= 0 {
		return fmt.Errorf("invalid config: lockout.window and lockout.duration must be positive")
	}

	for _, e := range c.CSRF.Exempt {
		if _, _, ok := SplitExemption(e); !ok {
			return fmt.Errorf("invalid config: csrf.exempt entry %q must look like \"POST /path\"", e)
		}
	}

	return nil
}

// SplitExemption разбирает строку "METHOD /path" из csrf.exempt.
func SplitExemption(s string) (method, path string, ok bool) {
	method, path, found := strings.Cut(strings.TrimSpace(s), " ")
	path = strings.TrimSpace(path)
	if !found || method == "" || !strings.HasPrefix(path, "/") || strings.ContainsAny(path, " \t") {
		return "", "", false
	}

	return strings.ToUpper(method), path, true
}

// SameSiteMode переводит same_site в http.SameSite; неизвестное значение - Lax.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(strings.TrimSpace(c.SameSite)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

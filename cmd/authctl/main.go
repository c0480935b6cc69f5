// authctl - административная утилита auth-core: миграции, заведение
// пользователей, подтверждение email, отзыв сессий, снятие блокировок и
// просмотр журнала аудита.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/pribylovaa/go-auth-core/internal/config"
	"github.com/pribylovaa/go-auth-core/internal/events"
	auditmongo "github.com/pribylovaa/go-auth-core/internal/events/mongo"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/service"
	"github.com/pribylovaa/go-auth-core/internal/storage"
	"github.com/pribylovaa/go-auth-core/internal/storage/memory"
	"github.com/pribylovaa/go-auth-core/internal/storage/postgres"
)

const usage = `usage: authctl [--config path] <command> [flags]

commands:
  migrate                              apply database migrations
  create-user -email E [-verified]     create a user (password from AUTHCTL_PASSWORD or prompt)
  verify-email -email E                mark the email as verified
  revoke-sessions -email E | -user-id  revoke all sessions of a user
  unlock -email E                      clear the lockout of an identity
  audit -email E | -user-id [-limit N] show recent security events
`

// passwordEnv - переменная с паролем для неинтерактивного create-user.
const passwordEnv = "AUTHCTL_PASSWORD"

// auditLister - чтение журнала аудита.
type auditLister interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]events.Event, error)
}

// app связывает команды с зависимостями; поля-функции подменяются в тестах.
type app struct {
	out          io.Writer
	openService  func(ctx context.Context) (*service.Service, func(), error)
	openAudit    func(ctx context.Context) (auditLister, func(), error)
	migrate      func(ctx context.Context) error
	readPassword func() ([]byte, error)
	getenv       func(string) string
}

func main() {
	global := flag.NewFlagSet("authctl", flag.ContinueOnError)
	configPath := global.String("config", "", "path to config file")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	// Служебные логи CLI - только предупреждения и ошибки.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(cfg, os.Stdout)
	if err := a.run(ctx, global.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		cancel()
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, out io.Writer) *app {
	policy := models.LockoutPolicy{
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
		Lockout:   cfg.Lockout.Duration,
	}

	return &app{
		out: out,
		openService: func(ctx context.Context) (*service.Service, func(), error) {
			st, err := openStorage(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}

			return service.New(st, cfg.Auth, policy), st.Close, nil
		},
		openAudit: func(ctx context.Context) (auditLister, func(), error) {
			if cfg.Audit.MongoURL == "" {
				return nil, nil, errors.New("audit.mongo_url is not configured")
			}

			a, err := auditmongo.New(ctx, cfg.Audit.MongoURL, cfg.Audit.Retention)
			if err != nil {
				return nil, nil, err
			}

			return a, func() { _ = a.Close(context.Background()) }, nil
		},
		migrate: func(ctx context.Context) error {
			if cfg.Storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate requires storage.driver=%s", config.DriverPostgres)
			}

			pg, err := postgres.New(ctx, cfg.DB.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()

			return pg.Migrate(ctx)
		},
		readPassword: func() ([]byte, error) {
			fmt.Fprint(os.Stderr, "Enter password: ")
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			return pw, err
		},
		getenv: os.Getenv,
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		return memory.New(), nil
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return postgres.New(cctx, cfg.DB.DatabaseURL)
}

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	health "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	authcorev1 "github.com/pribylovaa/go-auth-core/gen/go/authcore"
	"github.com/pribylovaa/go-auth-core/internal/config"
	"github.com/pribylovaa/go-auth-core/internal/csrf"
	"github.com/pribylovaa/go-auth-core/internal/events"
	auditmongo "github.com/pribylovaa/go-auth-core/internal/events/mongo"
	eventsnats "github.com/pribylovaa/go-auth-core/internal/events/nats"
	"github.com/pribylovaa/go-auth-core/internal/interceptors"
	"github.com/pribylovaa/go-auth-core/internal/metrics"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/service"
	"github.com/pribylovaa/go-auth-core/internal/storage"
	"github.com/pribylovaa/go-auth-core/internal/storage/memory"
	"github.com/pribylovaa/go-auth-core/internal/storage/postgres"
	redisstore "github.com/pribylovaa/go-auth-core/internal/storage/redis"
	authgrpc "github.com/pribylovaa/go-auth-core/internal/transport/grpc"
	authhttp "github.com/pribylovaa/go-auth-core/internal/transport/http"
	"github.com/pribylovaa/go-auth-core/internal/transport/http/handlers"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}

	log.Info("service_stopped")
}

func run(rootCtx context.Context, cfg *config.Config, log *slog.Logger) error {
	// Хранилище c таймаутом на подключение.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, closeStorage, err := openStorage(dbCtx, cfg, log)
	dbCancel()
	if err != nil {
		return err
	}
	defer closeStorage()

	reg := prometheus.DefaultRegisterer
	m := metrics.New(reg)

	pub, closeEvents := openEvents(rootCtx, cfg, log, m)
	defer closeEvents()

	// Сервис.
	srvc := service.New(str, cfg.Auth, models.LockoutPolicy{
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
		Lockout:   cfg.Lockout.Duration,
	})
	srvc.SetEvents(pub)
	srvc.SetMetrics(m)
	log.Info("service_initialized")

	guard, err := csrf.New(csrf.Options{
		Secret:      cfg.CSRF.Secret,
		HeaderNames: cfg.CSRF.HeaderNames,
		CookieNames: cfg.CSRF.CookieNames,
		Exempt:      cfg.CSRF.Exempt,
		TTL:         cfg.CSRF.TTL,
		Domain:      cfg.Cookie.Domain,
		SameSite:    cfg.Cookie.SameSiteMode(),
	})
	if err != nil {
		return err
	}

	var ready int32 // 0 - not ready; 1 - ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())

	base := cfg.HTTP.BasePath
	pattern := base + "/"
	if base == "" || base == "/" {
		pattern = "/"
	}
	mux.Handle(pattern, authhttp.NewRouter(srvc, guard, authhttp.Options{
		Logger:     log,
		Timeout:    cfg.Timeouts.Service,
		TrustProxy: cfg.HTTP.TrustProxy,
		Metrics:    m,
		Handlers: handlers.Options{
			BasePath:      base,
			RefreshCookie: cfg.Cookie.RefreshName,
			CookieDomain:  cfg.Cookie.Domain,
			CookieSecure:  cfg.Cookie.Secure,
			SameSite:      cfg.Cookie.SameSiteMode(),
			OAuthRedirect: cfg.OAuth.SuccessRedirect,
			OAuthStateTTL: cfg.OAuth.StateTTL,
			WebhookSecret: cfg.Webhook.Secret,
		},
	}))

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 2)

	go func() {
		log.Info("http_listen_start", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()

	var (
		grpcServer *grpc.Server
		hs         *health.Server
	)

	if !cfg.GRPC.Disabled {
		grpc_prometheus.EnableHandlingTimeHistogram()

		grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(
				interceptors.Recover(log),
				interceptors.UnaryLoggingInterceptor(log),
				interceptors.WithTimeout(cfg.Timeouts.Service),
				grpc_prometheus.UnaryServerInterceptor,
			),
			grpc.ChainStreamInterceptor(
				grpc_prometheus.StreamServerInterceptor,
			),
		)

		// Health-check сервис.
		hs = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, hs)

		authcorev1.RegisterSessionServiceServer(grpcServer, authgrpc.NewServer(srvc))

		// Рефлексия - только в local/dev.
		if cfg.Env == envLocal || cfg.Env == envDev {
			reflection.Register(grpcServer)
		}

		addr := cfg.GRPC.Addr()
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			log.Error("grpc_listen_failed",
				slog.String("addr", addr),
				slog.String("err", err.Error()),
			)
			_ = httpSrv.Shutdown(context.Background())
			return err
		}
		log.Info("grpc_listen_start", slog.String("addr", addr))

		grpc_prometheus.Register(grpcServer)

		go func() {
			if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				serveErrCh <- err
			}
		}()

		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	// Фоновая очистка просроченных токенов, отзывов и счётчиков.
	startJanitor(rootCtx, srvc, log, cfg.Janitor.Interval)

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	var serveErr error
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case serveErr = <-serveErrCh:
		log.Error("serve_failed", slog.String("err", serveErr.Error()))
	}

	// Снимаем ready и переводим gRPC в NOT_SERVING.
	atomic.StoreInt32(&ready, 0)
	if hs != nil {
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if grpcServer != nil {
		done := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			log.Info("grpc_stopped")
		case <-shutdownCtx.Done():
			log.Warn("grpc_force_stop")
			grpcServer.Stop()
		}
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_failed", slog.String("err", err.Error()))
	}

	return serveErr
}

// openStorage выбирает основное хранилище и, если задан Redis, выносит в него
// denylist и счётчики блокировок.
func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Storage, func(), error) {
	var (
		base    storage.Storage
		closers []func()
	)

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		base = memory.New()
		log.Warn("memory_storage_in_use")
	default:
		pg, err := postgres.New(ctx, cfg.DB.DatabaseURL)
		if err != nil {
			log.Error("postgres_connect_failed", slog.String("err", err.Error()))
			return nil, nil, err
		}
		log.Info("postgres_connected")

		if cfg.Storage.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				log.Error("migrations_failed", slog.String("err", err.Error()))
				return nil, nil, err
			}
			log.Info("migrations_applied")
		}

		base = pg
	}
	closers = append(closers, base.Close)

	str := base
	if cfg.Redis.RedisURL != "" {
		rs, err := redisstore.New(ctx, cfg.Redis.RedisURL, cfg.Redis.Prefix)
		if err != nil {
			base.Close()
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			return nil, nil, err
		}
		log.Info("redis_connected")

		closers = append(closers, func() { _ = rs.Close() })
		str = storage.WithOverlay(base, rs, rs)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	return str, closeAll, nil
}

// openEvents собирает публикаторы событий безопасности. Недоступные NATS и
// MongoDB не мешают старту: сервис работает, события только логируются.
func openEvents(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (events.Publisher, func()) {
	var (
		sinks   events.Multi
		closers []func()
	)

	if cfg.NATS.URL != "" {
		p, err := eventsnats.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Warn("nats_connect_failed", slog.String("err", err.Error()))
		} else {
			log.Info("nats_connected")
			sinks = append(sinks, p)
			closers = append(closers, p.Close)
		}
	}

	if cfg.Audit.MongoURL != "" {
		mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		a, err := auditmongo.New(mctx, cfg.Audit.MongoURL, cfg.Audit.Retention)
		cancel()
		if err != nil {
			log.Warn("mongo_connect_failed", slog.String("err", err.Error()))
		} else {
			log.Info("mongo_connected")
			sinks = append(sinks, a)
			closers = append(closers, func() {
				cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Close(cctx)
			})
		}
	}

	if len(sinks) == 0 {
		return events.Nop{}, func() {}
	}

	async := events.NewAsync(log, sinks, cfg.Audit.BufferSize, m.EventDropped)

	return async, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := async.Close(cctx); err != nil {
			log.Warn("events_flush_failed", slog.String("err", err.Error()))
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// startJanitor периодически удаляет просроченные refresh-токены, записи
// denylist и устаревшие счётчики блокировок.
func startJanitor(ctx context.Context, svc *service.Service, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := svc.PruneExpired(ctx); err != nil {
					log.Error("janitor_failed", slog.String("err", err.Error()))
				}
			}
		}
	}()
}

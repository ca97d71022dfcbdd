package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/db"
	httpx "github.com/geocoder89/authhub/internal/http"
	"github.com/geocoder89/authhub/internal/http/handlers"
	"github.com/geocoder89/authhub/internal/notifications"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/geocoder89/authhub/internal/redisclient"
	"github.com/geocoder89/authhub/internal/repo/postgres"
	"github.com/geocoder89/authhub/internal/security"
	"github.com/geocoder89/authhub/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if cfg.Env == "prod" && cfg.JWTSecret == "dev-secret-change-me" {
		log.Error("JWT_SECRET must be set in prod")
		os.Exit(1)
	}

	startCtx, cancelStart := config.WithTimeout(30 * time.Second)
	defer cancelStart()

	shutdownTracer, err := observability.InitTracer(startCtx, "authhub-api", cfg.OTelEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(startCtx, pool); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	usersRepo := postgres.NewUsersRepo(pool, prom)
	otpsRepo := postgres.NewPasswordResetOTPsRepo(pool, prom)
	resetsRepo := postgres.NewPasswordResetsRepo(pool, prom)

	if err := db.EnsureSeedUser(startCtx, usersRepo, cfg); err != nil {
		log.Error("seed user failed", "err", err)
		os.Exit(1)
	}

	checks := map[string]handlers.Pinger{"postgres": pool}

	// token blacklist: redis when configured, process memory otherwise
	var blacklist auth.Blacklist = auth.NewMemoryBlacklist()
	if cfg.RedisAddr != "" {
		rdb := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		if err := rdb.Ping(startCtx); err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}

		blacklist = auth.NewRedisBlacklist(rdb.Raw())
		checks["redis"] = rdb
	} else {
		log.Warn("REDIS_ADDR not set, token blacklist is per process")
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL(), blacklist)

	var notifier notifications.Notifier
	if cfg.SMTPHost != "" {
		notifier = notifications.NewSMTPNotifier(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		notifier = notifications.NewLogNotifier(log, cfg.Env == "dev")
	}
	notifier = notifications.NewProtectedNotifier(notifier, notifications.ProtectedNotifierConfig{})

	svc := service.NewAuthService(service.Deps{
		Users:    usersRepo,
		OTPs:     otpsRepo,
		Resets:   resetsRepo,
		Tokens:   tokens,
		Hasher:   security.NewBcryptHasher(bcrypt.DefaultCost),
		Notifier: notifier,
		Logger:   log,
		Prom:     prom,
		OTPTTL:   cfg.OTPTTL(),
	})

	router := httpx.NewRouter(httpx.RouterDeps{
		Config:  cfg,
		Service: svc,
		Tokens:  tokens,
		Users:   usersRepo,
		Prom:    prom,
		Checks:  checks,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	ctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}

	if err := shutdownTracer(ctx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("shutdown complete")
}

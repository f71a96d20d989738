package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Skotchmaster/online_kart/internal/es"
	"github.com/Skotchmaster/online_kart/internal/httpserver"
	"github.com/Skotchmaster/online_kart/internal/metrics"
	"github.com/Skotchmaster/online_kart/internal/mykafka"
	"github.com/Skotchmaster/online_kart/internal/repo"
	"github.com/Skotchmaster/online_kart/internal/service"
	"github.com/Skotchmaster/online_kart/pkg/config"
	"github.com/Skotchmaster/online_kart/pkg/db"
	"github.com/Skotchmaster/online_kart/pkg/logging"
	"github.com/Skotchmaster/online_kart/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/online_kart/pkg/middleware/logging"
)

func main() {
	cfg := config.Load(".env")
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	config.MustNonEmptyBytes(cfg.JWTAccessSecret, "JWT_SECRET")

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DBDriver, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := repo.Migrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var producer mykafka.Publisher = mykafka.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer = mykafka.NewProducer(cfg.KafkaBrokers)
		logger.Info("kafka_enabled", "brokers", cfg.KafkaBrokers)
	}

	Repo := &repo.GormRepo{DB: gdb}

	catalog := &service.CatalogService{Repo: Repo, Events: producer}
	checkout := &service.CheckoutService{
		Repo:        Repo,
		Payments:    service.AutoApprove{},
		Events:      producer,
		Metrics:     metrics.NewCheckoutMetrics(),
		MaxAttempts: cfg.CheckoutMaxAttempts,
		LockTimeout: cfg.CheckoutLockTimeout,
	}
	if cfg.ESURL != "" {
		index, err := es.NewClient(es.Config{
			URL:      cfg.ESURL,
			User:     cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		}, logger)
		if err != nil {
			logger.Warn("es_unavailable", "error", err)
		} else {
			catalog.Index = index
			checkout.Index = index
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpserver.ErrorHandler

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())
	if cfg.CSRFEnabled {
		e.Use(csrf.Middleware(csrf.Config{
			SkipPaths: []string{"/api/auth/login", "/api/auth/register"},
		}))
	}

	httpserver.Register(e, &httpserver.Deps{
		Auth: &httpserver.AuthHTTP{Svc: &service.AuthService{
			Repo:      Repo,
			JWTSecret: cfg.JWTAccessSecret,
			AccessTTL: cfg.AccessTokenTTL,
		}},
		Catalog: &httpserver.CatalogHTTP{Svc: catalog, PageSize: cfg.PageSize},
		Cart: &httpserver.CartHTTP{
			Svc:    &service.CartService{Repo: Repo, Events: producer},
			Engine: checkout,
		},
		Orders:    &httpserver.OrderHTTP{Svc: &service.OrderService{Repo: Repo}, PageSize: cfg.PageSize},
		Health:    &httpserver.HealthHTTP{DB: Repo},
		JWTSecret: cfg.JWTAccessSecret,
		Metrics:   promhttp.Handler(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := ":" + strconv.Itoa(cfg.ServerPort)
		logger.Info("server_start", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("server_shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown_failed", "error", err)
	}
	if err := producer.Close(); err != nil {
		logger.Error("kafka_close_failed", "error", err)
	}
	if err := db.Close(gdb); err != nil {
		logger.Error("db_close_failed", "error", err)
	}

	logger.Info("server_stopped")
}

// Package app initializes and runs the user API service.
// It configures logging, connects the data backends, wires authentication,
// file storage and routing, and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/userapi/internal/auth"
	"github.com/patric-chuzhbe/userapi/internal/config"
	"github.com/patric-chuzhbe/userapi/internal/connector"
	"github.com/patric-chuzhbe/userapi/internal/filereaper"
	"github.com/patric-chuzhbe/userapi/internal/filestore"
	"github.com/patric-chuzhbe/userapi/internal/ipchecker"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/metrics"
	"github.com/patric-chuzhbe/userapi/internal/password"
	"github.com/patric-chuzhbe/userapi/internal/ratelimit"
	"github.com/patric-chuzhbe/userapi/internal/router"
	"github.com/patric-chuzhbe/userapi/internal/service"
	"github.com/patric-chuzhbe/userapi/internal/token"
)

const (
	shutdownTimeout       = 10 * time.Second
	reaperQueueCapacity   = 256
	reaperSweepInterval   = 30 * time.Second
	readHeaderTimeout     = 10 * time.Second
	rateLimiterCleanupGap = 5 * time.Minute
)

// App encapsulates the configuration and the backend connector needed to run
// the service.
type App struct {
	cfg       *config.Config
	connector *connector.Connector
}

// New loads the configuration and initializes the logger.
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.connector = connector.New(app.cfg)

	return app, nil
}

// Run connects the configured backends and serves HTTP until SIGINT or
// SIGTERM. With no backend configured it returns nil without serving.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infow(
		"starting",
		"service", a.cfg.ServiceName,
		"environment", a.cfg.Environment,
		"DB_TYPE", a.connector.Mode(),
	)

	return a.connector.Run(ctx, a.serve)
}

func (a *App) serve(ctx context.Context, backends *connector.Backends) error {
	if a.cfg.UsesDefaultSecret() {
		logger.Log.Warnln("JWT_SECRET is not set, tokens are signed with the development default")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	files, err := filestore.New(a.cfg.LocalStoragePath)
	if err != nil {
		return fmt.Errorf("in internal/app/app.go/serve(): error while `filestore.New()` calling: %w", err)
	}

	reaper := filereaper.New(
		files,
		reaperQueueCapacity,
		reaperSweepInterval,
		filereaper.WithMetrics(collector),
	)
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	reaper.Run(reaperCtx)
	reaper.ListenErrors(func(err error) {
		logger.Log.Debugln("Error passed from the `reaper.ListenErrors()`:", zap.Error(err))
	})
	defer func() {
		stopReaper()
		reaper.Wait()
	}()

	limiter := ratelimit.New(
		ratelimit.Config{
			PerMinute:       a.cfg.AuthRatePerMinute,
			Burst:           a.cfg.AuthRateBurst,
			CleanupInterval: rateLimiterCleanupGap,
		},
		ratelimit.WithRecorder(collector),
	)
	defer limiter.Stop()

	checker, err := ipchecker.New(a.cfg.TrustedSubnet)
	if err != nil {
		return err
	}

	tokens := token.New([]byte(a.cfg.JWTSecret), a.cfg.JWTExpiresIn.Duration())

	users := service.New(
		backends.Primary(),
		password.NewHasher(password.Cost),
		tokens,
		files,
		service.WithFileReaper(reaper),
		service.WithMetrics(collector),
	)

	handler := router.New(
		router.Settings{
			APIVersion:           a.cfg.APIVersion,
			ServiceName:          a.cfg.ServiceName,
			Environment:          a.cfg.Environment,
			RequestTimeout:       a.cfg.RequestTimeout,
			UploadMaxBytes:       a.cfg.UploadMaxBytes,
			ExposeInternalErrors: a.cfg.ExposeInternalErrors,
			TrustProxyHeaders:    a.cfg.TrustProxyHeaders,
		},
		users,
		auth.New(tokens),
		backends,
		router.WithRateLimiter(limiter),
		router.WithMetrics(collector, metrics.Handler(registry), checker),
		router.WithUploads(files.Handler()),
	)

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	logger.Log.Infow(
		"server running",
		"RunAddr", a.cfg.RunAddr,
		"API", a.cfg.APIVersion,
		"uploads", files.Dir(),
	)

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing connections and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return nil

	case err := <-serverErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

// Command bubbled is a debug/admin HTTP surface around the sandboxed
// command execution core: one process, one in-memory project, exposed
// over chi routes so a human or a thin client can drive Exec, inspect
// FileHistory, roll back, and dump the live project tree without
// embedding the library in a larger application.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/relaycode/bubble/cmd/bubbled/config"
	"github.com/relaycode/bubble/cmd/bubbled/memproject"
	"github.com/relaycode/bubble/lib/bubble"
	"github.com/relaycode/bubble/lib/logger"
	mw "github.com/relaycode/bubble/lib/middleware"
	"github.com/relaycode/bubble/lib/otel"
	"github.com/relaycode/bubble/lib/sandbox"
	"github.com/riandyrn/otelchi"
	"golang.org/x/sync/errgroup"
)

// staleOverlayThreshold is how old an overlay-* directory must be before
// SweepStale removes it at startup; a crashed prior invocation is the
// only thing that should ever leave one behind this long.
const staleOverlayThreshold = 1 * time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("application terminated", "error", err)
		os.Exit(1)
	}
	slog.Info("main() exiting normally")
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	buildRoot := os.Getenv("BUBBLE_BUILD_ROOT")
	if buildRoot == "" {
		var err error
		buildRoot, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("determine build root: %w", err)
		}
	}

	otelCfg := otel.Config{
		Enabled:           cfg.OtelEnabled,
		Endpoint:          cfg.OtelEndpoint,
		ServiceName:       cfg.OtelServiceName,
		ServiceInstanceID: cfg.OtelServiceInstanceID,
		Insecure:          cfg.OtelInsecure,
		Version:           cfg.Version,
		Env:               cfg.Env,
	}
	otelProvider, otelShutdown, err := otel.Init(context.Background(), otelCfg)
	if err != nil {
		slog.Warn("failed to initialize OpenTelemetry, continuing without telemetry", "error", err)
	}
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				slog.Warn("error shutting down OpenTelemetry", "error", err)
			}
		}()
	}
	if otelProvider != nil && otelProvider.LogHandler != nil {
		otel.SetGlobalLogHandler(otelProvider.LogHandler)
	}

	logCfg := logger.NewConfig()
	var otelLogHandler slog.Handler
	if otelProvider != nil {
		otelLogHandler = otelProvider.LogHandler
	}
	log := logger.NewSubsystemLogger(logger.SubsystemDebugAPI, logCfg, otelLogHandler)

	if !bubble.CanSandbox() {
		report := bubble.Probe()
		return fmt.Errorf("sandbox unavailable: %s", report.Reason)
	}

	if err := os.MkdirAll(cfg.CacheRoot, 0755); err != nil {
		return fmt.Errorf("create cache root: %w", err)
	}
	if err := sandbox.SweepStale(cfg.CacheRoot, staleOverlayThreshold); err != nil {
		log.Warn("stale overlay sweep failed", "error", err)
	}

	proj := memproject.New(buildRoot)

	var opts []bubble.Option
	if otelProvider != nil && otelProvider.Meter != nil {
		opts = append(opts, bubble.WithMetrics(otelProvider.Meter))
	}
	if otelProvider != nil && otelProvider.Tracer != nil {
		opts = append(opts, bubble.WithTracer(otelProvider.Tracer))
	}
	if maxCombined, err := cfg.MaxCombinedOutputBytes(); err == nil {
		opts = append(opts, bubble.WithMaxCombinedOutput(maxCombined))
	}

	b, err := bubble.New(proj, cfg.CacheRoot, cfg.AllowNetwork, opts...)
	if err != nil {
		return fmt.Errorf("initialize bubble: %w", err)
	}

	a := &app{b: b, proj: proj}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := chi.NewRouter()

	var httpMetricsMw func(http.Handler) http.Handler
	if otelProvider != nil && otelProvider.Meter != nil {
		if httpMetrics, err := mw.NewHTTPMetrics(otelProvider.Meter); err == nil {
			httpMetricsMw = httpMetrics.Middleware
		}
	}

	var accessLogHandler slog.Handler
	if otelProvider != nil {
		accessLogHandler = otelProvider.LogHandler
	}
	accessLogger := mw.NewAccessLogger(accessLogHandler)

	r.Get("/healthz", a.healthHandler)

	// The streaming exec route is mounted outside the authenticated group
	// below so otelchi's span-per-request middleware, which does not
	// cooperate with a hijacked websocket connection, never wraps it.
	r.With(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		mw.InjectLogger(log),
		mw.AccessLogger(accessLogger),
		mw.JwtAuth(cfg.JwtSecret),
	).Get("/exec/stream", a.execStreamHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		if cfg.OtelEnabled {
			r.Use(otelchi.Middleware(cfg.OtelServiceName, otelchi.WithChiRoutes(r)))
		}
		r.Use(mw.InjectLogger(log))
		r.Use(mw.AccessLogger(accessLogger))
		if httpMetricsMw != nil {
			r.Use(httpMetricsMw)
		}
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(mw.JwtAuth(cfg.JwtSecret))

		r.Post("/exec", a.execHandler)
		r.Get("/history", a.historyHandler)
		r.Post("/rollback", a.rollbackHandler)
		r.Get("/debug/dump", a.debugDumpHandler)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		log.Info("starting bubbled", "port", cfg.Port, "build_root", buildRoot)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			return err
		}
		return nil
	})

	grp.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx := context.WithoutCancel(gctx)
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown http server", "error", err)
			return err
		}
		log.Info("http server shutdown complete")
		return nil
	})

	return grp.Wait()
}


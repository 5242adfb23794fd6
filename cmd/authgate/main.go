package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/astro-web3/authgate/internal/config"
	"github.com/astro-web3/authgate/internal/di"
	grpctransport "github.com/astro-web3/authgate/internal/transport/grpc"
	httptransport "github.com/astro-web3/authgate/internal/transport/http"
	"github.com/astro-web3/authgate/pkg/logger"
	"github.com/astro-web3/authgate/pkg/otel"
	"github.com/astro-web3/authgate/pkg/tracer"
)

const (
	serviceName            = "authgate"
	shutdownTimeoutSeconds = 10
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type server interface {
	Addr() string
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

func main() {
	cfg := config.MustLoad()

	logger.Init(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.Format,
		Source: cfg.Observability.LogSource,
	})

	otelCfg := otel.DefaultConfig()
	otelCfg.ServiceVersion = version
	otelCfg.EndpointURL = cfg.Observability.TracingEndpointURL
	otelCfg.Enabled = cfg.Observability.TraceEnabled
	otelCfg.SampleRatio = cfg.Observability.TraceSampleRatio
	otelCfg.Insecure = cfg.Observability.TracingInsecure
	otelCfg.ResourceAttributes["authgate.key_source"] = cfg.Keys.Source
	if err := tracer.InitTracer(serviceName, otelCfg); err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	gate, err := di.NewGate(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build gate: %v", err)
	}
	gate.Start(ctx)

	httpSrv, err := httptransport.NewServer(cfg, gate.Service)
	if err != nil {
		log.Fatalf("Failed to create HTTP server: %v", err)
	}
	servers := []server{httpSrv}

	if cfg.GRPC.Enabled {
		grpcSrv, grpcErr := grpctransport.NewServer(cfg, gate.Service)
		if grpcErr != nil {
			log.Fatalf("Failed to create ext_authz server: %v", grpcErr)
		}
		servers = append(servers, grpcSrv)
	}

	serverErrChan := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			logger.InfoContext(ctx, "starting server",
				slog.String("addr", srv.Addr()),
				slog.String("mode", cfg.Server.Mode),
			)
			if listenErr := srv.ListenAndServe(); listenErr != nil &&
				!errors.Is(listenErr, http.ErrServerClosed) {
				serverErrChan <- listenErr
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.InfoContext(ctx, "shutting down")
	case serverErr := <-serverErrChan:
		logger.ErrorContext(ctx, "server error, shutting down", slog.String("error", serverErr.Error()))
	}

	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		shutdownTimeoutSeconds*time.Second,
	)
	defer shutdownCancel()

	for _, srv := range servers {
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.ErrorContext(shutdownCtx, "server forced to shutdown",
				slog.String("addr", srv.Addr()),
				slog.String("error", shutdownErr.Error()),
			)
		}
	}

	if closeErr := gate.Close(); closeErr != nil {
		logger.ErrorContext(shutdownCtx, "failed to close key store", slog.String("error", closeErr.Error()))
	}

	if shutdownErr := otel.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.ErrorContext(shutdownCtx, "failed to shutdown tracer provider", slog.String("error", shutdownErr.Error()))
	}

	logger.InfoContext(shutdownCtx, "stopped")
}

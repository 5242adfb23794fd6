package grpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"connectrpc.com/connect"
	"github.com/astro-web3/authgate/internal/app/gate"
	"github.com/astro-web3/authgate/internal/config"
	"github.com/astro-web3/authgate/pkg/logger"
)

type Server struct {
	httpServer *http.Server
}

const idleTimeoutMultiplier = 2

// errPanic is what a caller sees after a handler panic.
var errPanic = errors.New("internal error")

func NewServer(cfg *config.Config, appService gate.Service) (*Server, error) {
	if cfg.GRPC.Addr == "" {
		return nil, fmt.Errorf("grpc.addr is required")
	}

	// Envoy dials ext_authz over cleartext HTTP/2.
	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	httpServer := &http.Server{
		Addr:        cfg.GRPC.Addr,
		Handler:     NewRouter(NewHandler(appService)),
		Protocols:   protocols,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.ReadTimeout * idleTimeoutMultiplier,
	}

	return &Server{
		httpServer: httpServer,
	}, nil
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func recoveryInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "panic recovered",
						slog.String("method", req.Spec().Procedure),
						slog.Any("panic", r),
					)
					resp, err = nil, connect.NewError(connect.CodeInternal, errPanic)
				}
			}()
			return next(ctx, req)
		}
	}
}

func loggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "request failed",
					slog.String("method", req.Spec().Procedure),
					slog.Duration("duration", duration),
					slog.String("error", err.Error()),
				)
			} else {
				logger.InfoContext(ctx, "request completed",
					slog.String("method", req.Spec().Procedure),
					slog.Duration("duration", duration),
				)
			}

			return resp, err
		}
	}
}

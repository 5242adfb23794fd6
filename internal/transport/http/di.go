package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/astro-web3/authgate/internal/app/gate"
	"github.com/astro-web3/authgate/internal/config"
)

type Server struct {
	httpServer *http.Server
}

const (
	idleTimeoutMultiplier = 2
	serviceName           = "authgate"
)

func NewServer(cfg *config.Config, appService gate.Service) (*Server, error) {
	var upstream http.Handler
	if cfg.Proxy.UpstreamURL != "" {
		proxy, err := NewProxy(cfg.Proxy.UpstreamURL, cfg.Proxy.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream proxy: %w", err)
		}
		upstream = proxy
	}

	router := NewRouter(NewHandler(appService), cfg, upstream)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * idleTimeoutMultiplier,
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

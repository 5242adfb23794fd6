package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"slices"
	"time"

	"github.com/astro-web3/authgate/internal/domain/gate"
	"github.com/astro-web3/authgate/pkg/logger"
)

// NewProxy returns the reverse proxy that receives requests the gate let
// through.
func NewProxy(upstreamURL string, flushInterval time.Duration) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream url %q needs scheme and host", upstreamURL)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			restoreIdentity(pr)
		},
		FlushInterval: flushInterval,
		ErrorLog:      logger.StdLogger(slog.LevelError),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "upstream request failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}, nil
}

// restoreIdentity copies the gate's identity headers from the inbound request
// onto the outbound one. ReverseProxy drops headers the client listed in
// Connection before Rewrite runs, which would let a client remove them.
func restoreIdentity(pr *httputil.ProxyRequest) {
	for _, name := range gate.IdentityHeaders {
		pr.Out.Header.Del(name)
		if v := pr.In.Header.Values(name); len(v) > 0 {
			pr.Out.Header[http.CanonicalHeaderKey(name)] = slices.Clone(v)
		}
	}
}

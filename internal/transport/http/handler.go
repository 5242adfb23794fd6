package http

import (
	"net/http"
	"net/url"
	"strings"

	"log/slog"

	"github.com/astro-web3/authgate/internal/app/gate"
	domaingate "github.com/astro-web3/authgate/internal/domain/gate"
	"github.com/astro-web3/authgate/pkg/logger"
	"github.com/astro-web3/authgate/pkg/tracer"
	"github.com/gin-gonic/gin"
)

// Headers a fronting proxy uses to tell the forward-auth endpoint which
// request it is asking about.
const (
	headerForwardedURI = "X-Forwarded-Uri"
	headerOriginalURI  = "X-Original-URI"
)

type Handler struct {
	appService gate.Service
}

func NewHandler(appService gate.Service) *Handler {
	return &Handler{appService: appService}
}

// Authenticate is the inline gate. Exempt requests continue with identity
// headers stripped; authenticated requests continue as a clone carrying the
// synthesized identity headers; everything else ends with an empty 401.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "transport.http.Authenticate")
		defer span.End()

		decision := h.appService.Check(ctx, c.Request.URL.Path, c.GetHeader("Authorization"))
		if !decision.Allow {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		// The original request stays untouched for the caller's own use.
		forwarded := c.Request.Clone(c.Request.Context())
		domaingate.ApplyIdentity(forwarded.Header, decision.Headers)
		c.Request = forwarded

		c.Next()
	}
}

// Check is the forward-auth endpoint for proxies such as nginx auth_request
// or Traefik forwardAuth. It answers 200 with the identity headers, or an
// empty 401.
func (h *Handler) Check(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.Check")
	defer span.End()

	path := h.originalPath(c)

	decision := h.appService.Check(ctx, path, c.GetHeader("Authorization"))
	if !decision.Allow {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	for k, v := range decision.Headers {
		c.Header(k, v)
	}

	c.Status(http.StatusOK)
}

// originalPath recovers the decoded path of the request being checked. An
// unreadable value yields "", which no exemption matches.
func (h *Handler) originalPath(c *gin.Context) string {
	raw := c.GetHeader(headerForwardedURI)
	if raw == "" {
		raw = c.GetHeader(headerOriginalURI)
	}
	if raw == "" {
		return c.Param("path")
	}

	path, err := decodePath(raw)
	if err != nil {
		logger.WarnContext(c.Request.Context(), "unreadable forwarded uri", slog.String("error", err.Error()))
		return ""
	}
	return path
}

// decodePath strips any query string and percent-decodes the path.
func decodePath(raw string) (string, error) {
	path, _, _ := strings.Cut(raw, "?")
	return url.PathUnescape(path)
}

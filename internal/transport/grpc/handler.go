package grpc

import (
	"context"
	"net/url"
	"strings"

	"log/slog"

	"connectrpc.com/connect"
	"github.com/astro-web3/authgate/internal/app/gate"
	domaingate "github.com/astro-web3/authgate/internal/domain/gate"
	"github.com/astro-web3/authgate/pkg/logger"
	"github.com/astro-web3/authgate/pkg/tracer"
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
)

// CheckProcedure is the gRPC path Envoy's ext_authz filter calls.
const CheckProcedure = "/envoy.service.auth.v3.Authorization/Check"

type Handler struct {
	appService gate.Service
}

func NewHandler(appService gate.Service) *Handler {
	return &Handler{appService: appService}
}

// Check answers an Envoy ext_authz request. Denials are always reported as
// a CheckResponse, never as an RPC error, so Envoy sends the client a 401
// instead of applying its failure_mode_allow policy.
func (h *Handler) Check(ctx context.Context, req *connect.Request[authv3.CheckRequest]) (*connect.Response[authv3.CheckResponse], error) {
	ctx, span := tracer.Start(ctx, "transport.grpc.Check")
	defer span.End()

	httpReq := req.Msg.GetAttributes().GetRequest().GetHttp()
	if httpReq == nil {
		logger.WarnContext(ctx, "check request without http attributes")
		return deniedResponse(), nil
	}

	decision := h.appService.Check(ctx, requestPath(ctx, httpReq), authorizationHeader(httpReq.GetHeaders()))
	switch {
	case !decision.Allow:
		return deniedResponse(), nil
	case decision.Exempt:
		return okResponse(nil), nil
	default:
		return okResponse(decision.Headers), nil
	}
}

// requestPath decodes the raw request path Envoy reports, query excluded.
// An unreadable path yields "", which no exemption matches.
func requestPath(ctx context.Context, httpReq *authv3.AttributeContext_HttpRequest) string {
	raw, _, _ := strings.Cut(httpReq.GetPath(), "?")
	path, err := url.PathUnescape(raw)
	if err != nil {
		logger.WarnContext(ctx, "unreadable request path", slog.String("error", err.Error()))
		return ""
	}
	return path
}

// authorizationHeader reads the header map Envoy sends. Keys are lowercase
// on HTTP/2 but tolerate other spellings.
func authorizationHeader(headers map[string]string) string {
	if v, ok := headers["authorization"]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, "authorization") {
			return v
		}
	}
	return ""
}

// okResponse lets the request through. Identity headers are overwritten
// when present and removed otherwise, so a client cannot supply its own.
func okResponse(headers map[string]string) *connect.Response[authv3.CheckResponse] {
	ok := &authv3.OkHttpResponse{}
	for _, name := range domaingate.IdentityHeaders {
		v, set := headers[name]
		if !set {
			ok.HeadersToRemove = append(ok.HeadersToRemove, name)
			continue
		}
		ok.Headers = append(ok.Headers, &corev3.HeaderValueOption{
			Header: &corev3.HeaderValue{
				Key:   name,
				Value: v,
			},
			AppendAction: corev3.HeaderValueOption_OVERWRITE_IF_EXISTS_OR_ADD,
		})
	}

	return connect.NewResponse(&authv3.CheckResponse{
		Status: &rpcstatus.Status{Code: int32(codes.OK)},
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: ok,
		},
	})
}

func deniedResponse() *connect.Response[authv3.CheckResponse] {
	return connect.NewResponse(&authv3.CheckResponse{
		Status: &rpcstatus.Status{Code: int32(codes.Unauthenticated)},
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Status: &typev3.HttpStatus{Code: typev3.StatusCode_Unauthorized},
			},
		},
	})
}

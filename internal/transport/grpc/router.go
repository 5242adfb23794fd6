package grpc

import (
	"net/http"

	"connectrpc.com/connect"
)

func NewRouter(handler *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(CheckProcedure, connect.NewUnaryHandler(
		CheckProcedure,
		handler.Check,
		connect.WithInterceptors(
			recoveryInterceptor(),
			loggingInterceptor(),
		),
	))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

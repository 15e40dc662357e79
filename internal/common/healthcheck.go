package common

import (
	"context"
	"net/http"

	"github.com/gitado/gitado/internal/store"
	"github.com/gitado/gitado/params"
)

func StartHealthCheckServer(ctx context.Context, done chan struct{}, storage store.Storage) {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := storage.Exists(r.Context(), "healthz"); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    params.HealthCheckServerAddr,
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		server.Shutdown(context.Background())
	case <-serverErr:
	}
	close(done)
}

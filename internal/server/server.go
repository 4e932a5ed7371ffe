package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(health, vocabulary http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/health", health)
	r.Method(http.MethodGet, "/v1/vocabulary", vocabulary)
	return r
}

func New(addr string, health, vocabulary http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(health, vocabulary),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

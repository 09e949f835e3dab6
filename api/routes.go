package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/coreybb/courier/webhooks"
	"github.com/coreybb/courier/webutil"
)

const (
	inboundEmailPath = "/webhooks/inbound-email"
	healthCheckPath  = "/healthz"

	requestTimeout = 60 * time.Second
)

// SetupRoutes wires the webhook surface. The service exposes exactly one
// write path; everything else about newsletters lives in other systems.
func SetupRoutes(inboundHandler *webhooks.InboundEmailHandler) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	// The handler dispatches on method itself so unsupported methods get
	// the same JSON 405 shape as the rest of the surface.
	r.HandleFunc(inboundEmailPath, inboundHandler.HandleInbound)

	r.Get(healthCheckPath, handleHealthCheck)

	return r
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeTextPlainUTF8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

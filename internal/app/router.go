package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/replay-console/replay-console/internal/auth"
	"github.com/replay-console/replay-console/internal/clients"
	"github.com/replay-console/replay-console/internal/sales"
	"github.com/replay-console/replay-console/internal/separation"
	"github.com/replay-console/replay-console/internal/stock"
	"github.com/replay-console/replay-console/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthHandler       *auth.Handler
	StockHandler      *stock.Handler
	SeparationHandler *separation.Handler
	SalesHandler      *sales.Handler
	ClientsHandler    *clients.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with Replay defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.AuthHandler.MountPublicRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthHandler.RequireSession)

		params.AuthHandler.MountProtectedRoutes(r)
		params.StockHandler.MountRoutes(r)
		params.SeparationHandler.MountRoutes(r)
		params.SalesHandler.MountRoutes(r)
		params.ClientsHandler.MountRoutes(r)
		if params.JobHandler != nil {
			params.JobHandler.MountRoutes(r)
		}
	})

	return r
}

package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/troopledger/troopledger/internal/auth"
	"github.com/troopledger/troopledger/internal/ledger"
	"github.com/troopledger/troopledger/internal/users"
	"github.com/troopledger/troopledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	AuthHandler   *auth.Handler
	LedgerHandler *ledger.Handler
	UsersHandler  *users.Handler
	JobHandler    *jobs.Handler
}

// NewRouter constructs the chi.Router with TroopLedger defaults. Everything
// under /api except login requires a resolved principal.
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

	r.Route("/api", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthHandler.Middleware)
			params.LedgerHandler.MountRoutes(r)
			if params.UsersHandler != nil {
				params.UsersHandler.MountRoutes(r)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}

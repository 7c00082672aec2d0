package router

import (
	"context"
	"net/http"
	"time"

	mem "patient-records-access/internal/adapters/storage/memory"
	"patient-records-access/internal/core"
	_ "patient-records-access/internal/docs"
	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/authorization"
	"patient-records-access/internal/domain/emergency"
	"patient-records-access/internal/domain/temporaryaccess"
	"patient-records-access/internal/middleware"
	"patient-records-access/internal/platform/logger"
	"patient-records-access/internal/platform/respond"
	"patient-records-access/internal/ports/auth"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Core ya armado. Si no viene, se arma uno sobre el store en memoria.
	Core   *core.Core
	Logger logger.Logger
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	c := opts.Core
	if c == nil {
		c = core.New(core.Deps{Store: mem.NewStore(), Logger: log})
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AuthContext(opts.AuthVerifier))
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := c.Store.Ping(ctx); err != nil {
			respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Rutas por módulo
	accessgrants.RegisterRoutes(r, c.Grants)
	temporaryaccess.RegisterRoutes(r, c.Temporary)
	emergency.RegisterRoutes(r, c.Emergency)
	authorization.RegisterRoutes(r, c.Facade)
	audit.RegisterRoutes(r, c.Recorder)

	return r
}

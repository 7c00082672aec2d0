// Package core arma los servicios de acceso sobre un Store y expone las
// tareas de barrido. Lo usan el router y los comandos de cmd/api.
package core

import (
	"context"
	"time"

	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/authorization"
	"patient-records-access/internal/domain/emergency"
	"patient-records-access/internal/domain/temporaryaccess"
	"patient-records-access/internal/jobs"
	"patient-records-access/internal/platform/clock"
	"patient-records-access/internal/platform/logger"
	"patient-records-access/internal/ports/profiles"
)

// Store lo implementan los adapters memory y postgres.
type Store interface {
	AccessGrants() accessgrants.Repository
	Temporary() temporaryaccess.Repository
	Emergency() emergency.Repository
	Audit() audit.Repository

	Ping(ctx context.Context) error
	Close() error
}

type Deps struct {
	Store  Store
	Logger logger.Logger

	// Clock nil = clock.System.
	Clock clock.Clock

	Limiter  emergency.AttemptLimiter
	Profiles profiles.ProfileFetcher
	Actors   profiles.ActorResolver

	StoreTimeout time.Duration
	TokenTTL     time.Duration
	SessionTTL   time.Duration
}

type Core struct {
	Store Store

	Recorder  *audit.Recorder
	Grants    *accessgrants.Service
	Temporary *temporaryaccess.Service
	Emergency *emergency.Service
	Facade    *authorization.Facade
}

func New(d Deps) *Core {
	clk := d.Clock
	if clk == nil {
		clk = clock.System{}
	}
	now := clk.Now
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}

	rec := audit.NewRecorder(d.Store.Audit(), now)

	grants := accessgrants.NewService(d.Store.AccessGrants(), rec,
		accessgrants.WithClock(now),
		accessgrants.WithTimeout(d.StoreTimeout),
	)
	temporary := temporaryaccess.NewService(d.Store.Temporary(), rec,
		temporaryaccess.WithClock(now),
		temporaryaccess.WithTimeout(d.StoreTimeout),
	)
	facade := authorization.NewFacade(grants, temporary)

	opts := []emergency.Option{
		emergency.WithClock(now),
		emergency.WithTimeout(d.StoreTimeout),
		emergency.WithTokenTTL(d.TokenTTL),
		emergency.WithSessionTTL(d.SessionTTL),
		emergency.WithAuthorizer(facade),
		emergency.WithLogger(log.With(map[string]any{"component": "emergency"})),
	}
	if d.Limiter != nil {
		opts = append(opts, emergency.WithLimiter(d.Limiter))
	}
	if d.Profiles != nil {
		opts = append(opts, emergency.WithProfileFetcher(d.Profiles))
	}
	if d.Actors != nil {
		opts = append(opts, emergency.WithActorResolver(d.Actors))
	}
	em := emergency.NewService(d.Store.Emergency(), temporary, rec, opts...)

	return &Core{
		Store:     d.Store,
		Recorder:  rec,
		Grants:    grants,
		Temporary: temporary,
		Emergency: em,
		Facade:    facade,
	}
}

// SweepTasks devuelve las tareas que marcan como vencidos permisos y tokens.
func (c *Core) SweepTasks() []jobs.Task {
	return []jobs.Task{
		{Name: "temporary_permissions", Run: c.Temporary.SweepExpired},
		{Name: "emergency_tokens", Run: c.Emergency.SweepExpired},
	}
}

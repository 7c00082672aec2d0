package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"patient-records-access/internal/adapters/auth/jwtauth"
	"patient-records-access/internal/adapters/profiles/profilesvc"
	mem "patient-records-access/internal/adapters/storage/memory"
	pg "patient-records-access/internal/adapters/storage/postgres"
	"patient-records-access/internal/config"
	"patient-records-access/internal/core"
	"patient-records-access/internal/domain/emergency"
	"patient-records-access/internal/jobs"
	"patient-records-access/internal/platform/logger"
	"patient-records-access/internal/platform/ratelimit"
	"patient-records-access/internal/ports/auth"

	"github.com/redis/go-redis/v9"
)

// app agrupa lo que arman los comandos: config, store, core y clientes.
type app struct {
	cfg *config.Config
	log logger.Logger

	db       *sql.DB
	redis    *redis.Client
	memLimit *ratelimit.Memory

	core     *core.Core
	verifier auth.AuthVerifier
}

func newApp(ctx context.Context, envFile string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
		App:    cfg.AppName,
	})
	a := &app{cfg: cfg, log: log}

	var store core.Store
	if cfg.DBDSN != "" {
		db, err := pg.Open(cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.db = db
		if cfg.DBAutoMigrate {
			if err := pg.Migrate(ctx, db); err != nil {
				a.Close()
				return nil, err
			}
		}
		store = pg.NewStore(db)
		log.Info("using postgres store", nil)
	} else {
		store = mem.NewStore()
		log.Warn("DB_DSN not set, using in-memory store", nil)
	}

	var limiter emergency.AttemptLimiter
	if cfg.RedisURL != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		limiter = ratelimit.NewRedis(client, "redeem", cfg.RedeemMaxPerHour, time.Hour)
	} else {
		a.memLimit = ratelimit.NewMemory(cfg.RedeemMaxPerHour, time.Hour, nil)
		limiter = a.memLimit
	}

	deps := core.Deps{
		Store:        store,
		Logger:       log,
		Limiter:      limiter,
		StoreTimeout: cfg.StoreTimeout,
		TokenTTL:     cfg.EmergencyTokenTTL,
		SessionTTL:   cfg.EmergencySessionTTL,
	}
	if cfg.ProfileServiceURL != "" {
		client, err := profilesvc.NewClient(profilesvc.Config{
			BaseURL: cfg.ProfileServiceURL,
			APIKey:  cfg.ProfileServiceAPIKey,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("profile service client: %w", err)
		}
		deps.Profiles = client
		deps.Actors = client
	}
	a.core = core.New(deps)

	if cfg.JWTSecret != "" {
		a.verifier = jwtauth.NewVerifier(jwtauth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	} else {
		log.Warn("JWT_SECRET not set, accepting X-Debug-User-ID", nil)
	}
	return a, nil
}

func (a *app) tasks() []jobs.Task {
	tasks := a.core.SweepTasks()
	if a.memLimit != nil {
		tasks = append(tasks, jobs.Task{
			Name: "redeem_limiter",
			Run: func(ctx context.Context) (int, error) {
				return a.memLimit.Cleanup(), nil
			},
		})
	}
	return tasks
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

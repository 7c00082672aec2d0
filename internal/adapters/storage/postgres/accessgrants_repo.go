package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/audit"
)

type AccessGrantsRepo struct {
	db *sql.DB
}

func NewAccessGrantsRepo(db *sql.DB) *AccessGrantsRepo {
	return &AccessGrantsRepo{db: db}
}

const grantColumns = `id, granter_id, grantee_id, entity_type, level, created_at, revoked_at, revoked_by`

func (r *AccessGrantsRepo) Create(ctx context.Context, g accessgrants.Grant, ev audit.Event) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO access_grants (`+grantColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			g.ID,
			g.GranterID,
			g.GranteeID,
			string(g.EntityType),
			g.Level.String(),
			g.CreatedAt,
			toNullTime(g.RevokedAt),
			toNullString(g.RevokedBy),
		); err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
}

func (r *AccessGrantsRepo) Revoke(ctx context.Context, id, actorID string, at time.Time, ev audit.Event) (bool, error) {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := conditional(ctx, tx, `
			UPDATE access_grants
			SET revoked_at = $2, revoked_by = $3
			WHERE id = $1 AND revoked_at IS NULL
		`, id, at, actorID); err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
	if errors.Is(err, errNoop) {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *AccessGrantsRepo) GetByID(ctx context.Context, id string) (accessgrants.Grant, error) {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return accessgrants.Grant{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM access_grants WHERE id = $1`, id)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return accessgrants.Grant{}, ErrNotFound
	}
	return g, err
}

func (r *AccessGrantsRepo) ListActiveByPatient(ctx context.Context, patientID string) ([]accessgrants.Grant, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}
	return r.list(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE granter_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC, id DESC
	`, patientID)
}

func (r *AccessGrantsRepo) ListActiveFor(ctx context.Context, patientID, granteeID string) ([]accessgrants.Grant, error) {
	return r.list(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE granter_id = $1 AND grantee_id = $2 AND revoked_at IS NULL
	`, patientID, granteeID)
}

func (r *AccessGrantsRepo) list(ctx context.Context, query string, args ...any) ([]accessgrants.Grant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]accessgrants.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGrant(s scanner) (accessgrants.Grant, error) {
	var (
		g          accessgrants.Grant
		entityType string
		level      string
		revokedAt  sql.NullTime
		revokedBy  sql.NullString
	)
	if err := s.Scan(
		&g.ID,
		&g.GranterID,
		&g.GranteeID,
		&entityType,
		&level,
		&g.CreatedAt,
		&revokedAt,
		&revokedBy,
	); err != nil {
		return accessgrants.Grant{}, err
	}

	g.EntityType = accessgrants.EntityType(entityType)
	g.Level, _ = accessgrants.ParseLevel(level)
	g.CreatedAt = g.CreatedAt.UTC()
	g.RevokedAt = fromNullTime(revokedAt)
	g.RevokedBy = fromNullString(revokedBy)
	return g, nil
}

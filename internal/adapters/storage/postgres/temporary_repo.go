package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/temporaryaccess"
)

type TemporaryRepo struct {
	db *sql.DB
}

func NewTemporaryRepo(db *sql.DB) *TemporaryRepo {
	return &TemporaryRepo{db: db}
}

const permissionColumns = `id, patient_id, accessor_id, scope, source, granted_by, granted_at, expires_at, revoked_at, expired_marked_at`

func (r *TemporaryRepo) Create(ctx context.Context, p temporaryaccess.Permission, ev audit.Event) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertPermission(ctx, tx, p); err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
}

func insertPermission(ctx context.Context, ex execer, p temporaryaccess.Permission) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO temporary_permissions (`+permissionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		p.ID,
		p.PatientID,
		p.AccessorID,
		string(p.Scope),
		string(p.Source),
		p.GrantedBy,
		p.GrantedAt,
		p.ExpiresAt,
		toNullTime(p.RevokedAt),
		toNullTime(p.ExpiredMarkedAt),
	)
	return err
}

func (r *TemporaryRepo) Revoke(ctx context.Context, id string, at time.Time, ev audit.Event) (bool, error) {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := conditional(ctx, tx, `
			UPDATE temporary_permissions
			SET revoked_at = $2
			WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2
		`, id, at); err != nil {
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

func (r *TemporaryRepo) GetByID(ctx context.Context, id string) (temporaryaccess.Permission, error) {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return temporaryaccess.Permission{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+permissionColumns+` FROM temporary_permissions WHERE id = $1`, id)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return temporaryaccess.Permission{}, ErrNotFound
	}
	return p, err
}

func (r *TemporaryRepo) ListValidFor(ctx context.Context, patientID, accessorID string, now time.Time) ([]temporaryaccess.Permission, error) {
	return r.list(ctx, `
		SELECT `+permissionColumns+`
		FROM temporary_permissions
		WHERE patient_id = $1 AND accessor_id = $2 AND revoked_at IS NULL AND expires_at > $3
	`, patientID, accessorID, now)
}

func (r *TemporaryRepo) ListByPatient(ctx context.Context, patientID string) ([]temporaryaccess.Permission, error) {
	return r.list(ctx, `
		SELECT `+permissionColumns+`
		FROM temporary_permissions
		WHERE patient_id = $1
		ORDER BY granted_at DESC
	`, patientID)
}

// MarkExpired bloquea las filas candidatas (SKIP LOCKED) para que dos
// sweeps en paralelo no auditen la misma fila.
func (r *TemporaryRepo) MarkExpired(ctx context.Context, now time.Time, event func(temporaryaccess.Permission) audit.Event) (int, error) {
	n := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+permissionColumns+`
			FROM temporary_permissions
			WHERE revoked_at IS NULL AND expired_marked_at IS NULL AND expires_at <= $1
			FOR UPDATE SKIP LOCKED
		`, now)
		if err != nil {
			return err
		}
		stale := make([]temporaryaccess.Permission, 0)
		for rows.Next() {
			p, err := scanPermission(rows)
			if err != nil {
				rows.Close()
				return err
			}
			stale = append(stale, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, p := range stale {
			if _, err := tx.ExecContext(ctx, `
				UPDATE temporary_permissions SET expired_marked_at = $2 WHERE id = $1
			`, p.ID, now); err != nil {
				return err
			}
			at := now
			p.ExpiredMarkedAt = &at
			if err := insertEvents(ctx, tx, event(p)); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *TemporaryRepo) list(ctx context.Context, query string, args ...any) ([]temporaryaccess.Permission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]temporaryaccess.Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPermission(s scanner) (temporaryaccess.Permission, error) {
	var (
		p             temporaryaccess.Permission
		scope, source string
		revokedAt     sql.NullTime
		markedAt      sql.NullTime
	)
	if err := s.Scan(
		&p.ID,
		&p.PatientID,
		&p.AccessorID,
		&scope,
		&source,
		&p.GrantedBy,
		&p.GrantedAt,
		&p.ExpiresAt,
		&revokedAt,
		&markedAt,
	); err != nil {
		return temporaryaccess.Permission{}, err
	}
	p.Scope = temporaryaccess.Scope(scope)
	p.Source = temporaryaccess.Source(source)
	p.GrantedAt = p.GrantedAt.UTC()
	p.ExpiresAt = p.ExpiresAt.UTC()
	p.RevokedAt = fromNullTime(revokedAt)
	p.ExpiredMarkedAt = fromNullTime(markedAt)
	return p, nil
}

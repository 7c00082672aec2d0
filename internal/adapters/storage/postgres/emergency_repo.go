package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/emergency"
)

type EmergencyRepo struct {
	db *sql.DB
}

func NewEmergencyRepo(db *sql.DB) *EmergencyRepo {
	return &EmergencyRepo{db: db}
}

const tokenColumns = `id, token, patient_id, issued_by, issued_at, expires_at, is_active, used_at, used_by, expired_at`

func (r *EmergencyRepo) Create(ctx context.Context, t emergency.Token, ev audit.Event) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO emergency_tokens (`+tokenColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			t.ID,
			t.Token,
			t.PatientID,
			t.IssuedBy,
			t.IssuedAt,
			t.ExpiresAt,
			t.IsActive,
			toNullTime(t.UsedAt),
			toNullString(t.UsedBy),
			toNullTime(t.ExpiredAt),
		); err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
}

func (r *EmergencyRepo) ActiveExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM emergency_tokens
			WHERE token = $1 AND is_active
		)
	`, token).Scan(&exists)
	return exists, err
}

// GetByToken devuelve la emisión más reciente de ese valor.
func (r *EmergencyRepo) GetByToken(ctx context.Context, token string) (emergency.Token, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return emergency.Token{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM emergency_tokens
		WHERE token = $1
		ORDER BY issued_at DESC
		LIMIT 1
	`, token)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return emergency.Token{}, ErrNotFound
	}
	return t, err
}

// Redeem: el UPDATE condicional es la única decisión. Si afecta cero filas
// otro canje ganó (o venció) y no se escribe nada más.
func (r *EmergencyRepo) Redeem(ctx context.Context, red emergency.Redemption) (bool, error) {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := conditional(ctx, tx, `
			UPDATE emergency_tokens
			SET is_active = FALSE, used_at = $2, used_by = $3
			WHERE token = $1 AND is_active AND expires_at > $2
		`, red.Token, red.At, red.ActorID); err != nil {
			return err
		}
		if err := insertPermission(ctx, tx, red.Permission); err != nil {
			return err
		}
		return insertEvents(ctx, tx, red.Events...)
	})
	if errors.Is(err, errNoop) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *EmergencyRepo) Expire(ctx context.Context, id string, at time.Time, ev audit.Event) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := conditional(ctx, tx, `
			UPDATE emergency_tokens
			SET is_active = FALSE, expired_at = $2
			WHERE id = $1 AND is_active AND expires_at <= $2
		`, id, at); err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
	if errors.Is(err, errNoop) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *EmergencyRepo) MarkExpired(ctx context.Context, now time.Time, event func(emergency.Token) audit.Event) (int, error) {
	n := 0
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE emergency_tokens
			SET is_active = FALSE, expired_at = $1
			WHERE id IN (
				SELECT id FROM emergency_tokens
				WHERE is_active AND expires_at <= $1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+tokenColumns+`
		`, now)
		if err != nil {
			return err
		}
		stale := make([]emergency.Token, 0)
		for rows.Next() {
			t, err := scanToken(rows)
			if err != nil {
				rows.Close()
				return err
			}
			stale = append(stale, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		evs := make([]audit.Event, 0, len(stale))
		for _, t := range stale {
			evs = append(evs, event(t))
		}
		if err := insertEvents(ctx, tx, evs...); err != nil {
			return err
		}
		n = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *EmergencyRepo) ListByPatient(ctx context.Context, patientID string) ([]emergency.Token, error) {
	return r.list(ctx, `
		SELECT `+tokenColumns+`
		FROM emergency_tokens
		WHERE patient_id = $1
		ORDER BY issued_at DESC
	`, patientID)
}

func (r *EmergencyRepo) ListActiveByPatient(ctx context.Context, patientID string, now time.Time) ([]emergency.Token, error) {
	return r.list(ctx, `
		SELECT `+tokenColumns+`
		FROM emergency_tokens
		WHERE patient_id = $1 AND is_active AND expires_at > $2
		ORDER BY issued_at DESC
	`, patientID, now)
}

func (r *EmergencyRepo) list(ctx context.Context, query string, args ...any) ([]emergency.Token, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]emergency.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanToken(s scanner) (emergency.Token, error) {
	var (
		t         emergency.Token
		usedAt    sql.NullTime
		usedBy    sql.NullString
		expiredAt sql.NullTime
	)
	if err := s.Scan(
		&t.ID,
		&t.Token,
		&t.PatientID,
		&t.IssuedBy,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.IsActive,
		&usedAt,
		&usedBy,
		&expiredAt,
	); err != nil {
		return emergency.Token{}, err
	}
	t.IssuedAt = t.IssuedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.UsedAt = fromNullTime(usedAt)
	t.UsedBy = fromNullString(usedBy)
	t.ExpiredAt = fromNullTime(expiredAt)
	return t, nil
}

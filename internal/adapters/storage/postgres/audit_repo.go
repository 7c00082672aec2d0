package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"patient-records-access/internal/domain/audit"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, e audit.Event) error {
	return insertEvents(ctx, r.db, e)
}

// insertEvents lo usan todos los repos dentro de su transacción.
func insertEvents(ctx context.Context, ex execer, evs ...audit.Event) error {
	for _, e := range evs {
		if e.ID == "" || !e.Action.Valid() {
			return fmt.Errorf("invalid audit event %q action=%q", e.ID, e.Action)
		}
		md := e.Metadata
		if md == nil {
			md = map[string]string{}
		}
		raw, err := json.Marshal(md)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO audit_events (id, actor_id, subject_patient_id, action, ts, metadata)
			VALUES ($1,$2,$3,$4,$5,$6::jsonb)
		`,
			e.ID,
			e.ActorID,
			e.SubjectPatientID,
			string(e.Action),
			e.Timestamp,
			string(raw),
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *AuditRepo) ListByPatient(ctx context.Context, patientID string) ([]audit.Event, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_id, subject_patient_id, action, ts, metadata
		FROM audit_events
		WHERE subject_patient_id = $1
		ORDER BY seq ASC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e      audit.Event
			action string
			raw    []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.SubjectPatientID, &action, &e.Timestamp, &raw); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		e.Timestamp = e.Timestamp.UTC()
		e.Metadata = map[string]string{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

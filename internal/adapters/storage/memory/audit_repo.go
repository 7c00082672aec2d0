package memory

import (
	"context"

	"patient-records-access/internal/domain/audit"
)

// auditRepo solo agrega y lee. No hay update ni delete.
type auditRepo struct {
	s *Store
}

func (r *auditRepo) Append(ctx context.Context, e audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkAuditLocked(e); err != nil {
		return err
	}
	r.s.appendAuditLocked(e)
	return nil
}

// ListByPatient devuelve en orden de escritura.
func (r *auditRepo) ListByPatient(ctx context.Context, patientID string) ([]audit.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]audit.Event, 0)
	for _, e := range r.s.events {
		if e.SubjectPatientID == patientID {
			out = append(out, copyEvent(e))
		}
	}
	return out, nil
}

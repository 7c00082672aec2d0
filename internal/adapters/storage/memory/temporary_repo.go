package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/temporaryaccess"
)

type temporaryRepo struct {
	s *Store
}

func (r *temporaryRepo) Create(ctx context.Context, p temporaryaccess.Permission, ev audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkAuditLocked(ev); err != nil {
		return err
	}
	if err := r.s.insertPermissionLocked(p); err != nil {
		return err
	}
	r.s.appendAuditLocked(ev)
	return nil
}

// insertPermissionLocked también lo usa el canje de emergencia.
func (s *Store) insertPermissionLocked(p temporaryaccess.Permission) error {
	if p.ID == "" {
		return errors.New("permission id required")
	}
	if _, exists := s.temporary[p.ID]; exists {
		return errors.New("permission already exists")
	}
	s.temporary[p.ID] = p
	return nil
}

func (r *temporaryRepo) Revoke(ctx context.Context, id string, at time.Time, ev audit.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.temporary[id]
	if !ok {
		return false, ErrNotFound
	}
	if !p.ValidAt(at) {
		return false, nil
	}
	if err := r.s.checkAuditLocked(ev); err != nil {
		return false, err
	}
	p.RevokedAt = &at
	r.s.temporary[id] = p
	r.s.appendAuditLocked(ev)
	return true, nil
}

func (r *temporaryRepo) GetByID(ctx context.Context, id string) (temporaryaccess.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.temporary[id]
	if !ok {
		return temporaryaccess.Permission{}, ErrNotFound
	}
	return p, nil
}

func (r *temporaryRepo) ListValidFor(ctx context.Context, patientID, accessorID string, now time.Time) ([]temporaryaccess.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]temporaryaccess.Permission, 0)
	for _, p := range r.s.temporary {
		if p.PatientID == patientID && p.AccessorID == accessorID && p.ValidAt(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *temporaryRepo) ListByPatient(ctx context.Context, patientID string) ([]temporaryaccess.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]temporaryaccess.Permission, 0)
	for _, p := range r.s.temporary {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out, nil
}

func (r *temporaryRepo) MarkExpired(ctx context.Context, now time.Time, event func(temporaryaccess.Permission) audit.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stale := make([]temporaryaccess.Permission, 0)
	evs := make([]audit.Event, 0)
	for _, p := range r.s.temporary {
		if p.ExpiredMarkedAt != nil || p.RevokedAt != nil || now.Before(p.ExpiresAt) {
			continue
		}
		at := now
		p.ExpiredMarkedAt = &at
		stale = append(stale, p)
		evs = append(evs, event(p))
	}
	if err := r.s.checkAuditLocked(evs...); err != nil {
		return 0, err
	}
	for _, p := range stale {
		r.s.temporary[p.ID] = p
	}
	r.s.appendAuditLocked(evs...)
	return len(stale), nil
}

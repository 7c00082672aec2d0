package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/audit"
)

type grantRepo struct {
	s *Store
}

func (r *grantRepo) Create(ctx context.Context, g accessgrants.Grant, ev audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if g.ID == "" {
		return errors.New("grant id required")
	}
	if _, exists := r.s.grants[g.ID]; exists {
		return errors.New("grant already exists")
	}
	if err := r.s.checkAuditLocked(ev); err != nil {
		return err
	}
	r.s.grants[g.ID] = g
	r.s.appendAuditLocked(ev)
	return nil
}

func (r *grantRepo) Revoke(ctx context.Context, id, actorID string, at time.Time, ev audit.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.grants[id]
	if !ok {
		return false, ErrNotFound
	}
	if g.RevokedAt != nil {
		return false, nil
	}
	if err := r.s.checkAuditLocked(ev); err != nil {
		return false, err
	}
	g.RevokedAt = &at
	g.RevokedBy = &actorID
	r.s.grants[id] = g
	r.s.appendAuditLocked(ev)
	return true, nil
}

func (r *grantRepo) GetByID(ctx context.Context, id string) (accessgrants.Grant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.grants[id]
	if !ok {
		return accessgrants.Grant{}, ErrNotFound
	}
	return g, nil
}

func (r *grantRepo) ListActiveByPatient(ctx context.Context, patientID string) ([]accessgrants.Grant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]accessgrants.Grant, 0)
	for _, g := range r.s.grants {
		if g.GranterID == patientID && g.Active() {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Puede haber más de un grant activo para el par; el facade elige.
func (r *grantRepo) ListActiveFor(ctx context.Context, patientID, granteeID string) ([]accessgrants.Grant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]accessgrants.Grant, 0)
	for _, g := range r.s.grants {
		if g.GranterID == patientID && g.GranteeID == granteeID && g.Active() {
			out = append(out, g)
		}
	}
	return out, nil
}

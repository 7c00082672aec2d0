package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/emergency"
)

type emergencyRepo struct {
	s *Store
}

func (r *emergencyRepo) Create(ctx context.Context, t emergency.Token, ev audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if t.ID == "" || t.Token == "" {
		return errors.New("token id and value required")
	}
	if _, exists := r.s.tokens[t.ID]; exists {
		return errors.New("token already exists")
	}
	if prev, ok := r.s.byCode[t.Token]; ok && r.s.tokens[prev].IsActive {
		return errors.New("token value already active")
	}
	if err := r.s.checkAuditLocked(ev); err != nil {
		return err
	}
	r.s.tokens[t.ID] = t
	r.s.byCode[t.Token] = t.ID
	r.s.appendAuditLocked(ev)
	return nil
}

func (r *emergencyRepo) ActiveExists(ctx context.Context, token string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byCode[token]
	if !ok {
		return false, nil
	}
	return r.s.tokens[id].IsActive, nil
}

func (r *emergencyRepo) GetByToken(ctx context.Context, token string) (emergency.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byCode[token]
	if !ok {
		return emergency.Token{}, ErrNotFound
	}
	return r.s.tokens[id], nil
}

// Redeem es el compare-and-set: la condición se evalúa bajo el lock de
// escritura, junto con el insert del permiso y los eventos.
func (r *emergencyRepo) Redeem(ctx context.Context, red emergency.Redemption) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byCode[red.Token]
	if !ok {
		return false, nil
	}
	t := r.s.tokens[id]
	if !t.IsActive || !red.At.Before(t.ExpiresAt) {
		return false, nil
	}
	if err := r.s.checkAuditLocked(red.Events...); err != nil {
		return false, err
	}
	if err := r.s.insertPermissionLocked(red.Permission); err != nil {
		return false, err
	}

	at, by := red.At, red.ActorID
	t.IsActive = false
	t.UsedAt = &at
	t.UsedBy = &by
	r.s.tokens[id] = t
	r.s.appendAuditLocked(red.Events...)
	return true, nil
}

func (r *emergencyRepo) Expire(ctx context.Context, id string, at time.Time, ev audit.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tokens[id]
	if !ok || !t.IsActive || at.Before(t.ExpiresAt) {
		return false, nil
	}
	if err := r.s.checkAuditLocked(ev); err != nil {
		return false, err
	}
	t.IsActive = false
	t.ExpiredAt = &at
	r.s.tokens[id] = t
	r.s.appendAuditLocked(ev)
	return true, nil
}

func (r *emergencyRepo) MarkExpired(ctx context.Context, now time.Time, event func(emergency.Token) audit.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stale := make([]emergency.Token, 0)
	evs := make([]audit.Event, 0)
	for _, t := range r.s.tokens {
		if !t.IsActive || now.Before(t.ExpiresAt) {
			continue
		}
		at := now
		t.IsActive = false
		t.ExpiredAt = &at
		stale = append(stale, t)
		evs = append(evs, event(t))
	}
	if err := r.s.checkAuditLocked(evs...); err != nil {
		return 0, err
	}
	for _, t := range stale {
		r.s.tokens[t.ID] = t
	}
	r.s.appendAuditLocked(evs...)
	return len(stale), nil
}

func (r *emergencyRepo) ListByPatient(ctx context.Context, patientID string) ([]emergency.Token, error) {
	return r.list(patientID, func(emergency.Token) bool { return true })
}

func (r *emergencyRepo) ListActiveByPatient(ctx context.Context, patientID string, now time.Time) ([]emergency.Token, error) {
	return r.list(patientID, func(t emergency.Token) bool { return t.RedeemableAt(now) })
}

func (r *emergencyRepo) list(patientID string, keep func(emergency.Token) bool) ([]emergency.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]emergency.Token, 0)
	for _, t := range r.s.tokens {
		if t.PatientID == patientID && keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

package memory

import (
	"context"
	"errors"
	"sync"

	"patient-records-access/internal/domain/accesserr"
	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/emergency"
	"patient-records-access/internal/domain/temporaryaccess"
)

var ErrNotFound = accesserr.ErrNotFound

// Store guarda todas las tablas bajo un mismo lock. Así cada escritura de
// estado y su evento de auditoría son atómicas entre sí, igual que una
// transacción en postgres.
type Store struct {
	mu sync.RWMutex

	grants    map[string]accessgrants.Grant
	temporary map[string]temporaryaccess.Permission
	tokens    map[string]emergency.Token
	byCode    map[string]string
	events    []audit.Event

	// failAudit simula una falla del insert de auditoría (tests).
	failAudit error
}

func NewStore() *Store {
	return &Store{
		grants:    make(map[string]accessgrants.Grant),
		temporary: make(map[string]temporaryaccess.Permission),
		tokens:    make(map[string]emergency.Token),
		byCode:    make(map[string]string),
	}
}

func (s *Store) AccessGrants() accessgrants.Repository { return &grantRepo{s: s} }
func (s *Store) Temporary() temporaryaccess.Repository { return &temporaryRepo{s: s} }
func (s *Store) Emergency() emergency.Repository       { return &emergencyRepo{s: s} }
func (s *Store) Audit() audit.Repository               { return &auditRepo{s: s} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

// checkAuditLocked valida los eventos antes de tocar estado. Si falla, la
// escritura completa se descarta.
func (s *Store) checkAuditLocked(evs ...audit.Event) error {
	if s.failAudit != nil {
		return s.failAudit
	}
	for _, e := range evs {
		if e.ID == "" {
			return errors.New("audit event id required")
		}
		if !e.Action.Valid() {
			return errors.New("audit event action invalid")
		}
	}
	return nil
}

func (s *Store) appendAuditLocked(evs ...audit.Event) {
	for _, e := range evs {
		s.events = append(s.events, copyEvent(e))
	}
}

func copyEvent(e audit.Event) audit.Event {
	md := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		md[k] = v
	}
	e.Metadata = md
	return e
}

package temporaryaccess

import (
	"time"

	"patient-records-access/internal/domain/accessgrants"
)

type Scope string

const (
	ScopeFull    Scope = "full"
	ScopePartial Scope = "partial"
)

func (s Scope) Valid() bool {
	return s == ScopeFull || s == ScopePartial
}

// Level traduce el scope al nivel equivalente de un grant permanente.
func (s Scope) Level() accessgrants.Level {
	switch s {
	case ScopeFull:
		return accessgrants.LevelFullAccess
	case ScopePartial:
		return accessgrants.LevelViewRecords
	default:
		return accessgrants.LevelNone
	}
}

type Source string

const (
	SourceApproval  Source = "approval"
	SourceEmergency Source = "emergency"
)

type Permission struct {
	ID string

	PatientID  string
	AccessorID string
	Scope      Scope

	Source    Source
	GrantedBy string

	GrantedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time

	// ExpiredMarkedAt es solo bookkeeping del sweep. La validez nunca lo lee.
	ExpiredMarkedAt *time.Time
}

// ValidAt: revoked_at nulo y now < expires_at.
func (p Permission) ValidAt(now time.Time) bool {
	return p.RevokedAt == nil && now.Before(p.ExpiresAt)
}

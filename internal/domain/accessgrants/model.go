package accessgrants

import (
	"strings"
	"time"
)

// Level es un enum ordenado: comparar con < / > es válido.
type Level int

const (
	LevelNone Level = iota
	LevelViewSummary
	LevelViewRecords
	LevelEmergencyAccess
	LevelFullAccess
)

var levelNames = map[Level]string{
	LevelViewSummary:     "view_summary",
	LevelViewRecords:     "view_records",
	LevelEmergencyAccess: "emergency_access",
	LevelFullAccess:      "full_access",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "none"
}

func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

func ParseLevel(s string) (Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == s {
			return l, true
		}
	}
	return LevelNone, false
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, ok := ParseLevel(string(b))
	if !ok {
		// Valor desconocido: queda LevelNone y el service lo rechaza.
		*l = LevelNone
		return nil
	}
	*l = parsed
	return nil
}

type EntityType string

const (
	EntityHospital   EntityType = "hospital"
	EntityIndividual EntityType = "individual"
)

func (e EntityType) Valid() bool {
	return e == EntityHospital || e == EntityIndividual
}

type Grant struct {
	ID string

	GranterID string // paciente que comparte
	GranteeID string // hospital o persona

	EntityType EntityType
	Level      Level

	CreatedAt time.Time
	// RevokedAt una vez seteado no cambia más.
	RevokedAt *time.Time
	RevokedBy *string
}

func (g Grant) Active() bool {
	return g.RevokedAt == nil
}

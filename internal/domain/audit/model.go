package audit

import "time"

type Action string

const (
	ActionGrant           Action = "grant"
	ActionRevoke          Action = "revoke"
	ActionEmergencyIssue  Action = "emergency_issue"
	ActionEmergencyRedeem Action = "emergency_redeem"
	ActionEmergencyExpire Action = "emergency_expire"
	ActionExpire          Action = "expire"
)

func (a Action) Valid() bool {
	switch a {
	case ActionGrant, ActionRevoke, ActionEmergencyIssue,
		ActionEmergencyRedeem, ActionEmergencyExpire, ActionExpire:
		return true
	default:
		return false
	}
}

// Event es inmutable una vez escrito. No existe API de update ni delete.
type Event struct {
	ID string

	ActorID          string
	SubjectPatientID string

	Action    Action
	Timestamp time.Time

	// Metadata libre: level, token_id, permission_id, reason, kind...
	Metadata map[string]string
}

// Claves de metadata usadas por los módulos.
const (
	MetaKind         = "kind"
	MetaGrantID      = "grant_id"
	MetaLevel        = "level"
	MetaEntityType   = "entity_type"
	MetaGranteeID    = "grantee_id"
	MetaPermissionID = "permission_id"
	MetaScope        = "scope"
	MetaExpiresAt    = "expires_at"
	MetaTokenID      = "token_id"
	MetaReason       = "reason"
	MetaSource       = "source"
	MetaActorName    = "actor_display_name"
	MetaActorRole    = "actor_role"
)

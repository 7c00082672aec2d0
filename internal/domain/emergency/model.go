package emergency

import "time"

type State string

const (
	StateIssued   State = "issued"
	StateRedeemed State = "redeemed"
	StateExpired  State = "expired"
)

// Token es una credencial de un solo uso ligada a un paciente.
//
// Token (el secreto) nunca va a auditoría ni a logs: para eso está ID.
type Token struct {
	ID        string
	Token     string
	PatientID string
	IssuedBy  string

	IssuedAt  time.Time
	ExpiresAt time.Time

	IsActive bool
	UsedAt   *time.Time
	UsedBy   *string

	// ExpiredAt lo escribe el sweep (o un canje tardío). Es bookkeeping:
	// el vencimiento siempre se calcula contra ExpiresAt.
	ExpiredAt *time.Time
}

// RedeemableAt: is_active y now < expires_at.
func (t Token) RedeemableAt(now time.Time) bool {
	return t.IsActive && now.Before(t.ExpiresAt)
}

func (t Token) State(now time.Time) State {
	switch {
	case t.UsedAt != nil:
		return StateRedeemed
	case !t.RedeemableAt(now):
		return StateExpired
	default:
		return StateIssued
	}
}

// Handle es lo que recibe quien canjea con éxito. Con él se pide el perfil
// de emergencia; el acceso real vive en PermissionID.
type Handle struct {
	TokenID      string    `json:"token_id"`
	PatientID    string    `json:"patient_id"`
	ActorID      string    `json:"actor_id"`
	PermissionID string    `json:"permission_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Motivos internos de rechazo. Afuera todos son ErrInvalidToken.
const (
	reasonUnknown  = "unknown"
	reasonInactive = "inactive"
	reasonExpired  = "expired"
	reasonRaceLost = "already_used"
)

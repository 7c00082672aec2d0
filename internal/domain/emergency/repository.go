package emergency

import (
	"context"
	"time"

	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/temporaryaccess"
)

// Redemption es todo lo que el canje escribe en una sola transacción.
type Redemption struct {
	Token   string
	ActorID string
	At      time.Time

	Permission temporaryaccess.Permission
	Events     []audit.Event
}

type Repository interface {
	Create(ctx context.Context, t Token, ev audit.Event) error
	// ActiveExists mira is_active, igual que la restricción de unicidad: un
	// token vencido que el barrido no marcó todavía sigue ocupando el valor.
	ActiveExists(ctx context.Context, token string) (bool, error)
	GetByToken(ctx context.Context, token string) (Token, error)

	// Redeem es el update condicional
	//   SET is_active=false, used_at, used_by WHERE token=? AND is_active AND expires_at > at
	// más el permiso temporal y los eventos. false = cero filas afectadas.
	Redeem(ctx context.Context, r Redemption) (bool, error)

	// Expire marca un token activo ya vencido a at. false = nada que marcar.
	Expire(ctx context.Context, id string, at time.Time, ev audit.Event) (bool, error)
	MarkExpired(ctx context.Context, now time.Time, event func(Token) audit.Event) (int, error)

	ListByPatient(ctx context.Context, patientID string) ([]Token, error)
	ListActiveByPatient(ctx context.Context, patientID string, now time.Time) ([]Token, error)
}

// AttemptLimiter acota los intentos de canje por actor.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

package temporaryaccess

import (
	"context"
	"time"

	"patient-records-access/internal/domain/audit"
)

type Repository interface {
	Create(ctx context.Context, p Permission, ev audit.Event) error
	// Revoke actualiza solo si revoked_at es nulo y expires_at > at.
	// false = ya estaba inactivo (revocado o vencido), sin evento.
	Revoke(ctx context.Context, id string, at time.Time, ev audit.Event) (bool, error)
	GetByID(ctx context.Context, id string) (Permission, error)
	ListValidFor(ctx context.Context, patientID, accessorID string, now time.Time) ([]Permission, error)
	ListByPatient(ctx context.Context, patientID string) ([]Permission, error)
	// MarkExpired marca las filas vencidas aún no marcadas y escribe un
	// evento por fila, en la misma transacción.
	MarkExpired(ctx context.Context, now time.Time, event func(Permission) audit.Event) (int, error)
}

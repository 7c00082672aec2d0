package accessgrants

import (
	"context"
	"time"

	"patient-records-access/internal/domain/audit"
)

// Repository: cada escritura persiste el cambio y su evento de auditoría en
// la misma transacción (o ninguno de los dos).
type Repository interface {
	Create(ctx context.Context, g Grant, ev audit.Event) error
	// Revoke es un update condicional sobre revoked_at IS NULL. Devuelve
	// false (sin escribir el evento) si ya estaba revocado.
	Revoke(ctx context.Context, id, actorID string, at time.Time, ev audit.Event) (bool, error)
	GetByID(ctx context.Context, id string) (Grant, error)
	// ListActiveByPatient ordena por created_at desc.
	ListActiveByPatient(ctx context.Context, patientID string) ([]Grant, error)
	ListActiveFor(ctx context.Context, patientID, granteeID string) ([]Grant, error)
}

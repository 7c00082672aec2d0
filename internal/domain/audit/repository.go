package audit

import "context"

// Repository es append-only. Los demás repositorios escriben sus eventos en
// la misma transacción que el cambio de estado; este contrato es para
// eventos sueltos y consultas.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByPatient(ctx context.Context, patientID string) ([]Event, error)
}

package audit

import (
	"context"
	"strings"
	"time"

	"patient-records-access/internal/domain/accesserr"

	"github.com/google/uuid"
)

type Recorder struct {
	repo Repository
	now  func() time.Time
}

func NewRecorder(repo Repository, now func() time.Time) *Recorder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Recorder{repo: repo, now: now}
}

// New arma un evento con ID y timestamp. No lo persiste.
func (r *Recorder) New(actorID, patientID string, action Action, metadata map[string]string) Event {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if strings.TrimSpace(k) == "" {
			continue
		}
		md[k] = v
	}
	return Event{
		ID:               uuid.NewString(),
		ActorID:          strings.TrimSpace(actorID),
		SubjectPatientID: strings.TrimSpace(patientID),
		Action:           action,
		Timestamp:        r.now(),
		Metadata:         md,
	}
}

// Record agrega un evento suelto. Nunca falla por razones de negocio: si
// faltan ID o timestamp los completa. Un error de storage se propaga.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	if err := r.repo.Append(ctx, e); err != nil {
		return accesserr.Storage(err)
	}
	return nil
}

func (r *Recorder) QueryByPatient(ctx context.Context, patientID string) ([]Event, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, accesserr.Validation("patient id required")
	}
	items, err := r.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, accesserr.Storage(err)
	}
	return items, nil
}

package audit

import (
	"net/http"
	"time"

	"patient-records-access/internal/middleware"
	"patient-records-access/internal/platform/respond"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, rec *Recorder) {
	r.Get("/patients/{patientID}/audit", listAuditHandler(rec))
}

type eventResponse struct {
	ID        string            `json:"id"`
	ActorID   string            `json:"actor_id"`
	PatientID string            `json:"patient_id"`
	Action    Action            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// Solo el paciente lee su propio rastro.
func listAuditHandler(rec *Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if userID == "" {
			respond.Unauthorized(w)
			return
		}
		patientID := chi.URLParam(r, "patientID")
		if patientID != userID {
			respond.Forbidden(w)
			return
		}

		items, err := rec.QueryByPatient(r.Context(), patientID)
		if err != nil {
			respond.Error(w, err)
			return
		}
		out := make([]eventResponse, 0, len(items))
		for _, e := range items {
			out = append(out, eventResponse{
				ID:        e.ID,
				ActorID:   e.ActorID,
				PatientID: e.SubjectPatientID,
				Action:    e.Action,
				Timestamp: e.Timestamp,
				Metadata:  e.Metadata,
			})
		}
		respond.JSON(w, http.StatusOK, out)
	}
}

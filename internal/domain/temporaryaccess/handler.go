package temporaryaccess

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"patient-records-access/internal/middleware"
	"patient-records-access/internal/platform/respond"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/patients/{patientID}/temporary-access", func(tr chi.Router) {
		tr.Post("/", grantTemporaryHandler(svc))
		tr.Get("/", listTemporaryHandler(svc))
	})

	r.Route("/temporary-access/{permissionID}", func(tr chi.Router) {
		tr.Get("/", getTemporaryHandler(svc))
		tr.Post("/revoke", revokeTemporaryHandler(svc))
	})
}

type grantTemporaryRequest struct {
	AccessorID string `json:"accessor_id"`
	Scope      Scope  `json:"scope"`
	// TTL en formato Go: "30m", "2h".
	TTL string `json:"ttl"`
}

type permissionResponse struct {
	ID         string     `json:"id"`
	PatientID  string     `json:"patient_id"`
	AccessorID string     `json:"accessor_id"`
	Scope      Scope      `json:"scope"`
	Source     Source     `json:"source"`
	GrantedBy  string     `json:"granted_by"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	Valid      bool       `json:"valid"`
}

func grantTemporaryHandler(svc *Service) http.HandlerFunc {
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

		var req grantTemporaryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.BadRequest(w, "invalid json")
			return
		}
		ttl, err := time.ParseDuration(strings.TrimSpace(req.TTL))
		if err != nil {
			respond.BadRequest(w, "invalid ttl")
			return
		}

		p, err := svc.GrantTemporary(r.Context(), GrantInput{
			PatientID:  patientID,
			AccessorID: req.AccessorID,
			Scope:      req.Scope,
			TTL:        ttl,
			GrantedBy:  userID,
		})
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusCreated, svc.toResponse(p))
	}
}

func listTemporaryHandler(svc *Service) http.HandlerFunc {
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

		items, err := svc.ListByPatient(r.Context(), patientID)
		if err != nil {
			respond.Error(w, err)
			return
		}
		out := make([]permissionResponse, 0, len(items))
		for _, p := range items {
			out = append(out, svc.toResponse(p))
		}
		respond.JSON(w, http.StatusOK, out)
	}
}

// El paciente y el propio accessor pueden consultar el permiso.
func getTemporaryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if userID == "" {
			respond.Unauthorized(w)
			return
		}

		p, err := svc.Get(r.Context(), chi.URLParam(r, "permissionID"))
		if err != nil {
			respond.Error(w, err)
			return
		}
		if userID != p.PatientID && userID != p.AccessorID {
			respond.Forbidden(w)
			return
		}
		respond.JSON(w, http.StatusOK, svc.toResponse(p))
	}
}

// Revocan el paciente o el propio accessor (renuncia).
func revokeTemporaryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if userID == "" {
			respond.Unauthorized(w)
			return
		}

		p, err := svc.Get(r.Context(), chi.URLParam(r, "permissionID"))
		if err != nil {
			respond.Error(w, err)
			return
		}
		if userID != p.PatientID && userID != p.AccessorID {
			respond.Forbidden(w)
			return
		}

		if err := svc.Revoke(r.Context(), p.ID, userID); err != nil {
			respond.Error(w, err)
			return
		}
		p, err = svc.Get(r.Context(), p.ID)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, svc.toResponse(p))
	}
}

func (s *Service) toResponse(p Permission) permissionResponse {
	return permissionResponse{
		ID:         p.ID,
		PatientID:  p.PatientID,
		AccessorID: p.AccessorID,
		Scope:      p.Scope,
		Source:     p.Source,
		GrantedBy:  p.GrantedBy,
		GrantedAt:  p.GrantedAt,
		ExpiresAt:  p.ExpiresAt,
		RevokedAt:  p.RevokedAt,
		Valid:      p.ValidAt(s.now()),
	}
}

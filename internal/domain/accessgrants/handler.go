package accessgrants

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
	// Solo el paciente gestiona sus grants.
	r.Route("/patients/{patientID}/grants", func(gr chi.Router) {
		gr.Post("/", createGrantHandler(svc))
		gr.Get("/", listGrantsHandler(svc))
	})

	r.Post("/grants/{grantID}/revoke", revokeGrantHandler(svc))
}

type createGrantRequest struct {
	GranteeID  string     `json:"grantee_id"`
	EntityType EntityType `json:"entity_type"`
	Level      string     `json:"level"`
}

type grantResponse struct {
	ID         string     `json:"id"`
	PatientID  string     `json:"patient_id"`
	GranteeID  string     `json:"grantee_id"`
	EntityType EntityType `json:"entity_type"`
	Level      Level      `json:"level"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	RevokedBy  *string    `json:"revoked_by,omitempty"`
}

func createGrantHandler(svc *Service) http.HandlerFunc {
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

		var req createGrantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.BadRequest(w, "invalid json")
			return
		}
		level, ok := ParseLevel(req.Level)
		if !ok {
			respond.BadRequest(w, "unknown permission level")
			return
		}

		g, err := svc.Grant(r.Context(), GrantInput{
			GranterID:  patientID,
			GranteeID:  strings.TrimSpace(req.GranteeID),
			EntityType: req.EntityType,
			Level:      level,
		})
		if err != nil {
			respond.Error(w, err)
			return
		}

		respond.JSON(w, http.StatusCreated, toGrantResponse(g))
	}
}

func listGrantsHandler(svc *Service) http.HandlerFunc {
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

		items, err := svc.ListActive(r.Context(), patientID)
		if err != nil {
			respond.Error(w, err)
			return
		}

		out := make([]grantResponse, 0, len(items))
		for _, g := range items {
			out = append(out, toGrantResponse(g))
		}
		respond.JSON(w, http.StatusOK, out)
	}
}

func revokeGrantHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if userID == "" {
			respond.Unauthorized(w)
			return
		}

		g, err := svc.Get(r.Context(), chi.URLParam(r, "grantID"))
		if err != nil {
			respond.Error(w, err)
			return
		}
		if g.GranterID != userID {
			respond.Forbidden(w)
			return
		}

		if err := svc.Revoke(r.Context(), g.ID, userID); err != nil {
			respond.Error(w, err)
			return
		}

		g, err = svc.Get(r.Context(), g.ID)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, toGrantResponse(g))
	}
}

func toGrantResponse(g Grant) grantResponse {
	return grantResponse{
		ID:         g.ID,
		PatientID:  g.GranterID,
		GranteeID:  g.GranteeID,
		EntityType: g.EntityType,
		Level:      g.Level,
		CreatedAt:  g.CreatedAt,
		RevokedAt:  g.RevokedAt,
		RevokedBy:  g.RevokedBy,
	}
}

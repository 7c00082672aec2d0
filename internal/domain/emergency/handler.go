package emergency

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"patient-records-access/internal/middleware"
	"patient-records-access/internal/platform/respond"
	"patient-records-access/internal/ports/profiles"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/patients/{patientID}/emergency-tokens", func(er chi.Router) {
		er.Post("/", issueTokenHandler(svc))
		er.Get("/", listTokensHandler(svc))
	})
	r.Get("/patients/{patientID}/emergency-profile", emergencyProfileHandler(svc))
	r.Post("/emergency/redeem", redeemTokenHandler(svc))
}

type issueTokenRequest struct {
	// TTL opcional en formato Go ("10m"). Vacío = default del servicio.
	TTL string `json:"ttl"`
}

type tokenResponse struct {
	ID        string     `json:"id"`
	Token     string     `json:"token,omitempty"`
	PatientID string     `json:"patient_id"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	State     State      `json:"state"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedBy    *string    `json:"used_by,omitempty"`
}

type redeemRequest struct {
	Token string `json:"token"`
}

type redeemResponse struct {
	Handle  Handle                     `json:"handle"`
	Profile *profiles.EmergencyProfile `json:"profile,omitempty"`
}

// issueTokenHandler godoc
// @Summary Emitir token de emergencia
// @Description Genera un código de un solo uso para el paciente autenticado. El código solo se muestra en esta respuesta.
// @Tags emergency
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string true "ID del paciente"
// @Param payload body issueTokenRequest false "TTL opcional"
// @Success 201 {object} tokenResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /patients/{patientID}/emergency-tokens [post]
func issueTokenHandler(svc *Service) http.HandlerFunc {
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

		var req issueTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respond.BadRequest(w, "invalid json")
			return
		}
		var ttl time.Duration
		if s := strings.TrimSpace(req.TTL); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				respond.BadRequest(w, "invalid ttl")
				return
			}
			ttl = d
		}

		t, err := svc.Issue(r.Context(), IssueInput{PatientID: patientID, RequestedBy: userID, TTL: ttl})
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusCreated, toTokenResponse(t, svc.now(), true))
	}
}

// listTokensHandler godoc
// @Summary Listar tokens de emergencia
// @Description Con active=true devuelve solo los canjeables (alerta activa).
// @Tags emergency
// @Produce json
// @Param patientID path string true "ID del paciente"
// @Param active query bool false "Solo activos"
// @Success 200 {array} tokenResponse
// @Router /patients/{patientID}/emergency-tokens [get]
func listTokensHandler(svc *Service) http.HandlerFunc {
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

		var (
			items []Token
			err   error
		)
		if strings.EqualFold(r.URL.Query().Get("active"), "true") {
			items, err = svc.ListActive(r.Context(), patientID)
		} else {
			items, err = svc.ListByPatient(r.Context(), patientID)
		}
		if err != nil {
			respond.Error(w, err)
			return
		}

		now := svc.now()
		out := make([]tokenResponse, 0, len(items))
		for _, t := range items {
			out = append(out, toTokenResponse(t, now, t.RedeemableAt(now)))
		}
		respond.JSON(w, http.StatusOK, out)
	}
}

// redeemTokenHandler godoc
// @Summary Canjear token de emergencia
// @Description Consume el código una sola vez y abre un permiso temporal full para quien canjea. Token desconocido, vencido o ya usado responden igual.
// @Tags emergency
// @Accept json
// @Produce json
// @Param payload body redeemRequest true "Código"
// @Success 200 {object} redeemResponse
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string "invalid token"
// @Failure 429 {object} map[string]string
// @Router /emergency/redeem [post]
func redeemTokenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if userID == "" {
			respond.Unauthorized(w)
			return
		}

		var req redeemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.BadRequest(w, "invalid json")
			return
		}

		h, err := svc.Redeem(r.Context(), req.Token, userID)
		if err != nil {
			respond.Error(w, err)
			return
		}

		out := redeemResponse{Handle: h}
		// El canje ya ocurrió: si el perfil falla se devuelve igual el handle.
		if p, err := svc.FetchProfile(r.Context(), h); err == nil {
			out.Profile = &p
		} else if !errors.Is(err, ErrProfilesNotConfigured) {
			svc.log.Warn("emergency profile fetch failed", map[string]any{"token_id": h.TokenID, "error": err.Error()})
		}
		respond.JSON(w, http.StatusOK, out)
	}
}

// emergencyProfileHandler godoc
// @Summary Perfil de emergencia
// @Description Requiere nivel emergency_access o superior sobre el paciente (p.ej. tras un canje).
// @Tags emergency
// @Produce json
// @Param patientID path string true "ID del paciente"
// @Success 200 {object} profiles.EmergencyProfile
// @Failure 403 {object} map[string]string
// @Router /patients/{patientID}/emergency-profile [get]
func emergencyProfileHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if userID == "" {
			respond.Unauthorized(w)
			return
		}

		p, err := svc.FetchProfile(r.Context(), Handle{PatientID: chi.URLParam(r, "patientID"), ActorID: userID})
		if errors.Is(err, ErrProfilesNotConfigured) {
			respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"error": "profile service unavailable"})
			return
		}
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, p)
	}
}

// El secreto solo se expone mientras el token siga canjeable.
func toTokenResponse(t Token, now time.Time, withSecret bool) tokenResponse {
	out := tokenResponse{
		ID:        t.ID,
		PatientID: t.PatientID,
		IssuedAt:  t.IssuedAt,
		ExpiresAt: t.ExpiresAt,
		State:     t.State(now),
		UsedAt:    t.UsedAt,
		UsedBy:    t.UsedBy,
	}
	if withSecret {
		out.Token = t.Token
	}
	return out
}

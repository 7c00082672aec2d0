package authorization

import (
	"net/http"
	"strings"

	"patient-records-access/internal/middleware"
	"patient-records-access/internal/platform/respond"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, f *Facade) {
	r.Get("/patients/{patientID}/access", checkAccessHandler(f))
}

// checkAccessHandler godoc
// @Summary Consultar nivel de acceso
// @Description Devuelve el nivel efectivo de accessor_id sobre el paciente (máximo entre grants y permisos temporales) o denied. Lo pueden consultar el paciente o el propio accessor.
// @Tags authorization
// @Produce json
// @Param patientID path string true "ID del paciente"
// @Param accessor_id query string false "Default: el usuario autenticado"
// @Success 200 {object} Decision
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /patients/{patientID}/access [get]
func checkAccessHandler(f *Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if userID == "" {
			respond.Unauthorized(w)
			return
		}

		patientID := chi.URLParam(r, "patientID")
		accessorID := strings.TrimSpace(r.URL.Query().Get("accessor_id"))
		if accessorID == "" {
			accessorID = userID
		}
		if userID != patientID && userID != accessorID {
			respond.Forbidden(w)
			return
		}

		d, err := f.Check(r.Context(), patientID, accessorID)
		if err != nil {
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, d)
	}
}

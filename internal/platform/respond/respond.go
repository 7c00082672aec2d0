// Package respond junta el writeJSON que antes vivía duplicado en cada
// handler, más el mapeo de errores de dominio a HTTP.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"patient-records-access/internal/domain/accesserr"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// Error traduce la taxonomía de accesserr. Token inválido y carrera perdida
// salen con el mismo cuerpo para no filtrar qué tokens existieron.
func Error(w http.ResponseWriter, err error) {
	status, msg := Status(err)
	JSON(w, status, errorBody{Error: msg})
}

func Status(err error) (int, string) {
	switch {
	case errors.Is(err, accesserr.ErrInvalidToken), errors.Is(err, accesserr.ErrConflict):
		return http.StatusForbidden, "invalid token"
	case errors.Is(err, accesserr.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, accesserr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, accesserr.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, accesserr.ErrRateLimited):
		return http.StatusTooManyRequests, "too many attempts"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func Unauthorized(w http.ResponseWriter) {
	JSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
}

func Forbidden(w http.ResponseWriter) {
	JSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
}

func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

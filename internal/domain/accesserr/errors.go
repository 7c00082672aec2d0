// Package accesserr define la taxonomía de errores compartida por los
// módulos de acceso (grants, permisos temporales, tokens de emergencia).
package accesserr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrInvalidToken = errors.New("invalid token")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage error")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("too many attempts")
)

// ErrTokenAlreadyUsed es lo que recibe quien pierde la carrera de canje.
// Matchea tanto ErrInvalidToken como ErrConflict.
var ErrTokenAlreadyUsed = fmt.Errorf("%w (%w: token already used)", ErrInvalidToken, ErrConflict)

func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Storage envuelve una falla de persistencia. Es idempotente: no vuelve a
// envolver algo que ya es ErrStorage.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// Passthrough deja pasar los errores de negocio tal cual y envuelve el resto
// como ErrStorage. Útil en la frontera service -> repo.
func Passthrough(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidToken):
		return err
	default:
		return Storage(err)
	}
}

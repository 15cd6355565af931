package domain

import "errors"

// Errores de dominio (sin dependencias externas).
// Los adaptadores los envuelven con %w; los llamadores usan errors.Is.
var (
	ErrNotFound      = errors.New("recurso no encontrado")
	ErrInvalidInput  = errors.New("entrada inválida")
	ErrUnauthorized  = errors.New("no autorizado")
	ErrForbidden     = errors.New("acceso denegado")
	ErrConflict      = errors.New("conflicto con el estado actual")
	ErrStorage       = errors.New("almacenamiento local no disponible")
	ErrNetwork       = errors.New("servidor no disponible")
	ErrNoCatalogData = errors.New("no hay catálogo disponible")
)

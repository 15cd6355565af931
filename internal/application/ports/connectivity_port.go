package ports

import "time"

// ConnectivityTransition cambio discreto del estado de red.
type ConnectivityTransition struct {
	Online bool
	At     time.Time
}

// Connectivity capacidad inyectada para conocer el estado de red sin flags globales.
type Connectivity interface {
	Online() bool
	// Subscribe entrega las transiciones; la función devuelta cancela la suscripción.
	Subscribe() (<-chan ConnectivityTransition, func())
}

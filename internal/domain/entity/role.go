package entity

// Roles del token. Solo admin abre y cierra sesiones; bodeguero cuenta y sincroniza.
const (
	RoleAdmin     = "admin"
	RoleBodeguero = "bodeguero"
)

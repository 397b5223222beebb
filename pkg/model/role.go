package model

// Role is the authorization scope of a caller.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleCourier  Role = "courier"
)

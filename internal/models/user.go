package models

// RoleAdmin sees and may roll back every operation-log entry; RoleUser only
// entries they authored themselves.
const RoleAdmin = "admin"
const RoleUser = "user"

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

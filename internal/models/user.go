package models

// User is the identity of a chat participant as carried in the bearer token.
// Account management itself lives outside this service.
type User struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"` // "student" or "advisor"
}

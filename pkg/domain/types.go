package domain

import (
	"strings"
	"time"
)

// Role is an ordered enumeration: Reader < Author < Admin.
type Role string

const (
	RoleReader Role = "reader"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

// Rank returns the position of the role in the hierarchy.
// Unknown roles rank below reader so they never pass a gate.
func (r Role) Rank() int {
	switch r {
	case RoleReader:
		return 1
	case RoleAuthor:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r grants the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() >= min.Rank()
}

// ParseRole maps free-form input to a role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleReader:
		return RoleReader, true
	case RoleAuthor:
		return RoleAuthor, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Roles lists all roles in ascending rank order.
func Roles() []Role {
	return []Role{RoleReader, RoleAuthor, RoleAdmin}
}

// Label returns the display name shown in templates.
func (r Role) Label() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Book struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Filename    string    `json:"-"`
	Pages       int       `json:"pages,omitempty"`
	UploadedBy  int       `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Downloads   int       `json:"downloads"`
	Views       int       `json:"views"`
}

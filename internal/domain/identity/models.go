package identity

import (
	"strings"
	"time"
)

type Role string

const (
	RoleEmployee   Role = "employee"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleEmployee:
		return RoleEmployee, nil
	case RoleSupervisor:
		return RoleSupervisor, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", ErrInvalidRole
}

// CanSupervise reports whether the role may be named as someone's supervisor.
func (r Role) CanSupervise() bool {
	return r == RoleSupervisor || r == RoleAdmin
}

type Identity struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Role         Role       `json:"role"`
	SupervisorID string     `json:"supervisorId,omitempty"`
	Active       bool       `json:"isActive"`
	TokenVersion int        `json:"-"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (i Identity) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

type NewIdentity struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	SupervisorID string
	Active       bool
}

// Patch carries optional profile changes. Supervisor and password changes
// go through org and auth respectively.
type Patch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Role      *Role
	Active    *bool
}

func (p Patch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil && p.Role == nil && p.Active == nil
}

type ListFilter struct {
	Roles      []Role
	ActiveOnly bool
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

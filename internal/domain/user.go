package domain

import (
	"context"
	"strings"
	"time"
)

// Role is an application role.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// User represents a registered user (collection "users").
// swagger:model User
type User struct {
	ID        string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	PushToken string    `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser returns a new User with the given fields.
func NewUser(id, email, name string, role Role, createdAt, updatedAt time.Time) *User {
	if role == "" {
		role = RoleStudent
	}
	return &User{
		ID:        id,
		Email:     email,
		Name:      name,
		Role:      role,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// DisplayName returns the name shown to organizers, falling back to the email.
func (u *User) DisplayName() string {
	if n := strings.TrimSpace(u.Name); n != "" {
		return n
	}
	return u.Email
}

// Principal is the authenticated caller of an API request.
type Principal struct {
	UserID string
	Roles  []string
}

// IsAdmin reports whether the principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == string(RoleAdmin) {
			return true
		}
	}
	return false
}

// TokenIssuer issues tokens (e.g. JWT) for an authenticated user.
type TokenIssuer interface {
	Issue(userID, email string, roles []string, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a bearer token and returns the authenticated principal.
type TokenVerifier interface {
	Verify(token string) (*Principal, error)
}

// UserRepository defines the interface for user storage
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	ListByIDs(ctx context.Context, ids []string) ([]*User, error)
}

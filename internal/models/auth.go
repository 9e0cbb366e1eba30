package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin  UserRole = "SUPERADMIN"
	RoleAdmin       UserRole = "ADMIN"
	RoleCoordinator UserRole = "COORDINATOR"
	RoleTrainer     UserRole = "TRAINER"
	RoleAccountant  UserRole = "ACCOUNTANT"
)

// JWTClaims represents the access token payload issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor identifies who performed a mutation, for activity and audit attribution.
type Actor struct {
	UserID   string   `json:"user_id,omitempty"`
	UserName string   `json:"user_name,omitempty"`
	Role     UserRole `json:"role,omitempty"`
}

// Actor converts token claims into an Actor.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	name := c.FullName
	if name == "" {
		name = c.Email
	}
	return Actor{UserID: c.UserID, UserName: name, Role: c.Role}
}

// CanOverride reports whether the actor may force a status change outside the transition table.
func (a Actor) CanOverride() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// UserIDPtr returns nil for anonymous actors.
func (a Actor) UserIDPtr() *string {
	if a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}

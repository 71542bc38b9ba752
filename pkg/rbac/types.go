package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the single tenant-scoped role carried by a membership
type Role string

const (
	RoleOwner    Role = "owner"
	RoleManager  Role = "manager"
	RoleAuditor  Role = "auditor"
	RoleObserver Role = "observer"
)

// PermissionLevel is a point on the permission ladder
type PermissionLevel int

const (
	// LevelNone is the level of a user with no membership and no grants
	LevelNone    PermissionLevel = 0
	LevelView    PermissionLevel = 1
	LevelInput   PermissionLevel = 2
	LevelApprove PermissionLevel = 3
	LevelManage  PermissionLevel = 4
	LevelAdmin   PermissionLevel = 5
)

var (
	// ErrInvalidRole is returned when a role name is not in the catalog
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidLevel is returned when a permission level is outside 1..5
	ErrInvalidLevel = errors.New("invalid permission level")
)

var roleLevels = map[Role]PermissionLevel{
	RoleOwner:    LevelAdmin,
	RoleManager:  LevelManage,
	RoleAuditor:  LevelInput,
	RoleObserver: LevelView,
}

var levelNames = map[PermissionLevel]string{
	LevelNone:    "none",
	LevelView:    "view",
	LevelInput:   "input",
	LevelApprove: "approve",
	LevelManage:  "manage",
	LevelAdmin:   "admin",
}

// Roles returns the catalog ordered from highest to lowest level
func Roles() []Role {
	return []Role{RoleOwner, RoleManager, RoleAuditor, RoleObserver}
}

// ParseRole converts a role name into a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether the role is part of the catalog
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the role's numeric level, or LevelNone for unknown roles
func (r Role) Level() PermissionLevel {
	return roleLevels[r]
}

// Satisfies reports whether the role's level meets the required permission level
func (r Role) Satisfies(required PermissionLevel) bool {
	return r.Valid() && r.Level() >= required
}

// OneOf reports whether the role is in the given set
func (r Role) OneOf(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseLevel validates an integer permission level in 1..5
func ParseLevel(n int) (PermissionLevel, error) {
	l := PermissionLevel(n)
	if !l.Valid() {
		return LevelNone, fmt.Errorf("%w: %d", ErrInvalidLevel, n)
	}
	return l, nil
}

// Valid reports whether the level is one a permission can require
func (l PermissionLevel) Valid() bool {
	return l >= LevelView && l <= LevelAdmin
}

func (l PermissionLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// RoleForLevel returns the catalog role whose level equals l.
// LevelApprove has no role and reports false.
func RoleForLevel(l PermissionLevel) (Role, bool) {
	for role, level := range roleLevels {
		if level == l {
			return role, true
		}
	}
	return "", false
}

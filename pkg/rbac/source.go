package rbac

// LevelSource describes where a user's effective level comes from.
// Implementations are RoleDerived, ExplicitGrant and NoAccess.
type LevelSource interface {
	Level() PermissionLevel
	Kind() string
	isLevelSource()
}

// RoleDerived is a level taken from the membership role
type RoleDerived struct {
	Role Role
}

func (s RoleDerived) Level() PermissionLevel { return s.Role.Level() }
func (s RoleDerived) Kind() string           { return "role" }
func (RoleDerived) isLevelSource()           {}

// ExplicitGrant is a level taken from per-user grants, which override the role
type ExplicitGrant struct {
	Levels []PermissionLevel
}

// Level returns the highest grant
func (s ExplicitGrant) Level() PermissionLevel {
	max := LevelNone
	for _, l := range s.Levels {
		if l > max {
			max = l
		}
	}
	return max
}

func (s ExplicitGrant) Kind() string { return "explicit_grant" }
func (ExplicitGrant) isLevelSource() {}

// NoAccess is the source for users without membership or grants
type NoAccess struct{}

func (NoAccess) Level() PermissionLevel { return LevelNone }
func (NoAccess) Kind() string           { return "none" }
func (NoAccess) isLevelSource()         {}

// ResolveLevel is the one place that decides which source applies.
// Grants win over the role when at least one exists.
func ResolveLevel(s Snapshot) LevelSource {
	if len(s.Grants) > 0 {
		levels := make([]PermissionLevel, len(s.Grants))
		copy(levels, s.Grants)
		return ExplicitGrant{Levels: levels}
	}
	if s.Member && s.Role.Valid() {
		return RoleDerived{Role: s.Role}
	}
	return NoAccess{}
}

// Snapshot is the authorization-relevant state of one (tenant, user) pair
type Snapshot struct {
	Member bool              `json:"member"`
	Role   Role              `json:"role,omitempty"`
	Grants []PermissionLevel `json:"grants,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	if s.Grants != nil {
		s.Grants = append([]PermissionLevel(nil), s.Grants...)
	}
	return s
}

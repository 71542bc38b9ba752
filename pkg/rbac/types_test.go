package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleLevels(t *testing.T) {
	assert.Equal(t, LevelAdmin, RoleOwner.Level())
	assert.Equal(t, LevelManage, RoleManager.Level())
	assert.Equal(t, LevelInput, RoleAuditor.Level())
	assert.Equal(t, LevelView, RoleObserver.Level())
	assert.Equal(t, LevelNone, Role("guest").Level())
}

func TestRoleSatisfies(t *testing.T) {
	for _, role := range Roles() {
		for l := LevelView; l <= LevelAdmin; l++ {
			assert.Equal(t, role.Level() >= l, role.Satisfies(l), "%s vs %s", role, l)
		}
	}
	assert.False(t, Role("guest").Satisfies(LevelView))
}

func TestRoles_OrderedDescending(t *testing.T) {
	roles := Roles()
	require.Len(t, roles, 4)
	for i := 1; i < len(roles); i++ {
		assert.Greater(t, roles[i-1].Level(), roles[i].Level())
	}
}

func TestParseRole(t *testing.T) {
	t.Run("valid with mixed case", func(t *testing.T) {
		r, err := ParseRole(" Manager ")
		require.NoError(t, err)
		assert.Equal(t, RoleManager, r)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := ParseRole("admin")
		assert.ErrorIs(t, err, ErrInvalidRole)
	})
}

func TestParseLevel(t *testing.T) {
	for n := 1; n <= 5; n++ {
		l, err := ParseLevel(n)
		require.NoError(t, err)
		assert.Equal(t, PermissionLevel(n), l)
	}
	for _, n := range []int{-1, 0, 6} {
		_, err := ParseLevel(n)
		assert.ErrorIs(t, err, ErrInvalidLevel)
	}
}

func TestRoleForLevel_ApproveHasNoRole(t *testing.T) {
	_, ok := RoleForLevel(LevelApprove)
	assert.False(t, ok)

	r, ok := RoleForLevel(LevelManage)
	assert.True(t, ok)
	assert.Equal(t, RoleManager, r)
}

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		name     string
		snap     Snapshot
		wantKind string
		want     PermissionLevel
	}{
		{"non member", Snapshot{}, "none", LevelNone},
		{"role derived", Snapshot{Member: true, Role: RoleAuditor}, "role", LevelInput},
		{"grant raises auditor", Snapshot{Member: true, Role: RoleAuditor, Grants: []PermissionLevel{LevelApprove}}, "explicit_grant", LevelApprove},
		{"grant lowers manager", Snapshot{Member: true, Role: RoleManager, Grants: []PermissionLevel{LevelView}}, "explicit_grant", LevelView},
		{"max of grants", Snapshot{Member: true, Role: RoleObserver, Grants: []PermissionLevel{LevelInput, LevelManage, LevelView}}, "explicit_grant", LevelManage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := ResolveLevel(tt.snap)
			assert.Equal(t, tt.wantKind, src.Kind())
			assert.Equal(t, tt.want, src.Level())
		})
	}
}

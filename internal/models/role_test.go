package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_AtLeast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		role Role
		min  Role
		want bool
	}{
		{name: "user vs user", role: RoleUser, min: RoleUser, want: true},
		{name: "user vs admin", role: RoleUser, min: RoleAdmin, want: false},
		{name: "moderator vs admin", role: RoleModerator, min: RoleAdmin, want: false},
		{name: "admin vs admin", role: RoleAdmin, min: RoleAdmin, want: true},
		{name: "super_admin vs admin", role: RoleSuperAdmin, min: RoleAdmin, want: true},
		{name: "unknown role", role: Role("root"), min: RoleUser, want: false},
		{name: "unknown min", role: RoleSuperAdmin, min: Role("owner"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.role.AtLeast(tt.min))
		})
	}
}

func TestRole_Valid(t *testing.T) {
	t.Parallel()

	for _, r := range []Role{RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Role("superuser").Valid())
	assert.False(t, Role("").Valid())
}

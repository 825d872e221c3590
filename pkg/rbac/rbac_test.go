package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	cases := []struct {
		name       string
		role       string
		permission string
		want       bool
	}{
		{"admin can write mail settings", RoleAdmin, PermissionWriteMailSettings, true},
		{"admin can run scheduler", RoleAdmin, PermissionRunScheduler, true},
		{"editor can run scheduler", RoleEditor, PermissionRunScheduler, true},
		{"editor cannot write mail settings", RoleEditor, PermissionWriteMailSettings, false},
		{"editor cannot read mail settings", RoleEditor, PermissionReadMailSettings, false},
		{"unknown role has nothing", "viewer", PermissionReadNotifications, false},
		{"empty role has nothing", "", PermissionRunScheduler, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HasPermission(tc.role, tc.permission))
		})
	}
}

func TestCheckPermission(t *testing.T) {
	require.NoError(t, CheckPermission(RoleAdmin, PermissionWriteMailSettings))

	err := CheckPermission(RoleEditor, PermissionWriteMailSettings)
	require.Error(t, err)
	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, RoleEditor, denied.Role)
	assert.Equal(t, PermissionWriteMailSettings, denied.Permission)
}

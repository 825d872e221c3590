package rbac

// 权限常量
const (
	// 敏感操作权限
	PermissionRunScheduler      = "scheduler:run"
	PermissionWriteMailSettings = "mail_settings:write"

	// 普通操作权限
	PermissionReadMailSettings  = "mail_settings:read"
	PermissionReadNotifications = "notifications:read"
)

// 角色常量
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleEditor: {
		PermissionRunScheduler,
		PermissionReadNotifications,
	},
	RoleAdmin: {
		PermissionRunScheduler,
		PermissionReadNotifications,
		PermissionReadMailSettings,
		PermissionWriteMailSettings,
	},
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色权限，返回错误便于 handler 处理
func CheckPermission(role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}

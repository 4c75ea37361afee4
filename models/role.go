package models

// Role 代表使用者在市集中的角色
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

var roles = map[Role]struct{}{
	RoleAdmin:  {},
	RoleBuyer:  {},
	RoleSeller: {},
}

// ParseRole 將字串轉換為 Role，無法識別時返回 false
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roles[r]
	return r, ok
}

// In 檢查角色是否屬於允許的角色集合
func (r Role) In(allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

package authz

import "fmt"

// 预置角色
const (
	RoleViewer     = "viewer"
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
)

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 预置角色矩阵：viewer 只读，operator 负责上托盘/移动/锁定/发运，supervisor 负责删除与批量维护
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: RoleViewer,
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
			},
		},
		{
			Role:     RoleOperator,
			Inherits: []string{RoleViewer},
			Policies: []Policy{
				{Object: "/admin/pallets", Action: "POST"},
				{Object: "/admin/pallets/move", Action: "POST"},
				{Object: "/admin/pallets/assign", Action: "POST"},
				{Object: "/admin/pallets/:number/lock", Action: "PUT"},
				{Object: "/admin/pallets/:number/release", Action: "POST"},
				{Object: "/admin/systems", Action: "POST"},
				{Object: "/admin/systems/:service_tag/doa", Action: "PUT"},
			},
		},
		{
			Role:     RoleSupervisor,
			Inherits: []string{RoleOperator},
			Policies: []Policy{
				{Object: "/admin/pallets/:number", Action: "DELETE"},
				{Object: "/admin/pallets/shapes/repair", Action: "POST"},
				{Object: "/admin/systems/doa/import", Action: "POST"},
				{Object: "/admin/operators/:id/roles", Action: "PUT"},
			},
		},
	}
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略，可重复执行
func (s *Service) BootstrapBuiltinRoles() error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, seed := range BuiltinRoleSeeds() {
		role, err := s.EnsureRole(seed.Role)
		if err != nil {
			return err
		}
		for _, parent := range seed.Inherits {
			parentRole, err := NormalizeRole(parent)
			if err != nil {
				return err
			}
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole); err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
		}
		for _, policy := range seed.Policies {
			if err := s.GrantRolePolicy(role, policy.Object, policy.Action); err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
		}
	}
	return nil
}

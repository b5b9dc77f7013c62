package authz

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func mustEnforce(t *testing.T, svc *Service, operatorID uint, obj, act string) bool {
	t.Helper()
	allow, err := svc.EnforceOperator(operatorID, obj, act)
	if err != nil {
		t.Fatalf("enforce %s %s failed: %v", act, obj, err)
	}
	return allow
}

func TestBuiltinRoleMatrix(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap should be repeatable: %v", err)
	}
	roles, err := svc.ListRoles()
	if err != nil {
		t.Fatalf("list roles failed: %v", err)
	}
	if strings.Join(roles, ",") != "role:operator,role:supervisor,role:viewer" {
		t.Fatalf("unexpected roles %v", roles)
	}

	if err := svc.SetOperatorRoles(1, []string{RoleViewer}); err != nil {
		t.Fatalf("set viewer failed: %v", err)
	}
	if err := svc.SetOperatorRoles(2, []string{RoleOperator}); err != nil {
		t.Fatalf("set operator failed: %v", err)
	}
	if err := svc.SetOperatorRoles(3, []string{RoleSupervisor}); err != nil {
		t.Fatalf("set supervisor failed: %v", err)
	}

	const palletPath = "/api/v1/admin/pallets/PALLET-20250601-001"
	if !mustEnforce(t, svc, 1, "/api/v1/admin/pallets", "GET") {
		t.Fatalf("viewer should read pallets")
	}
	if mustEnforce(t, svc, 1, "/api/v1/admin/pallets/move", "POST") {
		t.Fatalf("viewer must not move systems")
	}
	if !mustEnforce(t, svc, 2, "/api/v1/admin/pallets/move", "POST") {
		t.Fatalf("operator should move systems")
	}
	if !mustEnforce(t, svc, 2, palletPath+"/release", "POST") {
		t.Fatalf("operator should release pallets")
	}
	if mustEnforce(t, svc, 2, palletPath, "DELETE") {
		t.Fatalf("operator must not delete pallets")
	}
	if !mustEnforce(t, svc, 3, palletPath, "DELETE") {
		t.Fatalf("supervisor should delete pallets")
	}
	if !mustEnforce(t, svc, 3, "/admin/pallets", "GET") {
		t.Fatalf("supervisor inherits read access")
	}
}

func TestSetOperatorRolesOverride(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("dock", "/admin/pallets", "POST"); err != nil {
		t.Fatalf("grant dock policy failed: %v", err)
	}
	if err := svc.GrantRolePolicy("audit", "/admin/audit-logs", "GET"); err != nil {
		t.Fatalf("grant audit policy failed: %v", err)
	}
	if err := svc.SetOperatorRoles(5, []string{"dock"}); err != nil {
		t.Fatalf("set first role failed: %v", err)
	}
	if err := svc.SetOperatorRoles(5, []string{"audit"}); err != nil {
		t.Fatalf("set second role failed: %v", err)
	}
	roles, err := svc.GetOperatorRoles(5)
	if err != nil || len(roles) != 1 || roles[0] != "role:audit" {
		t.Fatalf("roles want [role:audit], got=%v err=%v", roles, err)
	}
	if mustEnforce(t, svc, 5, "/admin/pallets", "POST") {
		t.Fatalf("expected old role permission removed")
	}
	policies, err := svc.GetOperatorPolicies(5)
	if err != nil || len(policies) != 1 || policies[0].Object != "/admin/audit-logs" {
		t.Fatalf("unexpected policies %+v err=%v", policies, err)
	}
}

func TestNormalizeObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/admin/pallets/:number", want: "/admin/pallets/:number"},
		{in: "admin/pallets", want: "/admin/pallets"},
		{in: "/api/v1", want: "/"},
		{in: "", want: "/"},
	}
	for _, item := range cases {
		if got := NormalizeObject(item.in); got != item.want {
			t.Fatalf("normalize object failed, in=%q want=%q got=%q", item.in, item.want, got)
		}
	}
}

func TestUnavailableService(t *testing.T) {
	var svc *Service
	if _, err := svc.EnforceOperator(1, "/admin/pallets", "GET"); err == nil {
		t.Fatalf("expected error from nil service")
	}
}

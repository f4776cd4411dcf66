package access_test

import (
	"testing"

	"obralink/internal/access"
)

func TestDefaultRulesetScopes(t *testing.T) {
	rules := access.DefaultRuleset()
	cases := []struct {
		role access.Role
		want access.Scope
	}{
		{access.RoleGerente, access.ScopeAll},
		{access.RolePMO, access.ScopeAll},
		{access.RoleCoordinador, access.ScopeCoordinator},
		{access.RoleSupervisor, access.ScopeSupervisor},
		{access.RoleEmpleado, access.ScopeNone},
		{access.Role("DESCONOCIDO"), access.ScopeNone},
	}
	for _, tc := range cases {
		if got := rules.ProjectScope(tc.role); got != tc.want {
			t.Errorf("%s scope = %s, want %s", tc.role, got, tc.want)
		}
	}
}

func TestDefaultRulesetCapabilities(t *testing.T) {
	rules := access.DefaultRuleset()
	if !rules.Allows(access.RoleGerente, access.CapProjectDelete) {
		t.Errorf("gerente cannot delete")
	}
	if !rules.Allows(access.RoleCoordinador, access.CapProjectCreate) {
		t.Errorf("coordinador cannot create")
	}
	if rules.Allows(access.RoleSupervisor, access.CapProjectCreate) {
		t.Errorf("supervisor can create")
	}
	if rules.Allows(access.Role("DESCONOCIDO"), access.CapAuditRead) {
		t.Errorf("unknown role has capabilities")
	}
}

func TestCustomRuleset(t *testing.T) {
	rules := access.NewRuleset(map[access.Role]access.Grant{
		"CAPATAZ": {Scope: access.ScopeSupervisor, Capabilities: []access.Capability{access.CapProjectCreate}},
	})
	if rules.ProjectScope("CAPATAZ") != access.ScopeSupervisor {
		t.Fatalf("scope = %s", rules.ProjectScope("CAPATAZ"))
	}
	if !rules.Allows("CAPATAZ", access.CapProjectCreate) {
		t.Fatalf("capataz cannot create")
	}
	if _, ok := rules.Grant("GERENTE"); ok {
		t.Fatalf("undeclared role has a grant")
	}
}

// Package access defines the closed role set and the capability table that
// drives project visibility. Adding a role is a data change: declare it in
// the ruleset (or in obralink.yml) with a scope and capabilities, and every
// permission check picks it up.
package access

// Role is the identity attribute carried in the bearer token's role claim.
type Role string

const (
	RoleGerente     Role = "GERENTE"
	RolePMO         Role = "PMO"
	RoleCoordinador Role = "COORDINADOR"
	RoleSupervisor  Role = "SUPERVISOR"
	RoleEmpleado    Role = "EMPLEADO"
)

// Scope tells which projects a role may see.
type Scope string

const (
	// ScopeAll grants blanket visibility over every project.
	ScopeAll Scope = "all"
	// ScopeCoordinator limits visibility to projects whose coordinatorId
	// matches the caller.
	ScopeCoordinator Scope = "coordinator"
	// ScopeSupervisor limits visibility to projects whose supervisorId
	// matches the caller.
	ScopeSupervisor Scope = "supervisor"
	// ScopeNone grants no project visibility at all.
	ScopeNone Scope = "none"
)

type Capability string

const (
	CapProjectCreate Capability = "project.create"
	CapProjectDelete Capability = "project.delete"
	CapAuditRead     Capability = "audit.read"
)

// Grant is one role's entry in the ruleset.
type Grant struct {
	Scope        Scope
	Capabilities []Capability
}

// Ruleset maps roles to scopes and capabilities.
type Ruleset struct {
	grants map[Role]Grant
}

// NewRuleset builds a Ruleset from explicit grants. Unknown roles resolve
// to ScopeNone with no capabilities.
func NewRuleset(grants map[Role]Grant) Ruleset {
	copied := make(map[Role]Grant, len(grants))
	for r, g := range grants {
		copied[r] = g
	}
	return Ruleset{grants: copied}
}

// DefaultRuleset returns the built-in role table.
func DefaultRuleset() Ruleset {
	return NewRuleset(map[Role]Grant{
		RoleGerente: {
			Scope:        ScopeAll,
			Capabilities: []Capability{CapProjectCreate, CapProjectDelete, CapAuditRead},
		},
		RolePMO: {
			Scope:        ScopeAll,
			Capabilities: []Capability{CapProjectCreate, CapProjectDelete, CapAuditRead},
		},
		RoleCoordinador: {
			Scope:        ScopeCoordinator,
			Capabilities: []Capability{CapProjectCreate},
		},
		RoleSupervisor: {
			Scope: ScopeSupervisor,
		},
		RoleEmpleado: {
			Scope: ScopeNone,
		},
	})
}

// Grant returns the grant declared for a role.
func (rs Ruleset) Grant(role Role) (Grant, bool) {
	g, ok := rs.grants[role]
	return g, ok
}

// ProjectScope returns the visibility scope for a role.
func (rs Ruleset) ProjectScope(role Role) Scope {
	g, ok := rs.grants[role]
	if !ok {
		return ScopeNone
	}
	if g.Scope == "" {
		return ScopeNone
	}
	return g.Scope
}

// Allows reports whether a role holds a capability.
func (rs Ruleset) Allows(role Role, cap Capability) bool {
	g, ok := rs.grants[role]
	if !ok {
		return false
	}
	for _, c := range g.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Roles lists the roles declared in the ruleset.
func (rs Ruleset) Roles() []Role {
	roles := make([]Role, 0, len(rs.grants))
	for r := range rs.grants {
		roles = append(roles, r)
	}
	return roles
}

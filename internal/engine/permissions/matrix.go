// Package permissions holds the role → action capability table used to
// authorize WhatsApp actions. The table is fixed at build time.
package permissions

type Role string

const (
	RoleVereador      Role = "vereador"
	RoleChefeGabinete Role = "chefe_gabinete"
	RoleAssessor      Role = "assessor"
	RoleEstagiario    Role = "estagiario"
)

// DefaultRole is assumed for bindings created without a cargo.
const DefaultRole = RoleAssessor

type Action string

const (
	CreateVoter      Action = "create_voter"
	CreateCase       Action = "create_case"
	CreateIdea       Action = "create_idea"
	CreateIndication Action = "create_indication"
	CreateEvent      Action = "create_event"
	ListEvents       Action = "list_events"
)

// Version changes whenever the matrix below changes.
const Version = "2025-01"

// AllActions lists every action; each role row must decide every one of them.
var AllActions = []Action{CreateVoter, CreateCase, CreateIdea, CreateIndication, CreateEvent, ListEvents}

var matrix = map[Role]map[Action]bool{
	RoleVereador: {
		CreateVoter: true, CreateCase: true, CreateIdea: true,
		CreateIndication: true, CreateEvent: true, ListEvents: true,
	},
	RoleChefeGabinete: {
		CreateVoter: true, CreateCase: true, CreateIdea: true,
		CreateIndication: true, CreateEvent: true, ListEvents: true,
	},
	RoleAssessor: {
		CreateVoter: true, CreateCase: true, CreateIdea: true,
		CreateIndication: false, CreateEvent: false, ListEvents: true,
	},
	RoleEstagiario: {
		CreateVoter: true, CreateCase: true, CreateIdea: false,
		CreateIndication: false, CreateEvent: false, ListEvents: true,
	},
}

// Allowed reports whether role may perform action. Unknown roles and
// unknown actions are denied.
func Allowed(role Role, action Action) bool {
	return matrix[role][action]
}

// Actions returns a copy of the actions granted to role.
func Actions(role Role) []Action {
	var granted []Action
	for _, a := range AllActions {
		if matrix[role][a] {
			granted = append(granted, a)
		}
	}
	return granted
}

func Roles() []Role {
	return []Role{RoleVereador, RoleChefeGabinete, RoleAssessor, RoleEstagiario}
}

func ValidRole(r Role) bool {
	_, ok := matrix[r]
	return ok
}

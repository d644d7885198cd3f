package gateway

import "encoding/json"

type Kind int

const (
	OK Kind = iota
	Unauthenticated
	Validation
	IdentityNotFound
	Forbidden
	Internal
	NotFound
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Unauthenticated:
		return "unauthenticated"
	case Validation:
		return "validation"
	case IdentityNotFound:
		return "identity_not_found"
	case Forbidden:
		return "forbidden"
	case Internal:
		return "internal"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Status is the HTTP status each kind is answered with.
func (k Kind) Status() int {
	switch k {
	case OK:
		return 200
	case Unauthenticated:
		return 401
	case Validation:
		return 400
	case IdentityNotFound, NotFound:
		return 404
	case Forbidden:
		return 403
	default:
		return 500
	}
}

// Cacheable reports whether the outcome is stable enough to be replayed
// for the same idempotency key. Routing 404s never reach the store.
func (k Kind) Cacheable() bool {
	return k == OK || k == IdentityNotFound || k == Forbidden
}

const (
	MessageForbidden = "Seu cargo não permite esta ação."
	MessageInternal  = "Erro interno do servidor"
	ActionRegister   = "ask_to_register_or_update_number"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action,omitempty"`
}

func encode(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"INTERNAL","message":"Erro interno do servidor"}`)
	}
	return b
}

// ErrorBody renders the machine-readable body for a failure kind.
func ErrorBody(k Kind, message string) []byte {
	switch k {
	case Unauthenticated:
		return encode(errorBody{Error: "UNAUTHENTICATED"})
	case Validation:
		return encode(errorBody{Error: "VALIDATION", Message: message})
	case IdentityNotFound:
		return encode(errorBody{Error: "USER_NOT_FOUND_OR_NOT_LINKED", Action: ActionRegister})
	case Forbidden:
		return encode(errorBody{Error: "FORBIDDEN_BY_ROLE", Message: MessageForbidden})
	case NotFound:
		return encode(errorBody{Error: "NOT_FOUND"})
	default:
		return encode(errorBody{Error: "INTERNAL", Message: MessageInternal})
	}
}

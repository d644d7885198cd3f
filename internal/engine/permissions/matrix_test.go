package permissions

import "testing"

func TestAllowed(t *testing.T) {
	want := map[Role][]Action{
		RoleVereador:      {CreateVoter, CreateCase, CreateIdea, CreateIndication, CreateEvent, ListEvents},
		RoleChefeGabinete: {CreateVoter, CreateCase, CreateIdea, CreateIndication, CreateEvent, ListEvents},
		RoleAssessor:      {CreateVoter, CreateCase, CreateIdea, ListEvents},
		RoleEstagiario:    {CreateVoter, CreateCase, ListEvents},
	}

	for role, granted := range want {
		set := map[Action]bool{}
		for _, a := range granted {
			set[a] = true
		}
		for _, action := range AllActions {
			t.Run(string(role)+"/"+string(action), func(t *testing.T) {
				if got := Allowed(role, action); got != set[action] {
					t.Errorf("Allowed(%s, %s) = %v, want %v", role, action, got, set[action])
				}
			})
		}
	}
}

func TestUnknownRoleGetsNothing(t *testing.T) {
	for _, action := range AllActions {
		if Allowed("prefeito", action) {
			t.Errorf("unknown role allowed %s", action)
		}
		if Allowed("", action) {
			t.Errorf("empty role allowed %s", action)
		}
	}
	if Allowed(RoleVereador, "delete_everything") {
		t.Error("unknown action allowed")
	}
}

func TestEveryRoleDecidesEveryAction(t *testing.T) {
	for role, row := range matrix {
		for _, action := range AllActions {
			if _, ok := row[action]; !ok {
				t.Errorf("role %s has no explicit entry for %s", role, action)
			}
		}
		if len(row) != len(AllActions) {
			t.Errorf("role %s has %d entries, want %d", role, len(row), len(AllActions))
		}
	}
}

func TestActionsReturnsCopy(t *testing.T) {
	got := Actions(RoleEstagiario)
	if len(got) != 3 {
		t.Fatalf("Actions(estagiario) = %v", got)
	}
	got[0] = CreateIndication
	if Allowed(RoleEstagiario, CreateIndication) {
		t.Error("mutating Actions() result changed the matrix")
	}
}

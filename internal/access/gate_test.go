package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hrassist/internal/model"
)

func TestRoleGate(t *testing.T) {
	tests := []struct {
		name       string
		gate       RoleGate
		namespace  string
		visibility string
		want       bool
	}{
		{"employee sees public", RoleGate{"acme", RoleEmployee}, "acme", model.VisibilityPublic, true},
		{"employee sees internal", RoleGate{"acme", RoleEmployee}, "acme", model.VisibilityInternal, true},
		{"employee blocked from private", RoleGate{"acme", RoleEmployee}, "acme", model.VisibilityPrivate, false},
		{"manager blocked from private", RoleGate{"acme", RoleManager}, "acme", model.VisibilityPrivate, false},
		{"hr sees private", RoleGate{"acme", RoleHR}, "acme", model.VisibilityPrivate, true},
		{"admin sees private", RoleGate{"acme", RoleAdmin}, "acme", model.VisibilityPrivate, true},
		{"cross namespace always blocked", RoleGate{"acme", RoleAdmin}, "globex", model.VisibilityPublic, false},
		{"empty role blocked from internal", RoleGate{"acme", ""}, "acme", model.VisibilityInternal, false},
		{"empty role sees public", RoleGate{"acme", ""}, "acme", model.VisibilityPublic, true},
		{"unknown visibility blocked", RoleGate{"acme", RoleAdmin}, "acme", "secret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.gate.CanAccess(tt.namespace, tt.visibility))
		})
	}
}

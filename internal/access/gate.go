// Package access implements the visibility gate consulted before a passage
// may appear in retrieval results. The authentication system itself is
// external; this package only maps an authenticated requester's claims to a
// yes/no per document visibility.
package access

import "hrassist/internal/model"

const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleHR       = "hr"
	RoleAdmin    = "admin"
)

// Gate reports whether the requester may see content of the given
// visibility within the namespace.
type Gate interface {
	CanAccess(namespace, visibility string) bool
}

// RoleGate gates on the requester's namespace membership and role. Private
// documents are restricted to HR and admin roles; internal documents to any
// authenticated member; public documents to everyone in the namespace.
type RoleGate struct {
	Namespace string
	Role      string
}

func (g RoleGate) CanAccess(namespace, visibility string) bool {
	if namespace != g.Namespace {
		return false
	}
	switch visibility {
	case model.VisibilityPublic:
		return true
	case model.VisibilityInternal:
		return g.Role != ""
	case model.VisibilityPrivate:
		return g.Role == RoleHR || g.Role == RoleAdmin
	default:
		return false
	}
}

package rbac

import (
	"context"
	"strings"
)

// Checker answers permission questions against a role policy. A granted
// permission of "*" matches everything; "enrollment:*" matches every
// permission in the enrollment namespace.
type Checker struct {
	RolePermissions map[string][]string
}

func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

func (c *Checker) Has(role, perm string) bool {
	for _, granted := range c.RolePermissions[role] {
		if grants(granted, perm) {
			return true
		}
	}
	return false
}

// Any reports whether role holds at least one of perms.
func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func grants(granted, perm string) bool {
	if granted == "*" || granted == perm {
		return true
	}
	ns, ok := strings.CutSuffix(granted, ":*")
	return ok && strings.HasPrefix(perm, ns+":")
}

// ---- role in context ----

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(roleKey{}).(string)
	return s
}

package rbac

import (
	"context"
	"strings"
)

// Policy maps a role to the permissions it is granted. A grant may be "*"
// or end in "*" to cover a whole prefix ("attempt:view-*").
type Policy map[string][]string

// Allows reports whether role holds perm.
func (p Policy) Allows(role, perm string) bool {
	for _, g := range p[role] {
		if granted(g, perm) {
			return true
		}
	}
	return false
}

func (p Policy) AllowsAny(role string, perms ...string) bool {
	for _, perm := range perms {
		if p.Allows(role, perm) {
			return true
		}
	}
	return false
}

func granted(grant, perm string) bool {
	if grant == "*" || grant == perm {
		return true
	}
	prefix, wild := strings.CutSuffix(grant, "*")
	return wild && strings.HasPrefix(perm, prefix)
}

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}

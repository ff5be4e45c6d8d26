package policy

import (
	"slices"

	"opsreport/pkg/domain"
)

// Router decides the approval path of a submission: its initial status, who
// may resolve it at each pending status, and whether a role needs approval
// at all. A Router is immutable after construction and safe for concurrent use.
type Router struct {
	resolvers        map[domain.ApprovalStatus][]domain.Role
	approvalRequired map[domain.Role]bool
}

// DefaultResolvers returns the resolver table used when no policy file overrides it.
func DefaultResolvers() map[domain.ApprovalStatus][]domain.Role {
	return map[domain.ApprovalStatus][]domain.Role{
		domain.StatusPending:              {domain.RoleAdmin, domain.RolePlanner},
		domain.StatusPendingAdminApproval: {domain.RoleAdmin},
	}
}

// DefaultApprovalRequired returns the roles whose mutations are gated by approval.
func DefaultApprovalRequired() []domain.Role {
	return []domain.Role{domain.RoleInputter}
}

// NewRouter builds a router with the default tables.
func NewRouter() *Router {
	r, _ := newRouter(DefaultResolvers(), DefaultApprovalRequired())
	return r
}

func newRouter(resolvers map[domain.ApprovalStatus][]domain.Role, required []domain.Role) (*Router, error) {
	r := &Router{
		resolvers:        make(map[domain.ApprovalStatus][]domain.Role, len(resolvers)),
		approvalRequired: make(map[domain.Role]bool, len(required)),
	}
	for status, roles := range resolvers {
		if !status.IsPending() {
			return nil, domain.Invalid("resolvers", "only pending statuses can have resolvers, got "+string(status))
		}
		for _, role := range roles {
			if !role.Valid() {
				return nil, domain.Invalid("resolvers", "unknown role "+string(role))
			}
		}
		if len(roles) == 0 {
			return nil, domain.Invalid("resolvers", "status "+string(status)+" needs at least one resolver")
		}
		r.resolvers[status] = slices.Clone(roles)
	}
	for _, role := range required {
		if !role.Valid() {
			return nil, domain.Invalid("approval_required", "unknown role "+string(role))
		}
		r.approvalRequired[role] = true
	}
	return r, nil
}

// InitialStatus returns the status a new request submitted by role starts in.
// Planner submissions escalate straight to administrator sign-off.
func (r *Router) InitialStatus(role domain.Role) domain.ApprovalStatus {
	if role == domain.RolePlanner {
		return domain.StatusPendingAdminApproval
	}
	return domain.StatusPending
}

// ResolverRoles lists the roles allowed to resolve a request in status.
// Terminal statuses have no resolvers.
func (r *Router) ResolverRoles(status domain.ApprovalStatus) []domain.Role {
	return slices.Clone(r.resolvers[status])
}

// CanResolve reports whether p may resolve a request currently in status.
func (r *Router) CanResolve(p domain.Principal, status domain.ApprovalStatus) bool {
	return slices.Contains(r.resolvers[status], p.Role)
}

// IsResolver reports whether role may resolve requests in any pending status.
func (r *Router) IsResolver(role domain.Role) bool {
	for _, roles := range r.resolvers {
		if slices.Contains(roles, role) {
			return true
		}
	}
	return false
}

// RequireResolve is the guard form of CanResolve.
func (r *Router) RequireResolve(p domain.Principal, status domain.ApprovalStatus) error {
	if r.CanResolve(p, status) {
		return nil
	}
	if status == domain.StatusPendingAdminApproval {
		return domain.Denied("requests awaiting admin approval can only be resolved by an administrator")
	}
	return domain.Denied("role %s cannot resolve %s requests", p.Role, status)
}

// RequiresApproval reports whether mutations submitted by role must go
// through an approval request instead of applying directly.
func (r *Router) RequiresApproval(role domain.Role) bool {
	return r.approvalRequired[role]
}

// Package policy holds the pure authorization decisions of the approval
// engine: which principal may touch which department or record, and how a
// submission is routed through the approval chain.
package policy

import "opsreport/pkg/domain"

// CanAccessDepartment reports whether p may read resources owned by dept.
// Planners are confined to their own department; a planner without one is
// denied everywhere.
func CanAccessDepartment(p domain.Principal, dept int64) bool {
	switch p.Role {
	case domain.RoleAdmin, domain.RoleInputter, domain.RoleViewer:
		return true
	case domain.RolePlanner:
		return p.InDepartment(dept)
	}
	return false
}

// CanCreateInDepartment applies the access rule but excludes read-only viewers.
func CanCreateInDepartment(p domain.Principal, dept int64) bool {
	if p.Role == domain.RoleViewer {
		return false
	}
	return CanAccessDepartment(p, dept)
}

// CanModifyResource reports whether p may change a resource owned by
// resourceDept and created by creatorID (nil when unknown).
func CanModifyResource(p domain.Principal, resourceDept int64, creatorID *int64) bool {
	switch p.Role {
	case domain.RoleAdmin:
		return true
	case domain.RolePlanner:
		return p.InDepartment(resourceDept)
	case domain.RoleInputter:
		return creatorID != nil && *creatorID == p.ID
	}
	return false
}

// CanDeleteResource reports whether p may hard-delete resources.
func CanDeleteResource(p domain.Principal) bool {
	return p.Role == domain.RoleAdmin
}

// CanReadArchive reports whether p may read archived resolutions.
func CanReadArchive(p domain.Principal) bool {
	return p.Role == domain.RoleAdmin
}

// RequireDepartmentAccess is the guard form of CanAccessDepartment.
func RequireDepartmentAccess(p domain.Principal, dept int64) error {
	if !CanAccessDepartment(p, dept) {
		return domain.Denied("access denied to department %d", dept)
	}
	return nil
}

// RequireCreateInDepartment is the guard form of CanCreateInDepartment.
func RequireCreateInDepartment(p domain.Principal, dept int64) error {
	if !CanCreateInDepartment(p, dept) {
		return domain.Denied("role %s cannot create records in department %d", p.Role, dept)
	}
	return nil
}

// RequireModifyResource is the guard form of CanModifyResource.
func RequireModifyResource(p domain.Principal, resourceDept int64, creatorID *int64) error {
	if CanModifyResource(p, resourceDept, creatorID) {
		return nil
	}
	switch p.Role {
	case domain.RoleInputter:
		return domain.Denied("inputters may only modify records they created")
	case domain.RolePlanner:
		return domain.Denied("access denied to department %d", resourceDept)
	}
	return domain.Denied("role %s cannot modify records", p.Role)
}

// RequireDeleteResource is the guard form of CanDeleteResource.
func RequireDeleteResource(p domain.Principal) error {
	if !CanDeleteResource(p) {
		return domain.Denied("only administrators can delete records")
	}
	return nil
}

// RequireReadArchive is the guard form of CanReadArchive.
func RequireReadArchive(p domain.Principal) error {
	if !CanReadArchive(p) {
		return domain.Denied("only administrators can read the resolution archive")
	}
	return nil
}

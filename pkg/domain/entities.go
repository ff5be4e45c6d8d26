// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by the opsreport approval engine.
package domain

import (
	"encoding/json"
	"time"
)

// Role identifies the privilege class of a principal.
type Role string

// Roles ordered by privilege breadth.
const (
	// RoleAdmin is unrestricted.
	RoleAdmin Role = "ADMIN"
	// RolePlanner is scoped to a single department.
	RolePlanner Role = "PLANNER"
	// RoleInputter may work across departments but is subject to approval gating.
	RoleInputter Role = "INPUTTER"
	// RoleViewer is read-only.
	RoleViewer Role = "VIEWER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePlanner, RoleInputter, RoleViewer:
		return true
	}
	return false
}

// Principal is the authenticated actor performing an operation.
type Principal struct {
	ID             int64  `json:"id"`
	Role           Role   `json:"role"`
	DepartmentID   *int64 `json:"department_id,omitempty"`
	DepartmentName string `json:"department_name,omitempty"`
}

// InDepartment reports whether the principal is affiliated with dept.
func (p Principal) InDepartment(dept int64) bool {
	return p.DepartmentID != nil && *p.DepartmentID == dept
}

// EntityType identifies the type of record stored in the domain.
type EntityType string

// Entity type identifiers used in Change records and persistence buckets.
const (
	EntityApprovalRequest    EntityType = "approval_request"
	EntityRecord             EntityType = "record"
	EntityArchivedResolution EntityType = "archived_resolution"
)

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

// Approval request statuses. PENDING and PENDING_ADMIN_APPROVAL are open,
// APPROVED and REJECTED are terminal.
const (
	StatusPending              ApprovalStatus = "PENDING"
	StatusPendingAdminApproval ApprovalStatus = "PENDING_ADMIN_APPROVAL"
	StatusApproved             ApprovalStatus = "APPROVED"
	StatusRejected             ApprovalStatus = "REJECTED"
)

// IsPending reports whether the status still awaits a decision.
func (s ApprovalStatus) IsPending() bool {
	return s == StatusPending || s == StatusPendingAdminApproval
}

// IsTerminal reports whether the status can no longer transition.
func (s ApprovalStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Rank orders statuses so that open requests sort before resolved ones.
func (s ApprovalStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusPendingAdminApproval:
		return 1
	case StatusApproved:
		return 2
	case StatusRejected:
		return 3
	}
	return 4
}

// AllStatuses lists every status in rank order.
func AllStatuses() []ApprovalStatus {
	return []ApprovalStatus{StatusPending, StatusPendingAdminApproval, StatusApproved, StatusRejected}
}

// RequestType tags the kind of mutation an approval request carries.
type RequestType string

// Request types understood by the apply engine.
const (
	RequestDataChange   RequestType = "data_change"
	RequestDataDeletion RequestType = "data_deletion"
	RequestDataCreation RequestType = "data_creation"
)

// Known reports whether the apply engine can dispatch t.
func (t RequestType) Known() bool {
	switch t {
	case RequestDataChange, RequestDataDeletion, RequestDataCreation:
		return true
	}
	return false
}

// NeedsRecord reports whether requests of type t must reference an existing record.
func (t RequestType) NeedsRecord() bool {
	return t == RequestDataChange || t == RequestDataDeletion
}

// TableName is the logical name of a target entity collection.
type TableName string

// Logical tables that approval requests may target.
const (
	TableOperationalReports TableName = "operational_reports"
	TableKTAKPIData         TableName = "kta_kpi_data"
	TableCriticalIssues     TableName = "critical_issues"
	TableSafetyIncidents    TableName = "safety_incidents"
	TableEnergyConsumption  TableName = "energy_consumption"
	TableNotifications      TableName = "notifications"
	TableOrders             TableName = "orders"
	TableMaintenanceRoutine TableName = "maintenance_routine"
)

// ApprovalRequest is a persisted proposal to mutate a target record.
type ApprovalRequest struct {
	ID            string         `json:"id"`
	RequesterID   int64          `json:"requester_id"`
	RequesterRole Role           `json:"requester_role"`
	ApproverID    *int64         `json:"approver_id"`
	Status        ApprovalStatus `json:"status"`
	RequestType   RequestType    `json:"request_type"`
	TableName     TableName      `json:"table_name"`
	RecordID      *string        `json:"record_id,omitempty"`
	DepartmentID  *int64         `json:"department_id,omitempty"`
	OldData       ChangePayload  `json:"old_data"`
	NewData       ChangePayload  `json:"new_data"`
	Reason        string         `json:"reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ApprovedAt    *time.Time     `json:"approved_at"`
}

// Record is the persisted form of a row in one of the target tables. Data
// holds the table-specific typed fields as JSON.
type Record struct {
	ID           string          `json:"id"`
	Table        TableName       `json:"table"`
	DepartmentID int64           `json:"department_id"`
	CreatedBy    *int64          `json:"created_by"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

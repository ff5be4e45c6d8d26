package core

import "opsreport/pkg/domain"

type (
	Principal          = domain.Principal
	Role               = domain.Role
	ApprovalRequest    = domain.ApprovalRequest
	ApprovalStatus     = domain.ApprovalStatus
	RequestType        = domain.RequestType
	TableName          = domain.TableName
	Record             = domain.Record
	ChangePayload      = domain.ChangePayload
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
)

const (
	EntityApprovalRequest    = domain.EntityApprovalRequest
	EntityRecord             = domain.EntityRecord
	EntityArchivedResolution = domain.EntityArchivedResolution
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

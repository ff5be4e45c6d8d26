package core

import (
	"context"
	"fmt"

	"opsreport/pkg/domain"
)

const approvalResolutionRuleName = "approval_resolution_integrity"

// ApprovalResolutionRule enforces the shape of status transitions: requests
// are created pending, and a resolved request records who decided and when.
func ApprovalResolutionRule() domain.Rule {
	return approvalResolutionRule{}
}

type approvalResolutionRule struct{}

func (approvalResolutionRule) Name() string { return approvalResolutionRuleName }

func (approvalResolutionRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityApprovalRequest {
			continue
		}
		after, ok := change.After.(domain.ApprovalRequest)
		if !ok {
			continue
		}
		if after.Status.Rank() > domain.StatusRejected.Rank() {
			res.Violations = append(res.Violations, resolutionViolation(after.ID,
				fmt.Sprintf("approval request %s has unknown status %q", after.ID, after.Status)))
			continue
		}
		switch change.Action {
		case domain.ActionCreate:
			if !after.Status.IsPending() {
				res.Violations = append(res.Violations, resolutionViolation(after.ID,
					fmt.Sprintf("approval request %s must be created pending, got %s", after.ID, after.Status)))
			}
		case domain.ActionUpdate:
			if !after.Status.IsTerminal() {
				continue
			}
			if after.ApproverID == nil || after.ApprovedAt == nil {
				res.Violations = append(res.Violations, resolutionViolation(after.ID,
					fmt.Sprintf("approval request %s resolved without approver or timestamp", after.ID)))
			}
		}
	}
	return res, nil
}

func resolutionViolation(id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     approvalResolutionRuleName,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityApprovalRequest,
		EntityID: id,
	}
}

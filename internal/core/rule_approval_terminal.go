package core

import (
	"context"
	"fmt"

	"opsreport/pkg/domain"
)

const approvalTerminalRuleName = "approval_terminal_immutable"

// ApprovalTerminalRule blocks any update that touches the decision fields of
// an approved or rejected request.
func ApprovalTerminalRule() domain.Rule {
	return approvalTerminalRule{}
}

type approvalTerminalRule struct{}

func (approvalTerminalRule) Name() string { return approvalTerminalRuleName }

func (approvalTerminalRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityApprovalRequest || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := change.Before.(domain.ApprovalRequest)
		if !ok || !before.Status.IsTerminal() {
			continue
		}
		after, ok := change.After.(domain.ApprovalRequest)
		if !ok {
			continue
		}
		if decisionChanged(before, after) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     approvalTerminalRuleName,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("approval request %s is %s and cannot change", before.ID, before.Status),
				Entity:   domain.EntityApprovalRequest,
				EntityID: before.ID,
			})
		}
	}
	return res, nil
}

func decisionChanged(before, after domain.ApprovalRequest) bool {
	if before.Status != after.Status {
		return true
	}
	if !equalInt64Ptr(before.ApproverID, after.ApproverID) {
		return true
	}
	switch {
	case before.ApprovedAt == nil && after.ApprovedAt == nil:
		return false
	case before.ApprovedAt == nil || after.ApprovedAt == nil:
		return true
	}
	return !before.ApprovedAt.Equal(*after.ApprovedAt)
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"opsreport/pkg/domain"
)

func TestDefaultRulesEngineRegistersApprovalRules(t *testing.T) {
	names := NewDefaultRulesEngine().Rules()
	if len(names) != 2 || names[0] != approvalTerminalRuleName || names[1] != approvalResolutionRuleName {
		t.Fatalf("unexpected rules %v", names)
	}
}

func TestApprovalTerminalRuleBlocksDirectTransitions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	rec := seedOwnedIssue(t, svc, inputterUser, 7, "open")
	req := fileChange(t, svc, inputterUser, rec.ID, `{"status":"closed"}`)
	if _, err := svc.ResolveApprovalRequest(ctx, adminUser, req.ID, domain.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateApprovalRequest(req.ID, func(r *ApprovalRequest) error {
			r.Status = domain.StatusApproved
			return nil
		})
		return err
	})
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if violation.Result.Violations[0].Rule != approvalTerminalRuleName {
		t.Fatalf("unexpected violation %+v", violation.Result.Violations)
	}

	if _, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateApprovalRequest(req.ID, func(r *ApprovalRequest) error {
			r.Reason = "annotated"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("non-decision fields stay editable: %v", err)
	}
}

func TestApprovalRuleEvaluation(t *testing.T) {
	approver := int64(1)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	later := at.Add(time.Hour)
	pending := domain.ApprovalRequest{ID: "a", Status: domain.StatusPending}
	approved := domain.ApprovalRequest{ID: "a", Status: domain.StatusApproved, ApproverID: &approver, ApprovedAt: &at}
	restamped := approved
	restamped.ApprovedAt = &later
	bare := domain.ApprovalRequest{ID: "a", Status: domain.StatusRejected}

	cases := []struct {
		name   string
		rule   domain.Rule
		change domain.Change
		block  bool
	}{
		{"terminal restamp", ApprovalTerminalRule(), domain.Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionUpdate, Before: approved, After: restamped}, true},
		{"terminal unchanged", ApprovalTerminalRule(), domain.Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionUpdate, Before: approved, After: approved}, false},
		{"pending resolved", ApprovalTerminalRule(), domain.Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionUpdate, Before: pending, After: approved}, false},
		{"terminal delete", ApprovalTerminalRule(), domain.Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionDelete, Before: approved}, false},
		{"other entity", ApprovalTerminalRule(), domain.Change{Entity: domain.EntityRecord, Action: domain.ActionUpdate, Before: approved, After: restamped}, false},
		{"created resolved", ApprovalResolutionRule(), domain.Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionCreate, After: approved}, true},
		{"created pending", ApprovalResolutionRule(), domain.Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionCreate, After: pending}, false},
		{"resolved without approver", ApprovalResolutionRule(), domain.Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionUpdate, Before: pending, After: bare}, true},
		{"resolved complete", ApprovalResolutionRule(), domain.Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionUpdate, Before: pending, After: approved}, false},
		{"unknown status", ApprovalResolutionRule(), domain.Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionUpdate, Before: pending, After: domain.ApprovalRequest{ID: "a", Status: "ARCHIVED"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := tc.rule.Evaluate(context.Background(), nil, []domain.Change{tc.change})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if res.HasBlocking() != tc.block {
				t.Fatalf("expected blocking=%v, got %+v", tc.block, res.Violations)
			}
		})
	}
}

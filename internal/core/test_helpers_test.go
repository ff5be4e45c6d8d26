package core

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"opsreport/pkg/domain"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

var (
	adminUser    = Principal{ID: 1, Role: domain.RoleAdmin}
	plannerDept7 = Principal{ID: 2, Role: domain.RolePlanner, DepartmentID: int64Ptr(7)}
	plannerDept8 = Principal{ID: 3, Role: domain.RolePlanner, DepartmentID: int64Ptr(8)}
	inputterUser = Principal{ID: 4, Role: domain.RoleInputter, DepartmentID: int64Ptr(7)}
	otherInput   = Principal{ID: 5, Role: domain.RoleInputter}
	viewerUser   = Principal{ID: 6, Role: domain.RoleViewer}
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(ClockFunc(func() time.Time { return fixedNow }))}, opts...)
	return NewInMemoryService(NewDefaultRulesEngine(), opts...)
}

// seedIssue creates a critical issue in dept directly as an administrator.
func seedIssue(t *testing.T, svc *Service, dept int64, status string) Record {
	t.Helper()
	data, _ := json.Marshal(map[string]any{
		"department_id": dept,
		"equipment_id":  "PUMP-1",
		"title":         "Seal leak",
		"status":        status,
	})
	out, err := svc.SubmitMutation(context.Background(), adminUser, MutationInput{
		Action: ActionCreate,
		Table:  domain.TableCriticalIssues,
		Data:   data,
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	if !out.Applied || out.Record == nil {
		t.Fatalf("expected admin create to apply, got %+v", out)
	}
	return *out.Record
}

// seedOwnedIssue seeds an issue and hands its authorship to owner.
func seedOwnedIssue(t *testing.T, svc *Service, owner Principal, dept int64, status string) Record {
	t.Helper()
	rec := seedIssue(t, svc, dept, status)
	var owned Record
	if _, err := svc.store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		owned, err = tx.UpdateRecord(rec.Table, rec.ID, func(r *Record) error {
			id := owner.ID
			r.CreatedBy = &id
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("assign record owner: %v", err)
	}
	return owned
}

func changeRequest(recordID, patch string) CreateRequestInput {
	return CreateRequestInput{
		RequestType: domain.RequestDataChange,
		TableName:   domain.TableCriticalIssues,
		RecordID:    strPtr(recordID),
		NewData:     domain.NewChangePayload(json.RawMessage(patch)),
		Reason:      "status update",
	}
}

func fileChange(t *testing.T, svc *Service, p Principal, recordID, patch string) ApprovalRequest {
	t.Helper()
	req, err := svc.CreateApprovalRequest(context.Background(), p, changeRequest(recordID, patch))
	if err != nil {
		t.Fatalf("create approval request: %v", err)
	}
	return req
}

func decodeIssue(t *testing.T, rec Record) domain.CriticalIssue {
	t.Helper()
	var issue domain.CriticalIssue
	if err := json.Unmarshal(rec.Data, &issue); err != nil {
		t.Fatalf("decode issue: %v", err)
	}
	return issue
}

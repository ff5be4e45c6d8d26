package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"opsreport/pkg/domain"
)

func TestSubmitMutationCreate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	data := json.RawMessage(`{"number":"N-100","equipment_id":"FAN-2","status":"open"}`)

	direct, err := svc.SubmitMutation(ctx, plannerDept7, MutationInput{Action: ActionCreate, Table: domain.TableNotifications, Data: data})
	if err != nil {
		t.Fatalf("planner create: %v", err)
	}
	if !direct.Applied || direct.Record == nil || direct.Request != nil {
		t.Fatalf("planner create should apply directly, got %+v", direct)
	}
	if direct.Record.DepartmentID != 7 || direct.Record.CreatedBy == nil || *direct.Record.CreatedBy != plannerDept7.ID {
		t.Fatalf("expected own department and creator, got %+v", direct.Record)
	}

	if _, err := svc.SubmitMutation(ctx, plannerDept7, MutationInput{
		Action: ActionCreate,
		Table:  domain.TableNotifications,
		Data:   json.RawMessage(`{"department_id":8,"number":"N-101","status":"open"}`),
	}); !errors.Is(err, domain.ErrInsufficientPermission) {
		t.Fatalf("expected planner denied in foreign department, got %v", err)
	}

	gated, err := svc.SubmitMutation(ctx, otherInput, MutationInput{
		Action: ActionCreate,
		Table:  domain.TableNotifications,
		Data:   json.RawMessage(`{"department_id":8,"number":"N-102","status":"open"}`),
		Reason: "new finding",
	})
	if err != nil {
		t.Fatalf("inputter create: %v", err)
	}
	if gated.Applied || gated.Request == nil {
		t.Fatalf("inputter create should file a request, got %+v", gated)
	}
	req := gated.Request
	if req.RequestType != domain.RequestDataCreation || req.Status != domain.StatusPending || req.RecordID != nil {
		t.Fatalf("unexpected creation request %+v", req)
	}
	if len(svc.Store().ListRecords(domain.TableNotifications)) != 1 {
		t.Fatalf("gated create must not write a record")
	}

	if _, err := svc.ResolveApprovalRequest(ctx, adminUser, req.ID, domain.StatusApproved); err != nil {
		t.Fatalf("approve creation: %v", err)
	}
	records := svc.Store().ListRecords(domain.TableNotifications)
	if len(records) != 2 {
		t.Fatalf("expected created record, got %d", len(records))
	}
	var created Record
	for _, r := range records {
		if r.ID != direct.Record.ID {
			created = r
		}
	}
	if created.DepartmentID != 8 || created.CreatedBy == nil || *created.CreatedBy != otherInput.ID {
		t.Fatalf("created record should belong to the requester, got %+v", created)
	}
}

func TestSubmitMutationUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	rec := seedIssue(t, svc, 7, "open")
	patch := json.RawMessage(`{"status":"in_progress"}`)

	out, err := svc.SubmitMutation(ctx, plannerDept7, MutationInput{Action: ActionUpdate, Table: domain.TableCriticalIssues, RecordID: rec.ID, Data: patch})
	if err != nil || !out.Applied {
		t.Fatalf("planner update: %+v %v", out, err)
	}
	if decodeIssue(t, *out.Record).Status != "in_progress" {
		t.Fatalf("patch not applied")
	}

	cases := []struct {
		name string
		p    Principal
		in   MutationInput
		err  error
	}{
		{"planner other department", plannerDept8, MutationInput{Action: ActionUpdate, Table: domain.TableCriticalIssues, RecordID: rec.ID, Data: patch}, domain.ErrInsufficientPermission},
		{"inputter not creator", inputterUser, MutationInput{Action: ActionUpdate, Table: domain.TableCriticalIssues, RecordID: rec.ID, Data: patch}, domain.ErrInsufficientPermission},
		{"viewer", viewerUser, MutationInput{Action: ActionUpdate, Table: domain.TableCriticalIssues, RecordID: rec.ID, Data: patch}, domain.ErrInsufficientPermission},
		{"unknown field", adminUser, MutationInput{Action: ActionUpdate, Table: domain.TableCriticalIssues, RecordID: rec.ID, Data: json.RawMessage(`{"owner":"x"}`)}, domain.ErrValidation},
		{"missing record id", adminUser, MutationInput{Action: ActionUpdate, Table: domain.TableCriticalIssues, Data: patch}, domain.ErrValidation},
		{"missing record", adminUser, MutationInput{Action: ActionUpdate, Table: domain.TableCriticalIssues, RecordID: "gone", Data: patch}, domain.ErrNotFound},
		{"unsupported table", adminUser, MutationInput{Action: ActionUpdate, Table: "payroll", RecordID: rec.ID, Data: patch}, domain.ErrUnsupportedTable},
		{"unknown action", adminUser, MutationInput{Action: "upsert", Table: domain.TableCriticalIssues, RecordID: rec.ID, Data: patch}, domain.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SubmitMutation(ctx, tc.p, tc.in); !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestSubmitMutationInputterUpdatesOwnRecordThroughApproval(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	filed, err := svc.SubmitMutation(ctx, inputterUser, MutationInput{
		Action: ActionCreate,
		Table:  domain.TableSafetyIncidents,
		Data:   json.RawMessage(`{"incident_date":"2026-03-01","location":"Bay 2","severity":"minor","status":"open"}`),
	})
	if err != nil {
		t.Fatalf("file creation: %v", err)
	}
	if _, err := svc.ResolveApprovalRequest(ctx, plannerDept7, filed.Request.ID, domain.StatusApproved); err != nil {
		t.Fatalf("approve creation: %v", err)
	}
	rec := svc.Store().ListRecords(domain.TableSafetyIncidents)[0]

	out, err := svc.SubmitMutation(ctx, inputterUser, MutationInput{
		Action:   ActionUpdate,
		Table:    domain.TableSafetyIncidents,
		RecordID: rec.ID,
		Data:     json.RawMessage(`{"status":"closed"}`),
	})
	if err != nil {
		t.Fatalf("inputter update: %v", err)
	}
	if out.Applied || out.Request == nil || out.Request.RequestType != domain.RequestDataChange {
		t.Fatalf("expected change request, got %+v", out)
	}
	if string(out.Request.OldData.Raw()) != string(rec.Data) {
		t.Fatalf("expected old data captured")
	}
}

func TestSubmitMutationDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	rec := seedIssue(t, svc, 7, "open")

	proposal, err := svc.SubmitMutation(ctx, plannerDept7, MutationInput{Action: ActionDelete, Table: domain.TableCriticalIssues, RecordID: rec.ID})
	if err != nil {
		t.Fatalf("planner delete: %v", err)
	}
	if proposal.Applied || proposal.Request == nil {
		t.Fatalf("planner delete should be proposed, got %+v", proposal)
	}
	req := proposal.Request
	if req.RequestType != domain.RequestDataDeletion || req.Status != domain.StatusPendingAdminApproval {
		t.Fatalf("unexpected deletion request %+v", req)
	}
	if _, ok := svc.Store().GetRecord(domain.TableCriticalIssues, rec.ID); !ok {
		t.Fatalf("proposal must not delete")
	}
	if _, err := svc.SubmitMutation(ctx, plannerDept8, MutationInput{Action: ActionDelete, Table: domain.TableCriticalIssues, RecordID: rec.ID}); !errors.Is(err, domain.ErrInsufficientPermission) {
		t.Fatalf("expected foreign planner denied, got %v", err)
	}

	if _, err := svc.ResolveApprovalRequest(ctx, adminUser, req.ID, domain.StatusApproved); err != nil {
		t.Fatalf("approve deletion: %v", err)
	}
	if _, ok := svc.Store().GetRecord(domain.TableCriticalIssues, rec.ID); ok {
		t.Fatalf("approved deletion should remove the record")
	}

	other := seedIssue(t, svc, 7, "open")
	direct, err := svc.SubmitMutation(ctx, adminUser, MutationInput{Action: ActionDelete, Table: domain.TableCriticalIssues, RecordID: other.ID})
	if err != nil || !direct.Applied {
		t.Fatalf("admin delete should apply: %+v %v", direct, err)
	}
}

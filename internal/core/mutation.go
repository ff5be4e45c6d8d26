package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"opsreport/internal/policy"
	"opsreport/pkg/domain"
)

// MutationInput is a direct create, update or delete of a target record.
// Data is the full record for creates and a partial patch for updates.
type MutationInput struct {
	Action   Action
	Table    TableName
	RecordID string
	Data     json.RawMessage
	Reason   string
}

// MutationOutcome reports whether a mutation was applied immediately or
// filed as an approval request.
type MutationOutcome struct {
	Applied bool
	Record  *Record
	Request *ApprovalRequest
}

// SubmitMutation checks role policy for the mutation and then either applies
// it or, when the router gates p's role, files an approval request instead.
// Deletions by non-administrators always go through approval.
func (s *Service) SubmitMutation(ctx context.Context, p Principal, in MutationInput) (MutationOutcome, error) {
	var outcome MutationOutcome
	err := s.observe(ctx, OpSubmitMutation, p, func(ctx context.Context) (string, error) {
		if err := requireSubmitter(p); err != nil {
			return in.RecordID, err
		}
		switch in.Action {
		case ActionCreate, ActionUpdate, ActionDelete:
		default:
			return in.RecordID, domain.Invalid("action", fmt.Sprintf("unknown action %q", in.Action))
		}
		handler, err := s.dispatcher.Handler(in.Table)
		if err != nil {
			return in.RecordID, err
		}
		in.RecordID = strings.TrimSpace(in.RecordID)
		if in.Action != ActionCreate && in.RecordID == "" {
			return "", domain.Invalid("recordId", "is required")
		}
		if in.Action != ActionDelete {
			if err := handler.Validate(in.Data, in.Action == ActionCreate); err != nil {
				return in.RecordID, err
			}
		}
		_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			switch in.Action {
			case ActionCreate:
				outcome, err = s.submitCreate(tx, p, handler, in)
			case ActionUpdate:
				outcome, err = s.submitUpdate(tx, p, handler, in)
			case ActionDelete:
				outcome, err = s.submitDelete(tx, p, handler, in)
			}
			return err
		})
		return outcome.entityID(), err
	})
	if err != nil {
		return MutationOutcome{}, err
	}
	return outcome, nil
}

func (o MutationOutcome) entityID() string {
	switch {
	case o.Request != nil:
		return o.Request.ID
	case o.Record != nil:
		return o.Record.ID
	}
	return ""
}

func (s *Service) submitCreate(tx Transaction, p Principal, handler TableHandler, in MutationInput) (MutationOutcome, error) {
	dept, _, err := splitDepartment(in.Data)
	if err != nil {
		return MutationOutcome{}, err
	}
	if dept == nil && p.DepartmentID != nil {
		own := *p.DepartmentID
		dept = &own
	}
	if dept == nil {
		return MutationOutcome{}, domain.Invalid(departmentField, "is required")
	}
	if err := policy.RequireCreateInDepartment(p, *dept); err != nil {
		return MutationOutcome{}, err
	}
	if s.router.RequiresApproval(p.Role) {
		return s.fileMutation(tx, p, CreateRequestInput{
			RequestType: domain.RequestDataCreation,
			TableName:   in.Table,
			NewData:     domain.NewChangePayload(in.Data),
			Reason:      in.Reason,
		})
	}
	creator := p.ID
	rec, err := handler.Create(tx, CreateInput{DepartmentID: dept, CreatedBy: &creator, Data: in.Data})
	if err != nil {
		return MutationOutcome{}, err
	}
	return MutationOutcome{Applied: true, Record: &rec}, nil
}

func (s *Service) submitUpdate(tx Transaction, p Principal, handler TableHandler, in MutationInput) (MutationOutcome, error) {
	current, err := findRecord(tx, in.Table, in.RecordID)
	if err != nil {
		return MutationOutcome{}, err
	}
	if err := policy.RequireModifyResource(p, current.DepartmentID, current.CreatedBy); err != nil {
		return MutationOutcome{}, err
	}
	if s.router.RequiresApproval(p.Role) {
		return s.fileMutation(tx, p, s.recordProposal(domain.RequestDataChange, current, in, in.Data))
	}
	rec, err := handler.Update(tx, in.RecordID, in.Data)
	if err != nil {
		return MutationOutcome{}, err
	}
	return MutationOutcome{Applied: true, Record: &rec}, nil
}

func (s *Service) submitDelete(tx Transaction, p Principal, handler TableHandler, in MutationInput) (MutationOutcome, error) {
	current, err := findRecord(tx, in.Table, in.RecordID)
	if err != nil {
		return MutationOutcome{}, err
	}
	if policy.CanDeleteResource(p) && !s.router.RequiresApproval(p.Role) {
		if err := handler.Delete(tx, in.RecordID); err != nil {
			return MutationOutcome{}, err
		}
		return MutationOutcome{Applied: true, Record: &current}, nil
	}
	if err := policy.RequireModifyResource(p, current.DepartmentID, current.CreatedBy); err != nil {
		return MutationOutcome{}, err
	}
	return s.fileMutation(tx, p, s.recordProposal(domain.RequestDataDeletion, current, in, json.RawMessage(`{}`)))
}

func (s *Service) recordProposal(kind RequestType, current Record, in MutationInput, data json.RawMessage) CreateRequestInput {
	id := current.ID
	return CreateRequestInput{
		RequestType: kind,
		TableName:   in.Table,
		RecordID:    &id,
		OldData:     domain.NewChangePayload(current.Data),
		NewData:     domain.NewChangePayload(data),
		Reason:      in.Reason,
	}
}

func (s *Service) fileMutation(tx Transaction, p Principal, in CreateRequestInput) (MutationOutcome, error) {
	req, err := s.fileRequest(tx, p, in)
	if err != nil {
		return MutationOutcome{}, err
	}
	return MutationOutcome{Request: &req}, nil
}

func findRecord(tx Transaction, table TableName, id string) (Record, error) {
	rec, ok := tx.FindRecord(table, id)
	if !ok {
		return Record{}, domain.NotFoundError{Entity: domain.EntityType(table), ID: id}
	}
	return rec, nil
}

// GetRecord returns a target record if p may access its department.
func (s *Service) GetRecord(ctx context.Context, p Principal, table TableName, id string) (Record, error) {
	var found Record
	err := s.observe(ctx, OpGetRecord, p, func(ctx context.Context) (string, error) {
		if err := requireAuthenticated(p); err != nil {
			return id, err
		}
		if !s.dispatcher.Supports(table) {
			return id, domain.UnsupportedTableError{Table: table}
		}
		return id, s.store.View(ctx, func(view TransactionView) error {
			rec, ok := view.FindRecord(table, id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityType(table), ID: id}
			}
			if err := policy.RequireDepartmentAccess(p, rec.DepartmentID); err != nil {
				return err
			}
			found = rec
			return nil
		})
	})
	return found, err
}

package core

import (
	"context"
	"fmt"

	"opsreport/pkg/domain"
)

// ApplyInput describes an approved mutation to materialize on its target table.
type ApplyInput struct {
	TableName   TableName
	RecordID    *string
	NewData     ChangePayload
	RequestType RequestType
	// DepartmentID and CreatedBy seed records produced by data_creation
	// when the payload does not name a department.
	DepartmentID *int64
	CreatedBy    *int64
}

// ApplyResult reports the outcome of an apply. Record is the written record,
// or the removed one for deletions.
type ApplyResult struct {
	Success bool
	Record  *Record
	Err     error
}

// ApplyApprovedChanges materializes in against its table in its own
// transaction. Failures are reported in the result and leave no writes behind.
func (s *Service) ApplyApprovedChanges(ctx context.Context, in ApplyInput) (result ApplyResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ApplyResult{Err: fmt.Errorf("%w: panic: %v", domain.ErrApplyFailed, r)}
		}
	}()
	_ = s.observe(ctx, OpApplyApprovedChanges, Principal{}, func(ctx context.Context) (string, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			result = applyChanges(s.dispatcher, tx, in)
			return result.Err
		})
		if err != nil {
			result = ApplyResult{Err: err}
			return "", err
		}
		return result.Record.ID, nil
	})
	return result
}

func applyChanges(d *Dispatcher, tx Transaction, in ApplyInput) ApplyResult {
	if !in.RequestType.Known() {
		return ApplyResult{Err: domain.UnknownRequestTypeError{Type: in.RequestType}}
	}
	handler, err := d.Handler(in.TableName)
	if err != nil {
		return ApplyResult{Err: err}
	}
	var recordID string
	if in.RequestType.NeedsRecord() {
		if in.RecordID == nil || *in.RecordID == "" {
			return ApplyResult{Err: domain.Invalid("recordId", fmt.Sprintf("is required for %s", in.RequestType))}
		}
		recordID = *in.RecordID
	}

	var record Record
	switch in.RequestType {
	case domain.RequestDataChange:
		record, err = handler.Update(tx, recordID, in.NewData.Raw())
	case domain.RequestDataDeletion:
		existing, ok := tx.FindRecord(in.TableName, recordID)
		if !ok {
			return ApplyResult{Err: domain.NotFoundError{Entity: domain.EntityType(in.TableName), ID: recordID}}
		}
		record = existing
		err = handler.Delete(tx, recordID)
	case domain.RequestDataCreation:
		record, err = handler.Create(tx, CreateInput{
			DepartmentID: in.DepartmentID,
			CreatedBy:    in.CreatedBy,
			Data:         in.NewData.Raw(),
		})
	}
	if err != nil {
		return ApplyResult{Err: err}
	}
	return ApplyResult{Success: true, Record: &record}
}

package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		message  string
	}{
		{Denied("access denied to department %d", 7), ErrInsufficientPermission, "access denied to department 7"},
		{&PermissionError{}, ErrInsufficientPermission, "insufficient permission"},
		{Invalid("status", "must be APPROVED or REJECTED"), ErrValidation, "status: must be APPROVED or REJECTED"},
		{&ValidationError{Message: "bad payload"}, ErrValidation, "bad payload"},
		{NotFoundError{Entity: EntityApprovalRequest, ID: "a1"}, ErrNotFound, "approval_request a1 not found"},
		{StateError{ID: "a1", Status: StatusApproved}, ErrInvalidState, "approval request a1 is APPROVED and cannot be resolved"},
		{StateError{ID: "a1", Status: StatusRejected, Op: "deleted"}, ErrInvalidState, "approval request a1 is REJECTED and cannot be deleted"},
		{UnsupportedTableError{Table: "payroll"}, ErrUnsupportedTable, `unsupported table "payroll"`},
		{UnknownRequestTypeError{Type: "data_merge"}, ErrUnknownRequestType, `unknown request type "data_merge"`},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.sentinel) {
			t.Fatalf("%T should match %v", tc.err, tc.sentinel)
		}
		if tc.err.Error() != tc.message {
			t.Fatalf("expected %q, got %q", tc.message, tc.err.Error())
		}
		wrapped := fmt.Errorf("%w: %w", ErrApplyFailed, tc.err)
		if !errors.Is(wrapped, ErrApplyFailed) || !errors.Is(wrapped, tc.sentinel) {
			t.Fatalf("wrapped %T lost a sentinel", tc.err)
		}
	}
}

func TestValidationErrorAs(t *testing.T) {
	err := fmt.Errorf("create: %w", Invalid("tableName", "is required"))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "tableName" {
		t.Fatalf("expected field to survive wrapping, got %v", err)
	}
}

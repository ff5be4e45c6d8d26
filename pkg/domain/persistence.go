package domain

import "context"

// Transaction exposes the operations that a persistence implementation must
// support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateApprovalRequest(ApprovalRequest) (ApprovalRequest, error)
	UpdateApprovalRequest(id string, mutator func(*ApprovalRequest) error) (ApprovalRequest, error)
	DeleteApprovalRequest(id string) error
	FindApprovalRequest(id string) (ApprovalRequest, bool)
	CreateRecord(Record) (Record, error)
	UpdateRecord(table TableName, id string, mutator func(*Record) error) (Record, error)
	DeleteRecord(table TableName, id string) error
	FindRecord(table TableName, id string) (Record, bool)
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	ListApprovalRequests() []ApprovalRequest
	FindApprovalRequest(id string) (ApprovalRequest, bool)
	ListRecords(table TableName) []Record
	FindRecord(table TableName, id string) (Record, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetApprovalRequest(id string) (ApprovalRequest, bool)
	ListApprovalRequests() []ApprovalRequest
	GetRecord(table TableName, id string) (Record, bool)
	ListRecords(table TableName) []Record
}

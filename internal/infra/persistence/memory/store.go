// Package memory provides an in-memory implementation of the persistence
// store used for tests, ephemeral environments, and as the transactional
// core of the snapshotting SQL stores.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"opsreport/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// ApprovalRequest aliases domain.ApprovalRequest.
	ApprovalRequest = domain.ApprovalRequest
	// Record aliases domain.Record.
	Record = domain.Record
	// TableName aliases domain.TableName.
	TableName = domain.TableName
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	approvals map[string]ApprovalRequest
	records   map[TableName]map[string]Record
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Approvals map[string]ApprovalRequest      `json:"approval_requests"`
	Records   map[TableName]map[string]Record `json:"records"`
}

func newMemoryState() memoryState {
	return memoryState{
		approvals: make(map[string]ApprovalRequest),
		records:   make(map[TableName]map[string]Record),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.approvals {
		cloned.approvals[k] = cloneApproval(v)
	}
	for table, rows := range s.records {
		bucket := make(map[string]Record, len(rows))
		for k, v := range rows {
			bucket[k] = cloneRecord(v)
		}
		cloned.records[table] = bucket
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{Approvals: cloned.approvals, Records: cloned.records}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Approvals {
		if v.ID == "" {
			v.ID = k
		}
		state.approvals[k] = cloneApproval(v)
	}
	for table, rows := range s.Records {
		bucket := make(map[string]Record, len(rows))
		for k, v := range rows {
			if v.ID == "" {
				v.ID = k
			}
			if v.Table == "" {
				v.Table = table
			}
			bucket[k] = cloneRecord(v)
		}
		state.records[table] = bucket
	}
	return state
}

func cloneApproval(a ApprovalRequest) ApprovalRequest {
	if a.ApproverID != nil {
		v := *a.ApproverID
		a.ApproverID = &v
	}
	if a.RecordID != nil {
		v := *a.RecordID
		a.RecordID = &v
	}
	if a.DepartmentID != nil {
		v := *a.DepartmentID
		a.DepartmentID = &v
	}
	if a.ApprovedAt != nil {
		v := *a.ApprovedAt
		a.ApprovedAt = &v
	}
	if a.OldData.Defined() {
		a.OldData = domain.NewChangePayload(a.OldData.Raw())
	}
	if a.NewData.Defined() {
		a.NewData = domain.NewChangePayload(a.NewData.Raw())
	}
	return a
}

func cloneRecord(r Record) Record {
	if r.CreatedBy != nil {
		v := *r.CreatedBy
		r.CreatedBy = &v
	}
	if r.Data != nil {
		data := make(json.RawMessage, len(r.Data))
		copy(data, r.Data)
		r.Data = data
	}
	return r
}

// Store provides an in-memory transactional store for approval requests and
// their target records.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc swaps the time provider, mainly for deterministic tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// transaction represents a mutation set applied to a private copy of the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListApprovalRequests() []ApprovalRequest {
	return listApprovals(v.state)
}

func (v transactionView) FindApprovalRequest(id string) (ApprovalRequest, bool) {
	a, ok := v.state.approvals[id]
	if !ok {
		return ApprovalRequest{}, false
	}
	return cloneApproval(a), true
}

func (v transactionView) ListRecords(table TableName) []Record {
	return listRecords(v.state, table)
}

func (v transactionView) FindRecord(table TableName, id string) (Record, bool) {
	return findRecord(v.state, table, id)
}

func listApprovals(state *memoryState) []ApprovalRequest {
	out := make([]ApprovalRequest, 0, len(state.approvals))
	for _, a := range state.approvals {
		out = append(out, cloneApproval(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listRecords(state *memoryState, table TableName) []Record {
	rows := state.records[table]
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func findRecord(state *memoryState, table TableName, id string) (Record, bool) {
	r, ok := state.records[table][id]
	if !ok {
		return Record{}, false
	}
	return cloneRecord(r), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Writers are serialized, so a read-check-write sequence inside fn is atomic.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindApprovalRequest exposes approval lookup within the transaction scope.
func (tx *transaction) FindApprovalRequest(id string) (ApprovalRequest, bool) {
	a, ok := tx.state.approvals[id]
	if !ok {
		return ApprovalRequest{}, false
	}
	return cloneApproval(a), true
}

// CreateApprovalRequest stores a new approval request within the transaction.
func (tx *transaction) CreateApprovalRequest(a ApprovalRequest) (ApprovalRequest, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.approvals[a.ID]; exists {
		return ApprovalRequest{}, fmt.Errorf("approval request %q already exists", a.ID)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = tx.now
	}
	tx.state.approvals[a.ID] = cloneApproval(a)
	tx.recordChange(Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionCreate, After: cloneApproval(a)})
	return cloneApproval(a), nil
}

// UpdateApprovalRequest mutates an approval request using the provided mutator function.
func (tx *transaction) UpdateApprovalRequest(id string, mutator func(*ApprovalRequest) error) (ApprovalRequest, error) {
	current, ok := tx.state.approvals[id]
	if !ok {
		return ApprovalRequest{}, domain.NotFoundError{Entity: domain.EntityApprovalRequest, ID: id}
	}
	before := cloneApproval(current)
	current = cloneApproval(current)
	if err := mutator(&current); err != nil {
		return ApprovalRequest{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.RequesterID = before.RequesterID
	tx.state.approvals[id] = cloneApproval(current)
	tx.recordChange(Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionUpdate, Before: before, After: cloneApproval(current)})
	return cloneApproval(current), nil
}

// DeleteApprovalRequest removes an approval request from the transaction state.
func (tx *transaction) DeleteApprovalRequest(id string) error {
	current, ok := tx.state.approvals[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityApprovalRequest, ID: id}
	}
	delete(tx.state.approvals, id)
	tx.recordChange(Change{Entity: domain.EntityApprovalRequest, Action: domain.ActionDelete, Before: cloneApproval(current)})
	return nil
}

// FindRecord exposes record lookup within the transaction scope.
func (tx *transaction) FindRecord(table TableName, id string) (Record, bool) {
	return findRecord(&tx.state, table, id)
}

// CreateRecord stores a new target record.
func (tx *transaction) CreateRecord(r Record) (Record, error) {
	if r.Table == "" {
		return Record{}, fmt.Errorf("record table is required")
	}
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	bucket, ok := tx.state.records[r.Table]
	if !ok {
		bucket = make(map[string]Record)
		tx.state.records[r.Table] = bucket
	}
	if _, exists := bucket[r.ID]; exists {
		return Record{}, fmt.Errorf("%s record %q already exists", r.Table, r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	bucket[r.ID] = cloneRecord(r)
	tx.recordChange(Change{Entity: domain.EntityRecord, Action: domain.ActionCreate, After: cloneRecord(r)})
	return cloneRecord(r), nil
}

// UpdateRecord mutates an existing target record.
func (tx *transaction) UpdateRecord(table TableName, id string, mutator func(*Record) error) (Record, error) {
	current, ok := tx.state.records[table][id]
	if !ok {
		return Record{}, domain.NotFoundError{Entity: domain.EntityType(table), ID: id}
	}
	before := cloneRecord(current)
	current = cloneRecord(current)
	if err := mutator(&current); err != nil {
		return Record{}, err
	}
	current.ID = id
	current.Table = table
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.records[table][id] = cloneRecord(current)
	tx.recordChange(Change{Entity: domain.EntityRecord, Action: domain.ActionUpdate, Before: before, After: cloneRecord(current)})
	return cloneRecord(current), nil
}

// DeleteRecord removes a target record.
func (tx *transaction) DeleteRecord(table TableName, id string) error {
	current, ok := tx.state.records[table][id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityType(table), ID: id}
	}
	delete(tx.state.records[table], id)
	tx.recordChange(Change{Entity: domain.EntityRecord, Action: domain.ActionDelete, Before: cloneRecord(current)})
	return nil
}

// GetApprovalRequest retrieves an approval request by ID.
func (s *Store) GetApprovalRequest(id string) (ApprovalRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.approvals[id]
	if !ok {
		return ApprovalRequest{}, false
	}
	return cloneApproval(a), true
}

// ListApprovalRequests returns all approval requests ordered by ID.
func (s *Store) ListApprovalRequests() []ApprovalRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listApprovals(&s.state)
}

// GetRecord retrieves a target record by table and ID.
func (s *Store) GetRecord(table TableName, id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findRecord(&s.state, table, id)
}

// ListRecords returns all records of a table ordered by ID.
func (s *Store) ListRecords(table TableName) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRecords(&s.state, table)
}

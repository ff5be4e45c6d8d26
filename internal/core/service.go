package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"opsreport/internal/blob"
	"opsreport/internal/policy"
	"opsreport/pkg/domain"
)

const (
	// DefaultPageLimit is the page size used when a listing omits one.
	DefaultPageLimit = 20
	// MaxPageLimit caps the page size of a listing.
	MaxPageLimit = 100
)

// Service exposes the approval workflow over a persistent store. Every
// operation runs in a single store transaction.
type Service struct {
	store               PersistentStore
	router              *policy.Router
	dispatcher          *Dispatcher
	archive             blob.Store
	logger              Logger
	audit               AuditRecorder
	metrics             MetricsRecorder
	tracer              Tracer
	clock               Clock
	allowDeleteResolved bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder sets the recorder that receives audit entries.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the operation metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the time source for request and decision timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithArchive enables resolution snapshots in store.
func WithArchive(store blob.Store) Option {
	return func(s *Service) {
		s.archive = store
	}
}

// WithRouter replaces the default approval router.
func WithRouter(router *policy.Router) Option {
	return func(s *Service) {
		if router != nil {
			s.router = router
		}
	}
}

// WithDispatcher replaces the default table dispatcher.
func WithDispatcher(d *Dispatcher) Option {
	return func(s *Service) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithAllowDeleteResolved controls whether administrators may delete
// approved or rejected requests. Enabled by default.
func WithAllowDeleteResolved(allow bool) Option {
	return func(s *Service) {
		s.allowDeleteResolved = allow
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:               store,
		router:              policy.NewRouter(),
		dispatcher:          DefaultDispatcher(),
		logger:              noopLogger{},
		audit:               noopAuditRecorder{},
		metrics:             noopMetricsRecorder{},
		tracer:              noopTracer{},
		clock:               ClockFunc(time.Now),
		allowDeleteResolved: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(NewMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Router returns the approval router in use.
func (s *Service) Router() *policy.Router {
	return s.router
}

// CreateRequestInput is a proposal to mutate a record of TableName.
type CreateRequestInput struct {
	RequestType RequestType
	TableName   TableName
	RecordID    *string
	OldData     ChangePayload
	NewData     ChangePayload
	Reason      string
}

// CreateApprovalRequest validates and files a proposal on behalf of requester.
// The initial status is chosen by the router from the requester's role.
func (s *Service) CreateApprovalRequest(ctx context.Context, requester Principal, in CreateRequestInput) (ApprovalRequest, error) {
	var created ApprovalRequest
	err := s.observe(ctx, OpCreateApprovalRequest, requester, func(ctx context.Context) (string, error) {
		if err := requireSubmitter(requester); err != nil {
			return "", err
		}
		if err := s.validateRequestInput(in); err != nil {
			return "", err
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = s.fileRequest(tx, requester, in)
			return err
		})
		return created.ID, err
	})
	return created, err
}

func (s *Service) validateRequestInput(in CreateRequestInput) error {
	switch {
	case in.RequestType == "":
		return domain.Invalid("requestType", "is required")
	case in.TableName == "":
		return domain.Invalid("tableName", "is required")
	case in.NewData.IsEmpty():
		return domain.Invalid("newData", "is required")
	case !in.RequestType.Known():
		return domain.Invalid("requestType", fmt.Sprintf("unknown request type %q", in.RequestType))
	}
	handler, err := s.dispatcher.Handler(in.TableName)
	if err != nil {
		return domain.Invalid("tableName", err.Error())
	}
	hasRecord := in.RecordID != nil && strings.TrimSpace(*in.RecordID) != ""
	if in.RequestType.NeedsRecord() && !hasRecord {
		return domain.Invalid("recordId", fmt.Sprintf("is required for %s", in.RequestType))
	}
	if !in.RequestType.NeedsRecord() && hasRecord {
		return domain.Invalid("recordId", fmt.Sprintf("must be empty for %s", in.RequestType))
	}
	if in.RequestType == domain.RequestDataDeletion {
		return nil
	}
	return handler.Validate(in.NewData.Raw(), in.RequestType == domain.RequestDataCreation)
}

// fileRequest persists a validated proposal, capturing the target's
// department and current data.
func (s *Service) fileRequest(tx Transaction, requester Principal, in CreateRequestInput) (ApprovalRequest, error) {
	req := ApprovalRequest{
		RequesterID:   requester.ID,
		RequesterRole: requester.Role,
		Status:        s.router.InitialStatus(requester.Role),
		RequestType:   in.RequestType,
		TableName:     in.TableName,
		OldData:       in.OldData,
		NewData:       in.NewData,
		Reason:        strings.TrimSpace(in.Reason),
		CreatedAt:     s.clock.Now().UTC(),
	}
	if in.RequestType.NeedsRecord() {
		id := strings.TrimSpace(*in.RecordID)
		rec, ok := tx.FindRecord(in.TableName, id)
		if !ok {
			return ApprovalRequest{}, domain.NotFoundError{Entity: domain.EntityType(in.TableName), ID: id}
		}
		if err := policy.RequireModifyResource(requester, rec.DepartmentID, rec.CreatedBy); err != nil {
			return ApprovalRequest{}, err
		}
		dept := rec.DepartmentID
		req.RecordID = &id
		req.DepartmentID = &dept
		if req.OldData.IsEmpty() {
			req.OldData = domain.NewChangePayload(rec.Data)
		}
		return tx.CreateApprovalRequest(req)
	}

	dept, _, err := splitDepartment(in.NewData.Raw())
	if err != nil {
		return ApprovalRequest{}, err
	}
	if dept == nil && requester.DepartmentID != nil {
		own := *requester.DepartmentID
		dept = &own
	}
	if dept == nil {
		return ApprovalRequest{}, domain.Invalid(departmentField, fmt.Sprintf("is required for %s", in.RequestType))
	}
	if err := policy.RequireCreateInDepartment(requester, *dept); err != nil {
		return ApprovalRequest{}, err
	}
	req.DepartmentID = dept
	return tx.CreateApprovalRequest(req)
}

// GetApprovalRequest returns a request visible to p.
func (s *Service) GetApprovalRequest(ctx context.Context, p Principal, id string) (ApprovalRequest, error) {
	var found ApprovalRequest
	err := s.observe(ctx, OpGetApprovalRequest, p, func(ctx context.Context) (string, error) {
		if err := requireReader(p); err != nil {
			return id, err
		}
		return id, s.store.View(ctx, func(view TransactionView) error {
			req, ok := view.FindApprovalRequest(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityApprovalRequest, ID: id}
			}
			if !canView(p, req) {
				return domain.Denied("access denied to approval request %s", id)
			}
			found = req
			return nil
		})
	})
	return found, err
}

// ListOptions filters and paginates a listing. Zero values select all
// statuses and types, the first page and the default limit.
type ListOptions struct {
	Status      ApprovalStatus
	RequestType RequestType
	Page        int
	Limit       int
}

// ListResult is one page of requests plus per-status counts over everything
// the caller may see.
type ListResult struct {
	Items []ApprovalRequest
	Total int
	Page  int
	Limit int
	Stats map[ApprovalStatus]int
}

// ListApprovalRequests returns the requests p may see, open ones first and
// newest first within a status.
func (s *Service) ListApprovalRequests(ctx context.Context, p Principal, opts ListOptions) (ListResult, error) {
	var result ListResult
	err := s.observe(ctx, OpListApprovalRequests, p, func(ctx context.Context) (string, error) {
		if err := requireReader(p); err != nil {
			return "", err
		}
		if opts.Status != "" && opts.Status.Rank() > domain.StatusRejected.Rank() {
			return "", domain.Invalid("status", fmt.Sprintf("unknown status %q", opts.Status))
		}
		if opts.RequestType != "" && !opts.RequestType.Known() {
			return "", domain.Invalid("requestType", fmt.Sprintf("unknown request type %q", opts.RequestType))
		}
		var all []ApprovalRequest
		if err := s.store.View(ctx, func(view TransactionView) error {
			all = view.ListApprovalRequests()
			return nil
		}); err != nil {
			return "", err
		}
		result = buildListResult(p, all, opts)
		return "", nil
	})
	return result, err
}

func buildListResult(p Principal, all []ApprovalRequest, opts ListOptions) ListResult {
	page, limit := normalizePage(opts.Page, opts.Limit)
	stats := make(map[ApprovalStatus]int, 4)
	for _, status := range domain.AllStatuses() {
		stats[status] = 0
	}
	var filtered []ApprovalRequest
	for _, req := range all {
		if !inListScope(p, req) {
			continue
		}
		if opts.RequestType != "" && req.RequestType != opts.RequestType {
			continue
		}
		stats[req.Status]++
		if opts.Status != "" && req.Status != opts.Status {
			continue
		}
		filtered = append(filtered, req)
	}
	sortRequests(filtered)

	result := ListResult{Items: []ApprovalRequest{}, Total: len(filtered), Page: page, Limit: limit, Stats: stats}
	start := (page - 1) * limit
	if start >= len(filtered) {
		return result
	}
	end := min(start+limit, len(filtered))
	result.Items = filtered[start:end]
	return result
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func sortRequests(reqs []ApprovalRequest) {
	slices.SortFunc(reqs, func(a, b ApprovalRequest) int {
		if ra, rb := a.Status.Rank(), b.Status.Rank(); ra != rb {
			return ra - rb
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// inListScope is the listing filter: planners see their department's
// requests awaiting them, inputters their own submissions.
func inListScope(p Principal, req ApprovalRequest) bool {
	switch p.Role {
	case domain.RoleAdmin:
		return true
	case domain.RolePlanner:
		return req.Status == domain.StatusPending && req.DepartmentID != nil && p.InDepartment(*req.DepartmentID)
	case domain.RoleInputter:
		return req.RequesterID == p.ID
	}
	return false
}

func canView(p Principal, req ApprovalRequest) bool {
	switch p.Role {
	case domain.RoleAdmin:
		return true
	case domain.RolePlanner:
		return req.RequesterID == p.ID || (req.DepartmentID != nil && p.InDepartment(*req.DepartmentID))
	case domain.RoleInputter:
		return req.RequesterID == p.ID
	}
	return false
}

// ResolveApprovalRequest approves or rejects a pending request. Approval
// applies the proposed change in the same transaction; when the apply fails
// nothing is written and the error wraps domain.ErrApplyFailed.
func (s *Service) ResolveApprovalRequest(ctx context.Context, p Principal, id string, decision ApprovalStatus) (ApprovalRequest, error) {
	var (
		resolved ApprovalRequest
		applied  *Record
	)
	err := s.observe(ctx, OpResolveApprovalRequest, p, func(ctx context.Context) (string, error) {
		if err := requireAuthenticated(p); err != nil {
			return id, err
		}
		if !decision.IsTerminal() {
			return id, domain.Invalid("status", "must be APPROVED or REJECTED")
		}
		if !s.router.IsResolver(p.Role) {
			return id, domain.Denied("role %s cannot resolve approval requests", p.Role)
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindApprovalRequest(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityApprovalRequest, ID: id}
			}
			if !current.Status.IsPending() {
				return domain.StateError{ID: id, Status: current.Status}
			}
			if err := s.router.RequireResolve(p, current.Status); err != nil {
				return err
			}
			if current.DepartmentID != nil {
				if err := policy.RequireDepartmentAccess(p, *current.DepartmentID); err != nil {
					return err
				}
			} else if p.Role != domain.RoleAdmin {
				return domain.Denied("approval request %s has no department and can only be resolved by an administrator", id)
			}

			now := s.clock.Now().UTC()
			approver := p.ID
			updated, err := tx.UpdateApprovalRequest(id, func(r *ApprovalRequest) error {
				r.Status = decision
				r.ApproverID = &approver
				r.ApprovedAt = &now
				return nil
			})
			if err != nil {
				return err
			}
			if decision == domain.StatusApproved {
				requester := current.RequesterID
				res := applyChanges(s.dispatcher, tx, ApplyInput{
					TableName:    current.TableName,
					RecordID:     current.RecordID,
					NewData:      current.NewData,
					RequestType:  current.RequestType,
					DepartmentID: current.DepartmentID,
					CreatedBy:    &requester,
				})
				if !res.Success {
					return fmt.Errorf("%w: %w", domain.ErrApplyFailed, res.Err)
				}
				applied = res.Record
			}
			resolved = updated
			return nil
		})
		return id, err
	})
	if err != nil {
		return ApprovalRequest{}, err
	}
	s.logger.Info("approval request resolved", "approval_id", id, "status", resolved.Status, "approver_id", p.ID)
	s.archiveResolution(ctx, resolved, applied)
	return resolved, nil
}

// DeleteApprovalRequest removes a request. Administrators only.
func (s *Service) DeleteApprovalRequest(ctx context.Context, p Principal, id string) error {
	return s.observe(ctx, OpDeleteApprovalRequest, p, func(ctx context.Context) (string, error) {
		if err := requireAuthenticated(p); err != nil {
			return id, err
		}
		if err := policy.RequireDeleteResource(p); err != nil {
			return id, err
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindApprovalRequest(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityApprovalRequest, ID: id}
			}
			if !s.allowDeleteResolved && current.Status.IsTerminal() {
				return domain.StateError{ID: id, Status: current.Status, Op: "deleted"}
			}
			return tx.DeleteApprovalRequest(id)
		})
		return id, err
	})
}

func requireAuthenticated(p Principal) error {
	if !p.Role.Valid() {
		return domain.ErrUnauthenticated
	}
	return nil
}

func requireSubmitter(p Principal) error {
	if err := requireAuthenticated(p); err != nil {
		return err
	}
	if p.Role == domain.RoleViewer {
		return domain.Denied("viewers cannot submit changes")
	}
	return nil
}

func requireReader(p Principal) error {
	if err := requireAuthenticated(p); err != nil {
		return err
	}
	if p.Role == domain.RoleViewer {
		return domain.Denied("viewers cannot access approval requests")
	}
	return nil
}

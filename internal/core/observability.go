package core

import (
	"context"
	"errors"
	"time"

	"opsreport/pkg/domain"
)

// Logger is the structured logger used by the service. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus is the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation for the audit trail.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	ActorID   int64
	ActorRole Role
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries. Implementations must not block.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation outcomes and latency.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

// Clock supplies the current time for timestamps written by the service.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type operationMeta struct {
	entity EntityType
	action Action
}

// Service operation names as they appear in audit entries, metrics and spans.
const (
	OpCreateApprovalRequest  = "create_approval_request"
	OpGetApprovalRequest     = "get_approval_request"
	OpListApprovalRequests   = "list_approval_requests"
	OpResolveApprovalRequest = "resolve_approval_request"
	OpDeleteApprovalRequest  = "delete_approval_request"
	OpApplyApprovedChanges   = "apply_approved_changes"
	OpSubmitMutation         = "submit_mutation"
	OpGetRecord              = "get_record"
	OpGetArchivedResolution  = "get_archived_resolution"
	OpListArchive            = "list_archive"
)

var operationMetadata = map[string]operationMeta{
	OpCreateApprovalRequest:  {entity: EntityApprovalRequest, action: ActionCreate},
	OpResolveApprovalRequest: {entity: EntityApprovalRequest, action: ActionUpdate},
	OpDeleteApprovalRequest:  {entity: EntityApprovalRequest, action: ActionDelete},
	OpApplyApprovedChanges:   {entity: EntityRecord, action: ActionUpdate},
	OpSubmitMutation:         {entity: EntityRecord, action: ActionUpdate},
}

// observe wraps a service operation with tracing, metrics and, for
// mutating operations, an audit entry.
func (s *Service) observe(ctx context.Context, op string, actor Principal, fn func(ctx context.Context) (string, error)) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	entityID, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logFailure(op, actor, err)
		s.recordAudit(ctx, op, actor, entityID, duration, err)
		return err
	}
	s.recordAudit(ctx, op, actor, entityID, duration, nil)
	return nil
}

// logFailure reports apply-engine failures at warn. Other failures are
// caller errors already answered to the client.
func (s *Service) logFailure(op string, actor Principal, err error) {
	if op == OpApplyApprovedChanges || errors.Is(err, domain.ErrApplyFailed) {
		s.logger.Warn("apply failed", "operation", op, "actor_id", actor.ID, "error", err)
		return
	}
	s.logger.Debug("operation failed", "operation", op, "actor_id", actor.ID, "error", err)
}

func (s *Service) recordAudit(ctx context.Context, op string, actor Principal, entityID string, duration time.Duration, err error) {
	meta, ok := operationMetadata[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now().UTC(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

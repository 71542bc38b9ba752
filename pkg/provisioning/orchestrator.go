package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/audit"
	"github.com/platinummonkey/tenantd/pkg/identity"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/rbac"
	"github.com/platinummonkey/tenantd/pkg/tenants"
	"github.com/platinummonkey/tenantd/pkg/validation"
)

const (
	// DefaultMaxBatchSize caps records per request
	DefaultMaxBatchSize = 50
	// DefaultConcurrency is how many distinct emails are processed at once
	DefaultConcurrency = 5
)

// Inviter is the part of the lifecycle manager the orchestrator drives
type Inviter interface {
	AuthorizeInvite(ctx context.Context, tenantID string, role rbac.Role, actingUserID string) error
	Invite(ctx context.Context, req tenants.InviteRequest) (*tenants.InviteResult, error)
}

// Orchestrator provisions batches of users into a tenant
type Orchestrator struct {
	inviter   Inviter
	validator *validation.Validator
	audit     audit.Logger
	logger    *observability.Logger
	metrics   *observability.Metrics

	maxBatchSize int
	concurrency  int
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMaxBatchSize sets the record limit; values outside 1..DefaultMaxBatchSize are ignored
func WithMaxBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 && n <= DefaultMaxBatchSize {
			o.maxBatchSize = n
		}
	}
}

// WithConcurrency sets how many emails are processed in parallel
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.concurrency = n
		}
	}
}

// WithAudit sets the audit sink
func WithAudit(logger audit.Logger) Option {
	return func(o *Orchestrator) { o.audit = logger }
}

// WithLogger sets the application logger
func WithLogger(logger *observability.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics enables Prometheus metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// New creates an Orchestrator over the lifecycle manager
func New(inviter Inviter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		inviter:      inviter,
		validator:    validation.New(),
		audit:        audit.NewNopLogger(),
		logger:       observability.NewNopLogger(),
		maxBatchSize: DefaultMaxBatchSize,
		concurrency:  DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Provision processes every record of the batch and reports each outcome.
// It returns an error only when the request as a whole is rejected: missing
// caller, malformed batch, or a caller who may not add members at all.
func (o *Orchestrator) Provision(ctx context.Context, req BulkRequest) (result *BulkResult, err error) {
	ctx, span := observability.StartSpan(ctx, "provisioning.Provision",
		attribute.String("tenant.id", req.TenantID),
		attribute.Int("batch.size", len(req.Users)),
	)
	start := time.Now()
	defer func() {
		o.metrics.ObserveBatch(start)
		observability.EndSpan(span, err)
	}()

	if req.ActingUserID == "" {
		return nil, apperr.Unauthenticated("authentication required")
	}
	if len(req.Users) > o.maxBatchSize {
		return nil, apperr.Newf(apperr.KindValidation, "maximum %d users per batch", o.maxBatchSize)
	}
	if verr := o.validator.Struct(req); verr != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid bulk request", verr)
	}
	// rejects callers who could not add any member, before any record runs
	if err := o.inviter.AuthorizeInvite(ctx, req.TenantID, rbac.RoleObserver, req.ActingUserID); err != nil {
		return nil, err
	}

	results := make([]RecordResult, len(req.Users))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, indexes := range groupByEmail(req.Users) {
		indexes := indexes
		g.Go(func() error {
			for _, i := range indexes {
				results[i] = o.provisionRecord(ctx, req, i)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := summarize(results)
	result = &BulkResult{
		Message:         fmt.Sprintf("Processed %d users: %d successful, %d failed", summary.Total, summary.Successful, summary.Failed),
		Results:         results,
		Summary:         summary,
		InvitationsSent: req.SendInvitations,
	}

	o.recordBatch(ctx, req, summary)
	return result, nil
}

// groupByEmail returns input indexes grouped by normalized email, groups in
// order of first appearance
func groupByEmail(records []Record) [][]int {
	positions := make(map[string]int, len(records))
	var groups [][]int
	for i, r := range records {
		key := identity.NormalizeEmail(r.Email)
		pos, ok := positions[key]
		if !ok {
			pos = len(groups)
			positions[key] = pos
			groups = append(groups, nil)
		}
		groups[pos] = append(groups[pos], i)
	}
	return groups
}

func (o *Orchestrator) provisionRecord(ctx context.Context, req BulkRequest, i int) (result RecordResult) {
	record := req.Users[i]
	result = RecordResult{Email: record.Email}

	var err error
	defer func() {
		if err != nil {
			result.Success = false
			result.Error = publicMessage(err)
			o.metrics.ObserveProvisionedRecord("none", false)
			observability.FromContext(ctx, o.logger).WithTenant(req.TenantID, req.ActingUserID).
				WithError(err).WithField("email", record.Email).Warn("Failed to provision user")
		}
	}()
	defer observability.Recover(o.logger, &err)

	res, err := o.inviter.Invite(ctx, tenants.InviteRequest{
		TenantID:       req.TenantID,
		ActingUserID:   req.ActingUserID,
		Email:          record.Email,
		FullName:       record.FullName,
		Role:           record.Role,
		SendInvitation: req.SendInvitations,
		Password:       record.TemporaryPassword,
	})
	if err != nil {
		return result
	}

	result.Success = true
	result.Action = actionFor(res.Outcome)
	result.UserID = res.UserID
	if res.Membership != nil {
		result.MembershipID = res.Membership.ID
	}
	o.metrics.ObserveProvisionedRecord(string(result.Action), true)
	return result
}

func actionFor(outcome tenants.InviteOutcome) Action {
	switch outcome {
	case tenants.OutcomeCreated:
		return ActionCreated
	case tenants.OutcomeAlreadyMember:
		return ActionAlreadyMember
	default:
		return ActionAddedExisting
	}
}

// publicMessage keeps internal causes out of per-record results
func publicMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	var pe *observability.PanicError
	if errors.As(err, &pe) {
		return "internal error"
	}
	return err.Error()
}

func (o *Orchestrator) recordBatch(ctx context.Context, req BulkRequest, summary Summary) {
	e := audit.NewEvent(ctx, audit.EventTypeBulkProvision, audit.EventStatusSuccess)
	e.TenantID = req.TenantID
	e.ActorID = req.ActingUserID
	if summary.Failed > 0 {
		e.Status = audit.EventStatusFailure
	}
	e.Message = fmt.Sprintf("%d of %d users provisioned", summary.Successful, summary.Total)
	e.Metadata["total"] = summary.Total
	e.Metadata["failed"] = summary.Failed
	e.Metadata["created"] = summary.Created
	e.Metadata["added_existing"] = summary.AddedExisting
	e.Metadata["already_members"] = summary.AlreadyMembers
	e.Metadata["send_invitations"] = req.SendInvitations

	if err := o.audit.Log(ctx, e); err != nil {
		observability.FromContext(ctx, o.logger).WithError(err).Warn("Failed to write audit event")
	}

	observability.FromContext(ctx, o.logger).WithTenant(req.TenantID, req.ActingUserID).WithFields(map[string]interface{}{
		"total":      summary.Total,
		"successful": summary.Successful,
		"failed":     summary.Failed,
	}).Info("Bulk provisioning finished")
}

// Package escalation assembles and tracks human-handoff cases.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aretw0/rxflow/internal/logging"
	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/ports"
)

// routing maps breaker reason codes to the reviewer role. Clinical
// findings go to a physician; operational conditions go to the PA desk.
var routing = map[domain.ReasonCode]domain.Role{
	domain.ReasonControlled:         domain.RolePhysician,
	domain.ReasonDrugInteraction:    domain.RolePhysician,
	domain.ReasonAllergyMatch:       domain.RolePhysician,
	domain.ReasonDoseOutOfRange:     domain.RolePhysician,
	domain.ReasonLowConfidence:      domain.RolePA,
	domain.ReasonIdentityUnverified: domain.RolePA,
	domain.ReasonBackendUnavailable: domain.RolePA,
	domain.ReasonMaxRetries:         domain.RolePA,
	domain.ReasonDrugUnrecognized:   domain.RolePA,
	domain.ReasonPriorAuth:          domain.RolePA,
}

// TargetRole resolves the reviewer role for a reason code.
func TargetRole(reason domain.ReasonCode) domain.Role {
	if role, ok := routing[reason]; ok {
		return role
	}
	return domain.RolePA
}

const excerptLimit = 120

// Coordinator owns escalation cases: it assembles the context package,
// routes to a reviewer role, notifies the reviewer channel and drives the
// acknowledge/resolve lifecycle.
type Coordinator struct {
	store    ports.EscalationStore
	notifier ports.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator over the given case store and
// reviewer channel.
func NewCoordinator(store ports.EscalationStore, notifier ports.Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		notifier: notifier,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open creates a PENDING case for a fired breaker and notifies the
// reviewer channel. The context package is built from an explicit
// allow-list of session fields; nothing else leaves the session.
func (c *Coordinator) Open(ctx context.Context, sess *domain.Session, reason domain.ReasonCode, utterance string) (*domain.EscalationCase, error) {
	slots, err := domain.DecodeSlots(sess.Entities)
	if err != nil {
		return nil, fmt.Errorf("assemble context package: %w", err)
	}

	now := c.now().UTC()
	esc := &domain.EscalationCase{
		ID:         uuid.NewString(),
		SessionID:  sess.ID,
		ReasonCode: reason,
		TargetRole: TargetRole(reason),
		Status:     domain.EscalationPending,
		Context: domain.ContextPackage{
			PatientRef:       sess.PatientRef,
			DrugName:         slots.DrugName,
			Dose:             slots.Dose,
			Quantity:         slots.Quantity,
			Reason:           reason,
			UtteranceExcerpt: excerpt(utterance),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.store.Save(ctx, esc); err != nil {
		return nil, fmt.Errorf("save escalation case: %w", err)
	}

	if err := c.notifier.Notify(ctx, *esc); err != nil {
		// The case is already durable; delivery is retried out of band.
		c.logger.Warn("reviewer notification failed",
			"escalation_id", esc.ID,
			"target_role", esc.TargetRole,
			"err", err,
		)
	}

	c.logger.Info("escalation opened",
		"escalation_id", esc.ID,
		"session_id", esc.SessionID,
		"reason", esc.ReasonCode,
		"target_role", esc.TargetRole,
	)
	return esc, nil
}

// Acknowledge moves a case from PENDING to ACKNOWLEDGED. It is the only
// path that lets a session advance to ESCALATION_COMPLETE. Acknowledging
// twice is a no-op; an unknown id fails with domain.ErrEscalationNotFound.
func (c *Coordinator) Acknowledge(ctx context.Context, escalationID string) (*domain.EscalationCase, error) {
	esc, err := c.store.Get(ctx, escalationID)
	if err != nil {
		return nil, err
	}
	if esc.Status != domain.EscalationPending {
		return esc, nil
	}
	esc.Status = domain.EscalationAcknowledged
	esc.UpdatedAt = c.now().UTC()
	if err := c.store.Save(ctx, esc); err != nil {
		return nil, fmt.Errorf("acknowledge escalation: %w", err)
	}
	return esc, nil
}

// Resolve closes an acknowledged case. Resolving twice is a no-op.
func (c *Coordinator) Resolve(ctx context.Context, escalationID string) (*domain.EscalationCase, error) {
	esc, err := c.store.Get(ctx, escalationID)
	if err != nil {
		return nil, err
	}
	if esc.Status == domain.EscalationResolved {
		return esc, nil
	}
	esc.Status = domain.EscalationResolved
	esc.UpdatedAt = c.now().UTC()
	if err := c.store.Save(ctx, esc); err != nil {
		return nil, fmt.Errorf("resolve escalation: %w", err)
	}
	return esc, nil
}

// Get returns a case by id.
func (c *Coordinator) Get(ctx context.Context, escalationID string) (*domain.EscalationCase, error) {
	return c.store.Get(ctx, escalationID)
}

// excerpt truncates to the byte limit without splitting a rune.
func excerpt(s string) string {
	if len(s) <= excerptLimit {
		return s
	}
	cut := excerptLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Package controller orchestrates one conversational turn end to end:
// load session, invoke evaluators, run the breaker and the transition
// engine, persist, audit, and return the next interaction.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/rxflow/internal/logging"
	"github.com/aretw0/rxflow/internal/metrics"
	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/escalation"
	"github.com/aretw0/rxflow/pkg/ports"
	"github.com/aretw0/rxflow/pkg/workflow"
)

// DefaultEvaluatorTimeout bounds every evaluator and backend call.
const DefaultEvaluatorTimeout = 3 * time.Second

// DefaultLockTTL bounds how long a crashed replica can hold a session lock.
const DefaultLockTTL = 30 * time.Second

const confidenceHistoryLimit = 20

// Controller is the session controller. Turns for different sessions run
// fully in parallel; turns for the same session are serialized by the
// per-session lock, which spans load through persistence and audit commit.
type Controller struct {
	sessions    ports.SessionStore
	audit       ports.AuditLog
	engine      *workflow.Engine
	coordinator *escalation.Coordinator
	backend     ports.BackendConnector
	evaluators  map[string]ports.Evaluator
	resolver    ports.Resolver

	locks       *sessionLocks
	distLocker  ports.DistributedLocker
	logger      *slog.Logger
	metrics     *metrics.Metrics
	evalTimeout time.Duration
	lockTTL     time.Duration
	now         func() time.Time
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics wires Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithResolver enables drug-name disambiguation.
func WithResolver(r ports.Resolver) Option {
	return func(c *Controller) { c.resolver = r }
}

// WithDistributedLocker extends session locking across replicas.
func WithDistributedLocker(l ports.DistributedLocker) Option {
	return func(c *Controller) { c.distLocker = l }
}

// WithEvaluatorTimeout overrides the per-call evaluator timeout.
func WithEvaluatorTimeout(d time.Duration) Option {
	return func(c *Controller) { c.evalTimeout = d }
}

// WithLockTTL overrides the distributed session-lock hold limit.
func WithLockTTL(d time.Duration) Option {
	return func(c *Controller) { c.lockTTL = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a session controller.
func New(
	sessions ports.SessionStore,
	audit ports.AuditLog,
	engine *workflow.Engine,
	coordinator *escalation.Coordinator,
	backend ports.BackendConnector,
	evaluators []ports.Evaluator,
	opts ...Option,
) *Controller {
	c := &Controller{
		sessions:    sessions,
		audit:       audit,
		engine:      engine,
		coordinator: coordinator,
		backend:     backend,
		evaluators:  make(map[string]ports.Evaluator, len(evaluators)),
		logger:      logging.NewNop(),
		metrics:     metrics.NewNop(),
		evalTimeout: DefaultEvaluatorTimeout,
		lockTTL:     DefaultLockTTL,
		now:         time.Now,
	}
	for _, ev := range evaluators {
		c.evaluators[ev.Name()] = ev
	}
	for _, opt := range opts {
		opt(c)
	}
	c.locks = newSessionLocks(c.distLocker, c.lockTTL, c.logger)
	return c
}

// ProcessTurn processes one pre-classified conversational turn. Replaying
// a turn (same session, same turn sequence) returns the original output
// without re-applying side effects.
func (c *Controller) ProcessTurn(ctx context.Context, in domain.TurnInput) (domain.TurnOutput, error) {
	if in.SessionID == "" {
		return domain.TurnOutput{Error: domain.ErrorKindNotFound}, fmt.Errorf("session id required")
	}

	var out domain.TurnOutput
	err := c.locks.withLock(ctx, in.SessionID, func(ctx context.Context) error {
		var err error
		out, err = c.processLocked(ctx, in)
		return err
	})
	if err != nil {
		out.SessionID = in.SessionID
		out.Error = errorKind(err)
		c.metrics.TurnsTotal.WithLabelValues("failed").Inc()
		return out, err
	}
	return out, nil
}

// Acknowledge marks an escalation as taken over by a reviewer and drives
// the owning session to ESCALATION_COMPLETE. It is idempotent; an unknown
// id fails with domain.ErrEscalationNotFound.
func (c *Controller) Acknowledge(ctx context.Context, escalationID string) (domain.TurnOutput, error) {
	esc, err := c.coordinator.Acknowledge(ctx, escalationID)
	if err != nil {
		return domain.TurnOutput{Error: domain.ErrorKindNotFound}, err
	}

	out, err := c.ProcessTurn(ctx, domain.TurnInput{
		SessionID:  esc.SessionID,
		Intent:     domain.IntentAcknowledge,
		Confidence: 1.0,
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		// The session expired mid-escalation; the case record is durable
		// and the acknowledgment stands on its own.
		return domain.TurnOutput{
			SessionID:    esc.SessionID,
			NextState:    domain.StateEscalationComplete,
			EscalationID: esc.ID,
		}, nil
	}
	if err != nil {
		return out, err
	}
	out.EscalationID = esc.ID
	return out, nil
}

func (c *Controller) processLocked(ctx context.Context, in domain.TurnInput) (domain.TurnOutput, error) {
	sess, created, err := c.loadOrCreate(ctx, in)
	if err != nil {
		return domain.TurnOutput{}, err
	}

	if in.TurnSeq == 0 {
		in.TurnSeq = sess.TurnSeq + 1
	}

	// Idempotent replay: an already-applied turn returns its original
	// output and appends nothing.
	if !created && in.TurnSeq <= sess.TurnSeq && sess.LastOutput != nil {
		c.metrics.TurnsTotal.WithLabelValues("replayed").Inc()
		return *sess.LastOutput, nil
	}

	startVersion := sess.Version
	work := sess.Clone()

	entities := make(map[string]string, len(in.Entities))
	for k, v := range in.Entities {
		entities[k] = v
	}

	// Disambiguation runs before the engine: it rewrites or questions the
	// incoming drug name, or contributes an escalating verdict.
	extraVerdicts := map[string]domain.Verdict{}
	if done, out, err := c.disambiguate(ctx, in, work, entities, extraVerdicts, startVersion); err != nil {
		return domain.TurnOutput{}, err
	} else if done {
		return out, nil
	}

	out, pending, err := c.runTurn(ctx, in, work, entities, extraVerdicts)
	if err != nil {
		return out, err
	}

	return c.commit(ctx, in, work, out, pending, startVersion)
}

// pendingAudit is an audit record waiting for the session persist to
// succeed before it is appended.
type pendingAudit struct {
	rec domain.AuditRecord
}

// runTurn drives the engine until the session needs user input, a
// reviewer, or reaches a terminal state. Pass-through states
// (SAFETY_CHECK, BACKEND_CHECK, PA_APPROVAL_NEEDED) continue within the
// same turn, emitting one audit record per transition.
func (c *Controller) runTurn(
	ctx context.Context,
	in domain.TurnInput,
	work *domain.Session,
	entities map[string]string,
	extraVerdicts map[string]domain.Verdict,
) (domain.TurnOutput, []pendingAudit, error) {
	out := domain.TurnOutput{SessionID: in.SessionID}
	var pending []pendingAudit

	for {
		verdicts := c.gatherVerdicts(ctx, in, work, entities)
		for k, v := range extraVerdicts {
			verdicts[k] = v
		}

		ev := domain.TransitionEvent{
			Intent:     in.Intent,
			Confidence: in.Confidence,
			Entities:   entities,
			Verdicts:   verdicts,
			TurnSeq:    in.TurnSeq,
		}

		from := work.CurrentState
		next, directives, err := c.engine.Advance(work, ev)
		if err != nil {
			return out, nil, err
		}

		for _, d := range directives {
			switch d.Type {
			case domain.DirectivePersistEntity:
				work.Entities[d.Slot] = d.Value
				delete(work.RetryCounts, d.Slot)
				if d.Slot == domain.SlotPatientID {
					work.PatientRef = d.Value
				}
			case domain.DirectiveClarify:
				slot := d.Slot
				if slot == "" {
					slot = domain.SlotTurn
				}
				work.RetryCounts[slot]++
				out.UserPrompt = d.Prompt
				out.Candidates = d.Candidates
			case domain.DirectivePrompt:
				out.UserPrompt = d.Prompt
			case domain.DirectiveEscalate:
				esc, err := c.coordinator.Open(ctx, work, d.Reason, in.RawUtterance)
				if err != nil {
					return out, nil, fmt.Errorf("open escalation: %w", err)
				}
				work.EscalationID = esc.ID
				out.EscalationID = esc.ID
				c.metrics.BreakerTrips.WithLabelValues(string(d.Reason)).Inc()
			case domain.DirectiveCompleteOrder:
				orderID := d.Value
				if orderID == "" {
					orderID = uuid.NewString()
				}
				work.OrderID = orderID
				out.OrderID = orderID
			case domain.DirectiveAudit:
				pending = append(pending, pendingAudit{rec: domain.AuditRecord{
					ID:        uuid.NewString(),
					SessionID: work.ID,
					FromState: from,
					ToState:   next,
					Trigger:   d.Trigger,
					Actor:     d.Actor,
					TurnSeq:   in.TurnSeq,
					Timestamp: c.now().UTC(),
				}})
			case domain.DirectiveInvokeEvaluator:
				// The next loop iteration (or turn) runs it.
			}
		}

		work.CurrentState = next
		out.NextState = next

		if next == from {
			// Waiting on user input; the turn ends here.
			return out, pending, nil
		}
		if next.Terminal() || next == domain.StateEscalateHandoff {
			return out, pending, nil
		}
		// Pass-through state: keep driving within the same turn.
	}
}

// commit persists the session, then appends the turn's audit records.
// The audit log is written after persistence and before the response is
// returned, so an observer never sees a committed transition without an
// audit entry.
func (c *Controller) commit(
	ctx context.Context,
	in domain.TurnInput,
	work *domain.Session,
	out domain.TurnOutput,
	pending []pendingAudit,
	startVersion int64,
) (domain.TurnOutput, error) {
	work.TurnSeq = in.TurnSeq
	work.ConfidenceHistory = append(work.ConfidenceHistory, in.Confidence)
	if len(work.ConfidenceHistory) > confidenceHistoryLimit {
		work.ConfidenceHistory = work.ConfidenceHistory[len(work.ConfidenceHistory)-confidenceHistoryLimit:]
	}
	work.UpdatedAt = c.now().UTC()
	work.LastOutput = &out

	if err := c.sessions.CompareAndPut(ctx, work, startVersion); err != nil {
		return domain.TurnOutput{}, err
	}

	token := domain.IdempotencyToken(work.ID, in.TurnSeq)
	for i, p := range pending {
		recToken := token
		if i > 0 {
			recToken = fmt.Sprintf("%s:%d", token, i)
		}
		err := c.audit.Append(ctx, p.rec, recToken)
		if errors.Is(err, domain.ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return domain.TurnOutput{}, fmt.Errorf("append audit record: %w", err)
		}
	}

	c.metrics.TurnsTotal.WithLabelValues(turnOutcome(out, pending)).Inc()
	c.logger.Info("turn committed",
		"session_id", work.ID,
		"turn_seq", in.TurnSeq,
		"state", work.CurrentState,
		"transitions", len(pending),
	)
	return out, nil
}

func (c *Controller) loadOrCreate(ctx context.Context, in domain.TurnInput) (*domain.Session, bool, error) {
	sess, err := c.sessions.Get(ctx, in.SessionID)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	if in.Intent == domain.IntentAcknowledge {
		// Acknowledgments never open conversations.
		return nil, false, err
	}

	sess = domain.NewSession(in.SessionID, c.now().UTC())
	// Persist immediately to reserve the ID and establish a version.
	if err := c.sessions.Put(ctx, sess); err != nil {
		return nil, false, fmt.Errorf("initialize session: %w", err)
	}
	sess, err = c.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return nil, false, fmt.Errorf("reload session: %w", err)
	}
	return sess, true, nil
}

// disambiguate resolves an incoming free-text drug name against the
// formulary. Returns done=true when the turn ends in a clarification
// sub-turn (candidates presented, state unchanged).
func (c *Controller) disambiguate(
	ctx context.Context,
	in domain.TurnInput,
	work *domain.Session,
	entities map[string]string,
	extraVerdicts map[string]domain.Verdict,
	startVersion int64,
) (bool, domain.TurnOutput, error) {
	value := entities[domain.SlotDrugName]
	if c.resolver == nil || value == "" || work.CurrentState != domain.StateCollectRequest {
		return false, domain.TurnOutput{}, nil
	}
	// Low confidence escalates before any evaluator or resolver runs.
	if in.Confidence < c.engine.Policy().ConfidenceFloor {
		return false, domain.TurnOutput{}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()

	start := c.now()
	candidates, err := c.resolver.Resolve(callCtx, value)
	c.metrics.EvaluatorDuration.WithLabelValues(domain.EvaluatorDisambiguation).Observe(c.now().Sub(start).Seconds())
	if err != nil {
		extraVerdicts[domain.EvaluatorDisambiguation] = domain.Unavailable(domain.ReasonBackendUnavailable)
		return false, domain.TurnOutput{}, nil
	}

	decision := c.engine.Policy().ConsumeResolution(candidates)
	switch decision.Action {
	case workflow.ResolveAuto:
		entities[domain.SlotDrugName] = decision.Confirmed
		return false, domain.TurnOutput{}, nil

	case workflow.ResolveClarify:
		if work.Retries(domain.SlotDrugName) >= c.engine.Policy().MaxRetries {
			extraVerdicts[domain.EvaluatorDisambiguation] = domain.Verdict{
				Outcome:    domain.OutcomeRequiresEscalation,
				ReasonCode: domain.ReasonMaxRetries,
			}
			return false, domain.TurnOutput{}, nil
		}
		// Clarification sub-turn: present candidates, keep the state.
		work.RetryCounts[domain.SlotDrugName]++
		out := domain.TurnOutput{
			SessionID:  in.SessionID,
			NextState:  work.CurrentState,
			UserPrompt: fmt.Sprintf("I could not find %q. Did you mean one of these?", value),
			Candidates: decision.Candidates,
		}
		committed, err := c.commit(ctx, in, work, out, nil, startVersion)
		if err != nil {
			return true, domain.TurnOutput{}, err
		}
		return true, committed, nil

	default: // ResolveEscalate
		extraVerdicts[domain.EvaluatorDisambiguation] = domain.Verdict{
			Outcome:    domain.OutcomeRequiresEscalation,
			ReasonCode: domain.ReasonDrugUnrecognized,
		}
		return false, domain.TurnOutput{}, nil
	}
}

// gatherVerdicts invokes the evaluators the current state requires.
// Every call is bounded by the evaluator timeout; expiry or failure maps
// to an UNAVAILABLE verdict and is never surfaced as a raw error.
func (c *Controller) gatherVerdicts(
	ctx context.Context,
	in domain.TurnInput,
	work *domain.Session,
	entities map[string]string,
) map[string]domain.Verdict {
	verdicts := make(map[string]domain.Verdict)

	// Below the confidence floor nothing runs: the breaker fires first
	// and no evaluator should be consulted for a doomed turn.
	if in.Confidence < c.engine.Policy().ConfidenceFloor &&
		(work.CurrentState == domain.StateCollectRequest || work.CurrentState == domain.StateSafetyCheck) {
		return verdicts
	}

	req := c.evaluatorRequest(work, entities)

	switch work.CurrentState {
	case domain.StateCollectRequest:
		if !req.Slots.Complete() || req.Slots.Validate() != nil {
			return verdicts
		}
		verdicts[domain.EvaluatorIdentity] = c.invoke(ctx, domain.EvaluatorIdentity, req)

	case domain.StateSafetyCheck:
		// Safety checks are independent; fan out and join before the
		// breaker runs.
		names := []string{domain.EvaluatorAllergy, domain.EvaluatorInteraction, domain.EvaluatorDosage, domain.EvaluatorControlled}
		results := make([]domain.Verdict, len(names))
		g, gctx := errgroup.WithContext(ctx)
		for i, name := range names {
			i, name := i, name
			g.Go(func() error {
				results[i] = c.invoke(gctx, name, req)
				return nil
			})
		}
		_ = g.Wait()
		for i, name := range names {
			verdicts[name] = results[i]
		}

	case domain.StateBackendCheck:
		verdicts[domain.EvaluatorBackend] = c.checkBackend(ctx, req)
	}

	return verdicts
}

func (c *Controller) evaluatorRequest(work *domain.Session, entities map[string]string) ports.EvaluatorRequest {
	merged := make(map[string]string, len(work.Entities)+len(entities))
	for k, v := range work.Entities {
		merged[k] = v
	}
	for k, v := range entities {
		merged[k] = v
	}
	slots, _ := domain.DecodeSlots(merged)

	patientRef := work.PatientRef
	if patientRef == "" {
		patientRef = slots.PatientID
	}
	return ports.EvaluatorRequest{
		SessionID:  work.ID,
		PatientRef: patientRef,
		Slots:      slots,
	}
}

// invoke runs one evaluator under the bounded timeout.
func (c *Controller) invoke(ctx context.Context, name string, req ports.EvaluatorRequest) domain.Verdict {
	eval, ok := c.evaluators[name]
	if !ok {
		c.logger.Error("evaluator not registered", "evaluator", name)
		return domain.Unavailable(domain.ReasonBackendUnavailable)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()

	start := c.now()
	v, err := eval.Evaluate(callCtx, req)
	c.metrics.EvaluatorDuration.WithLabelValues(name).Observe(c.now().Sub(start).Seconds())
	if err != nil {
		c.logger.Warn("evaluator unavailable", "evaluator", name, "err", err)
		return domain.Unavailable(domain.ReasonBackendUnavailable)
	}
	return v
}

// checkBackend wraps the pharmacy backend call into a verdict.
func (c *Controller) checkBackend(ctx context.Context, req ports.EvaluatorRequest) domain.Verdict {
	callCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()

	start := c.now()
	res, err := c.backend.CheckAndReserve(callCtx, req)
	c.metrics.EvaluatorDuration.WithLabelValues(domain.EvaluatorBackend).Observe(c.now().Sub(start).Seconds())
	if err != nil {
		c.logger.Warn("backend unavailable", "err", err)
		return domain.Unavailable(domain.ReasonBackendUnavailable)
	}
	if !res.Available {
		return domain.Unavailable(domain.ReasonBackendUnavailable)
	}
	return domain.Verdict{
		Outcome: domain.OutcomePass,
		Detail: map[string]any{
			"pa_required": res.PARequired,
			"order_id":    res.OrderID,
		},
	}
}

func turnOutcome(out domain.TurnOutput, pending []pendingAudit) string {
	switch {
	case out.EscalationID != "" && out.NextState == domain.StateEscalateHandoff:
		return "escalated"
	case len(pending) == 0:
		return "clarify"
	default:
		return "advanced"
	}
}

func errorKind(err error) domain.ErrorKind {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return domain.ErrorKindInvalidTransition
	case errors.Is(err, domain.ErrStaleSession):
		return domain.ErrorKindStaleSession
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrEscalationNotFound):
		return domain.ErrorKindNotFound
	default:
		return domain.ErrorKindInternal
	}
}

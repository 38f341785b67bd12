package escalation_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/rxflow/pkg/adapters/memory"
	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/escalation"
)

func sessionWithSlots() *domain.Session {
	sess := domain.NewSession("sess-1", time.Now())
	sess.PatientRef = "123456"
	sess.Entities = map[string]string{
		domain.SlotPatientID: "123456",
		domain.SlotDrugName:  "Oxycodone",
		domain.SlotDose:      "5mg",
		domain.SlotQuantity:  "30",
	}
	// Internal bookkeeping that must never reach a reviewer.
	sess.ConfidenceHistory = []float64{0.91, 0.88}
	sess.RetryCounts["dose"] = 2
	return sess
}

func TestTargetRole(t *testing.T) {
	assert.Equal(t, domain.RolePhysician, escalation.TargetRole(domain.ReasonControlled))
	assert.Equal(t, domain.RolePhysician, escalation.TargetRole(domain.ReasonDrugInteraction))
	assert.Equal(t, domain.RolePhysician, escalation.TargetRole(domain.ReasonAllergyMatch))
	assert.Equal(t, domain.RolePhysician, escalation.TargetRole(domain.ReasonDoseOutOfRange))

	assert.Equal(t, domain.RolePA, escalation.TargetRole(domain.ReasonLowConfidence))
	assert.Equal(t, domain.RolePA, escalation.TargetRole(domain.ReasonIdentityUnverified))
	assert.Equal(t, domain.RolePA, escalation.TargetRole(domain.ReasonBackendUnavailable))
	assert.Equal(t, domain.RolePA, escalation.TargetRole(domain.ReasonMaxRetries))
	assert.Equal(t, domain.RolePA, escalation.TargetRole("SOMETHING_NEW"))
}

func TestCoordinator_OpenBuildsAllowListContext(t *testing.T) {
	notifier := memory.NewNotifier(nil)
	coord := escalation.NewCoordinator(memory.NewEscalationStore(), notifier)

	esc, err := coord.Open(context.Background(), sessionWithSlots(), domain.ReasonControlled, "I need my oxy refill please")
	require.NoError(t, err)

	assert.NotEmpty(t, esc.ID)
	assert.Equal(t, "sess-1", esc.SessionID)
	assert.Equal(t, domain.EscalationPending, esc.Status)
	assert.Equal(t, domain.RolePhysician, esc.TargetRole)

	assert.Equal(t, "123456", esc.Context.PatientRef)
	assert.Equal(t, "Oxycodone", esc.Context.DrugName)
	assert.Equal(t, "5mg", esc.Context.Dose)
	assert.Equal(t, "30", esc.Context.Quantity)
	assert.Equal(t, domain.ReasonControlled, esc.Context.Reason)
	assert.Equal(t, "I need my oxy refill please", esc.Context.UtteranceExcerpt)

	// The reviewer channel received the same case.
	delivered := notifier.Delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, esc.ID, delivered[0].ID)
}

func TestCoordinator_OpenTruncatesUtterance(t *testing.T) {
	coord := escalation.NewCoordinator(memory.NewEscalationStore(), memory.NewNotifier(nil))

	long := strings.Repeat("a", 500)
	esc, err := coord.Open(context.Background(), sessionWithSlots(), domain.ReasonLowConfidence, long)
	require.NoError(t, err)
	assert.Len(t, esc.Context.UtteranceExcerpt, 120)
}

func TestCoordinator_OpenTruncatesOnRuneBoundary(t *testing.T) {
	coord := escalation.NewCoordinator(memory.NewEscalationStore(), memory.NewNotifier(nil))

	// The leading byte shifts every following two-byte rune to an odd
	// offset, so a blind cut at the byte limit would split one.
	long := "x" + strings.Repeat("é", 200)
	esc, err := coord.Open(context.Background(), sessionWithSlots(), domain.ReasonLowConfidence, long)
	require.NoError(t, err)

	got := esc.Context.UtteranceExcerpt
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 120)
	assert.Equal(t, 119, len(got))
}

func TestCoordinator_AcknowledgeLifecycle(t *testing.T) {
	coord := escalation.NewCoordinator(memory.NewEscalationStore(), memory.NewNotifier(nil))
	ctx := context.Background()

	esc, err := coord.Open(ctx, sessionWithSlots(), domain.ReasonAllergyMatch, "")
	require.NoError(t, err)

	acked, err := coord.Acknowledge(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationAcknowledged, acked.Status)

	// Acknowledging again is a no-op.
	again, err := coord.Acknowledge(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationAcknowledged, again.Status)

	resolved, err := coord.Resolve(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationResolved, resolved.Status)
}

func TestCoordinator_AcknowledgeUnknownID(t *testing.T) {
	coord := escalation.NewCoordinator(memory.NewEscalationStore(), memory.NewNotifier(nil))

	_, err := coord.Acknowledge(context.Background(), "no-such-case")
	assert.ErrorIs(t, err, domain.ErrEscalationNotFound)
}

func TestCoordinator_NotifierFailureDoesNotFailOpen(t *testing.T) {
	coord := escalation.NewCoordinator(memory.NewEscalationStore(), failingNotifier{})

	esc, err := coord.Open(context.Background(), sessionWithSlots(), domain.ReasonLowConfidence, "")
	require.NoError(t, err)

	// The case is durable even though delivery failed.
	got, err := coord.Get(context.Background(), esc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationPending, got.Status)
}

type failingNotifier struct{}

func (failingNotifier) Notify(ctx context.Context, esc domain.EscalationCase) error {
	return context.DeadlineExceeded
}

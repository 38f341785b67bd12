package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/rxflow/internal/logging"
	"github.com/aretw0/rxflow/pkg/domain"
)

// Notifier implements ports.Notifier by recording deliveries. It stands
// in for the reviewer channel in tests and single-process deployments;
// production wires a real pager/inbox integration here.
type Notifier struct {
	mu        sync.RWMutex
	delivered []domain.EscalationCase
	logger    *slog.Logger
}

// NewNotifier creates a recording notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notifier{logger: logger}
}

// Notify records the delivery.
func (n *Notifier) Notify(ctx context.Context, esc domain.EscalationCase) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, esc)
	n.logger.Info("escalation notified",
		"escalation_id", esc.ID,
		"reason", esc.ReasonCode,
		"target_role", esc.TargetRole,
	)
	return nil
}

// Delivered returns a copy of all deliveries. Used in tests.
func (n *Notifier) Delivered() []domain.EscalationCase {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]domain.EscalationCase(nil), n.delivered...)
}

package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/ports"
)

// Connector is the reference pharmacy backend: in-memory inventory and
// prior-authorization tables behind the availability breaker. A real
// deployment replaces the tables with a pharmacy system client and
// keeps the breaker.
type Connector struct {
	mu        sync.Mutex
	inventory map[string]int
	paDrugs   map[string]bool
	breaker   *Breaker
	logger    *slog.Logger

	// failNext forces the next call to fail, for availability testing.
	failNext int
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithInventory replaces the default inventory table. Keys are
// lowercase drug names, values are units on hand.
func WithInventory(inv map[string]int) ConnectorOption {
	return func(c *Connector) { c.inventory = inv }
}

// WithPriorAuthDrugs replaces the set of drugs requiring prior
// authorization. Keys are lowercase drug names.
func WithPriorAuthDrugs(pa map[string]bool) ConnectorOption {
	return func(c *Connector) { c.paDrugs = pa }
}

// WithConnectorLogger sets the logger.
func WithConnectorLogger(logger *slog.Logger) ConnectorOption {
	return func(c *Connector) { c.logger = logger }
}

// WithBreaker replaces the default availability breaker.
func WithBreaker(b *Breaker) ConnectorOption {
	return func(c *Connector) { c.breaker = b }
}

// NewConnector creates a connector with default stock for the built-in
// formulary and a default breaker.
func NewConnector(opts ...ConnectorOption) *Connector {
	c := &Connector{
		inventory: map[string]int{
			"lisinopril":   500,
			"losartan":     340,
			"atorvastatin": 410,
			"metformin":    620,
			"amoxicillin":  150,
			"warfarin":     90,
			"ibuprofen":    800,
			"sertraline":   275,
			"oxycodone":    40,
			"ketamine":     12,
			"alprazolam":   60,
		},
		paDrugs: map[string]bool{
			"ketamine": true,
		},
		breaker: NewBreaker(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckAndReserve implements ports.BackendConnector. Out-of-stock and
// breaker-open conditions both surface as domain.ErrEvaluatorUnavailable
// so the workflow breaker maps them to BACKEND_UNAVAILABLE uniformly.
func (c *Connector) CheckAndReserve(ctx context.Context, req ports.EvaluatorRequest) (ports.BackendResult, error) {
	if err := c.breaker.Allow(); err != nil {
		c.logger.Warn("backend call shed", "session_id", req.SessionID, "state", c.breaker.State())
		return ports.BackendResult{}, fmt.Errorf("%w: %w", domain.ErrEvaluatorUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		c.breaker.RecordFailure()
		return ports.BackendResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failNext > 0 {
		c.failNext--
		c.breaker.RecordFailure()
		return ports.BackendResult{}, fmt.Errorf("%w: injected backend failure", domain.ErrEvaluatorUnavailable)
	}

	qty, err := strconv.Atoi(req.Slots.Quantity)
	if err != nil || qty <= 0 {
		c.breaker.RecordSuccess()
		return ports.BackendResult{Available: false}, nil
	}

	drug := strings.ToLower(strings.TrimSpace(req.Slots.DrugName))
	stock, known := c.inventory[drug]
	if !known || stock < qty {
		c.breaker.RecordSuccess()
		return ports.BackendResult{Available: false}, nil
	}

	if c.paDrugs[drug] {
		c.breaker.RecordSuccess()
		return ports.BackendResult{Available: true, PARequired: true}, nil
	}

	c.inventory[drug] = stock - qty
	c.breaker.RecordSuccess()
	return ports.BackendResult{
		Available: true,
		OrderID:   uuid.NewString(),
	}, nil
}

// FailNext makes the next n calls fail, for tests and demos of the
// availability breaker.
func (c *Connector) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

// Stock returns the current stock for a drug.
func (c *Connector) Stock(drug string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inventory[strings.ToLower(drug)]
}

// Ping reports backend health for the readiness probe.
func (c *Connector) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.breaker.Allow()
}

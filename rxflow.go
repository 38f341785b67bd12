// Package rxflow is the high-level entry point for the refill workflow
// library. It wires the session controller, escalation coordinator,
// reference evaluators and storage adapters from a single Config.
package rxflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	httpAdapter "github.com/aretw0/rxflow/internal/adapters/http"
	"github.com/aretw0/rxflow/internal/config"
	"github.com/aretw0/rxflow/internal/logging"
	"github.com/aretw0/rxflow/internal/metrics"
	"github.com/aretw0/rxflow/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/rxflow/pkg/adapters/redis"
	"github.com/aretw0/rxflow/pkg/backend"
	"github.com/aretw0/rxflow/pkg/controller"
	"github.com/aretw0/rxflow/pkg/domain"
	"github.com/aretw0/rxflow/pkg/escalation"
	"github.com/aretw0/rxflow/pkg/evaluators"
	"github.com/aretw0/rxflow/pkg/ports"
	"github.com/aretw0/rxflow/pkg/workflow"
)

// Version is the release version reported by the CLI and the API.
var Version = "0.1.0"

// App is an assembled refill workflow application.
type App struct {
	Controller  *controller.Controller
	Coordinator *escalation.Coordinator
	Sessions    ports.SessionStore
	Audit       ports.AuditLog
	Backend     *backend.Connector
	Registry    *prometheus.Registry
	Logger      *slog.Logger

	notifier ports.Notifier
	redis    *goredis.Client
}

// Option overrides parts of the default assembly.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.Logger = logger }
}

// WithNotifier replaces the reviewer-channel notifier.
func WithNotifier(n ports.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// New assembles an App from configuration. With cfg.RedisAddr set the
// session store, audit log, escalation store and session lock run on
// Redis; otherwise everything is in memory.
func New(cfg config.Config, opts ...Option) (*App, error) {
	app := &App{
		Registry: prometheus.NewRegistry(),
		Logger:   logging.New(logging.ParseLevel(cfg.LogLevel)),
	}
	for _, opt := range opts {
		opt(app)
	}

	var (
		escStore ports.EscalationStore
		locker   ports.DistributedLocker
	)
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		app.redis = client

		store := redisAdapter.NewFromClient(client, redisAdapter.WithTTL(cfg.SessionTTL))
		app.Sessions = store
		escStore = store.Escalations()
		app.Audit = redisAdapter.NewAuditLog(client, "")
		locker = redisAdapter.NewLocker(client, "")
	} else {
		app.Sessions = memory.NewSessionStore(memory.WithTTL(cfg.SessionTTL))
		escStore = memory.NewEscalationStore()
		app.Audit = memory.NewAuditLog()
	}

	if app.notifier == nil {
		app.notifier = memory.NewNotifier(app.Logger)
	}

	m := metrics.New(app.Registry)

	coord := escalation.NewCoordinator(escStore, app.notifier,
		escalation.WithLogger(app.Logger),
	)
	app.Coordinator = coord

	formulary := evaluators.DefaultFormulary()
	directory := evaluators.DefaultDirectory()
	app.Backend = backend.NewConnector(
		backend.WithConnectorLogger(app.Logger),
		backend.WithBreaker(backend.NewBreaker(
			backend.WithThreshold(cfg.BackendFailureThreshold),
			backend.WithRecoveryTimeout(cfg.BackendRecoveryTimeout),
		)),
	)

	engine := workflow.NewEngine(workflow.Policy{
		ConfidenceFloor:  cfg.ConfidenceFloor,
		ClarifyCeiling:   cfg.ClarifyCeiling,
		MaxRetries:       cfg.MaxRetries,
		AutoConfirmScore: cfg.AutoConfirmScore,
		ClarifyScore:     cfg.ClarifyScore,
	})

	ctrlOpts := []controller.Option{
		controller.WithLogger(app.Logger),
		controller.WithMetrics(m),
		controller.WithResolver(evaluators.NewFormularyResolver(formulary)),
		controller.WithEvaluatorTimeout(cfg.EvaluatorTimeout),
		controller.WithLockTTL(cfg.LockTTL),
	}
	if locker != nil {
		ctrlOpts = append(ctrlOpts, controller.WithDistributedLocker(locker))
	}

	app.Controller = controller.New(
		app.Sessions,
		app.Audit,
		engine,
		coord,
		app.Backend,
		[]ports.Evaluator{
			evaluators.NewIdentityVerifier(directory),
			evaluators.NewAllergyChecker(directory, formulary),
			evaluators.NewInteractionChecker(directory),
			evaluators.NewDosageChecker(formulary),
			evaluators.NewControlledChecker(formulary),
		},
		ctrlOpts...,
	)
	return app, nil
}

// Handler builds the HTTP API handler for the app.
func (a *App) Handler() http.Handler {
	srv := httpAdapter.NewServer(a.Controller, a.Coordinator, a.Sessions,
		httpAdapter.WithLogger(a.Logger),
		httpAdapter.WithHealthPinger(a.Backend),
		httpAdapter.WithMetricsRegistry(a.Registry),
	)
	return srv.Handler()
}

// ProcessTurn forwards one turn to the controller.
func (a *App) ProcessTurn(ctx context.Context, in domain.TurnInput) (domain.TurnOutput, error) {
	return a.Controller.ProcessTurn(ctx, in)
}

// Close releases held connections.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

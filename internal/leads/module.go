// Package leads provides the lead lifecycle bounded context module.
// This file wires the stage machine, outcome dispatch and HTTP routes together.
package leads

import (
	"time"

	"lead_dispatch_backend/internal/dispatch"
	dispatchrepo "lead_dispatch_backend/internal/dispatch/repository"
	"lead_dispatch_backend/internal/events"
	apphttp "lead_dispatch_backend/internal/http"
	"lead_dispatch_backend/internal/leads/handler"
	"lead_dispatch_backend/internal/leads/lifecycle"
	"lead_dispatch_backend/internal/leads/repository"
	"lead_dispatch_backend/internal/leads/transport"
	"lead_dispatch_backend/platform/config"
	"lead_dispatch_backend/platform/logger"
	"lead_dispatch_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleDeps groups what the leads module needs from the composition root.
// Sheets may be nil when spreadsheet delivery is not configured.
type ModuleDeps struct {
	Pool      *pgxpool.Pool
	EventBus  events.Bus
	Validator *validator.Validator
	Config    config.DispatchConfig
	Sheets    dispatch.SheetAppender
	Log       *logger.Logger
}

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler      *handler.Handler
	orchestrator *Orchestrator
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(deps ModuleDeps) (*Module, error) {
	if err := transport.RegisterValidators(deps.Validator); err != nil {
		return nil, err
	}

	var repo repository.LeadsRepository = repository.New(deps.Pool)
	attempts := dispatchrepo.New(deps.Pool)
	clock := dispatch.Clock(time.Now)

	lifecycleSvc := lifecycle.New(lifecycle.Deps{
		Repo:     repo,
		Timeline: repo,
		Bus:      deps.EventBus,
		Log:      deps.Log,
	})

	resolver := dispatch.NewResolver(attempts)
	ledger := dispatch.NewLedger(attempts, clock)
	executor := dispatch.NewExecutor(dispatch.ExecutorDeps{
		Ledger:   ledger,
		Resolver: resolver,
		Caller:   dispatch.NewHTTPClientCaller(deps.Config),
		Sheets:   deps.Sheets,
		Bus:      deps.EventBus,
		Log:      deps.Log,
		Timeout:  deps.Config.GetDispatchWebhookTimeout(),
	})
	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherDeps{
		Resolver:    resolver,
		Ledger:      ledger,
		Executor:    executor,
		Log:         deps.Log,
		Clock:       clock,
		PhoneRegion: deps.Config.GetPhoneDefaultRegion(),
	})

	orchestrator := NewOrchestrator(OrchestratorDeps{
		Lifecycle:  lifecycleSvc,
		Dispatcher: dispatcher,
		Pipeline:   repo,
		EventBus:   deps.EventBus,
		Log:        deps.Log,
		Config:     deps.Config,
	})

	// Dispatch outcomes show up on the lead timeline
	NewDispatchTimelineRecorder(repo, deps.Log).Subscribe(deps.EventBus)

	return &Module{
		handler:      handler.New(orchestrator, deps.Validator),
		orchestrator: orchestrator,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Orchestrator returns the lifecycle orchestrator for the scheduler and CLI.
func (m *Module) Orchestrator() *Orchestrator {
	return m.orchestrator
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
	m.handler.RegisterDispatchRoutes(ctx.Protected.Group("/dispatch"))

	admin := ctx.Admin.Group("")
	if ctx.AdminRateLimiter != nil {
		admin.Use(ctx.AdminRateLimiter.RateLimit())
	}
	m.handler.RegisterAdminRoutes(admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)

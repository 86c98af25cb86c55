// Package main provides the Errand API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/errandlabs/errand/pkg/config"
	"github.com/errandlabs/errand/pkg/eventbus"
	"github.com/errandlabs/errand/pkg/gateway"
	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/orchestrator"
	"github.com/errandlabs/errand/pkg/planning"
	"github.com/errandlabs/errand/pkg/store"
	"github.com/errandlabs/errand/pkg/web"
)

type API struct {
	logger   *slog.Logger
	cfg      *config.Config
	store    store.Store
	eventBus eventbus.EventBus
	tracer   trace.Tracer
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	cfg *config.Config,
	st store.Store,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:   logger,
		cfg:      cfg,
		store:    st,
		eventBus: eventBus,
		tracer:   tracer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	endpoints := make(map[models.Domain]string, len(a.cfg.Domains))
	for name, url := range a.cfg.Domains {
		endpoints[models.Domain(name)] = url
	}

	agents := gateway.NewHTTPGateway(endpoints)

	engine := orchestrator.New(
		a.cfg,
		a.store,
		agents,
		planning.NewRulePlanner(a.cfg.ConfidenceThreshold),
		planning.NewRuleAnalyzer(),
		planning.NewRuleClassifier(),
		a.eventBus,
		a.tracer,
	)

	handlers := web.NewAPIHandlers(engine, a.store, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Errand API")
	})

	app.Post("/sessions/:sessionId/messages", handlers.PostSessionMessage)

	w := app.Group("/workflows")
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/confirm", handlers.ConfirmWorkflow)
	w.Post("/:id/deny", handlers.DenyWorkflow)
	w.Post("/:id/resume", handlers.ResumeWorkflow)
	w.Delete("/:id", handlers.CancelWorkflow)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

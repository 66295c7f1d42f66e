package web

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/veracitybio/veracity/pkg/models"
	"github.com/veracitybio/veracity/pkg/persistence"
)

// Runner starts investigations. Satisfied by *investigation.Manager.
type Runner interface {
	Create(ctx context.Context, query string, unitRefs []string) (*models.Investigation, error)
	Run(ctx context.Context, investigation *models.Investigation) error
}

type APIHandlers struct {
	persistence persistence.Persistence
	runner      Runner
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	p persistence.Persistence,
	runner Runner,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandlers{
		persistence: p,
		runner:      runner,
		validator:   validate,
		logger:      logger.With("module", "web"),
	}
}

// RegisterRoutes mounts the investigations API onto the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.Health)

	group := app.Group("/investigations")
	group.Get("/", h.GetInvestigations)
	group.Post("/", h.CreateInvestigation)
	group.Get("/:id", h.GetInvestigation)
	group.Delete("/:id", h.DeleteInvestigation)
}

func (h *APIHandlers) Health(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *APIHandlers) GetInvestigations(c fiber.Ctx) error {
	investigations, err := h.persistence.Investigations(c.Context())
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(fiber.Map{
		"investigations": investigations,
		"total_count":    len(investigations),
	})
}

func (h *APIHandlers) GetInvestigation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Investigation ID is required")
	}

	investigation, err := h.persistence.InvestigationByID(c.Context(), id)
	if err != nil {
		if persistence.IsInvestigationNotFound(err) {
			return notFound(c, "Investigation not found")
		}

		return internalError(c, err)
	}

	return c.JSON(investigation)
}

// CreateInvestigation persists a pending investigation and launches the
// pipeline in the background; the client polls the record for progress.
func (h *APIHandlers) CreateInvestigation(c fiber.Ctx) error {
	var req CreateInvestigationRequest

	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	investigation, err := h.runner.Create(c.Context(), req.Query, req.UnitRefs)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	// Snapshot for the response; the background run mutates the record.
	pending := *investigation

	go func() {
		ctx := context.WithoutCancel(c.Context())
		if err := h.runner.Run(ctx, investigation); err != nil {
			h.logger.Error("Background investigation run failed",
				"investigation_id", investigation.ID, "error", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(pending)
}

func (h *APIHandlers) DeleteInvestigation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Investigation ID is required")
	}

	if err := h.persistence.DeleteInvestigation(c.Context(), id); err != nil {
		return handlePersistenceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

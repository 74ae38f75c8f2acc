package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/livechat-service/internal/api/dto"
	"github.com/spec-kit/livechat-service/internal/auth"
	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/service"
	apperrors "github.com/spec-kit/livechat-service/pkg/util/errorutil"
)

// TriggersHandler manages dashboard trigger configuration.
type TriggersHandler struct {
	service *service.TriggerService
}

// NewTriggersHandler constructs handler.
func NewTriggersHandler(triggerService *service.TriggerService) *TriggersHandler {
	return &TriggersHandler{service: triggerService}
}

// List GET /dashboard/triggers.
func (h *TriggersHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	triggers, err := h.service.ListByBusiness(c.Context(), principal.BusinessID)
	if err != nil {
		return err
	}
	items := make([]dto.TriggerResponse, 0, len(triggers))
	for i := range triggers {
		items = append(items, triggerResponse(&triggers[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /dashboard/triggers.
func (h *TriggersHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.TriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	trigger, err := h.service.Create(c.Context(), principal.BusinessID, triggerInput(req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": triggerResponse(trigger)})
}

// Update PUT /dashboard/triggers/:id.
func (h *TriggersHandler) Update(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.TriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	trigger, err := h.service.Update(c.Context(), principal.BusinessID, c.Params("id"), triggerInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": triggerResponse(trigger)})
}

// Delete DELETE /dashboard/triggers/:id.
func (h *TriggersHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	if err := h.service.Delete(c.Context(), principal.BusinessID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

func triggerInput(req dto.TriggerRequest) service.TriggerInput {
	return service.TriggerInput{
		Name:         req.Name,
		Identifier:   req.Identifier,
		Action:       req.Action,
		Message:      req.Message,
		Conditions:   req.Conditions,
		OnlyIfOnline: req.OnlyIfOnline,
		ExecuteOnce:  req.ExecuteOnce,
		DelaySeconds: req.DelaySeconds,
	}
}

func triggerResponse(trigger *domain.Trigger) dto.TriggerResponse {
	return dto.TriggerResponse{
		ID:           trigger.ID,
		Name:         trigger.Name,
		Identifier:   trigger.Identifier,
		Action:       trigger.Action,
		Message:      trigger.Message,
		Conditions:   trigger.Conditions,
		OnlyIfOnline: trigger.OnlyIfOnline,
		ExecuteOnce:  trigger.ExecuteOnce,
		DelaySeconds: trigger.DelaySeconds,
		CreatedAt:    trigger.CreatedAt,
		UpdatedAt:    trigger.UpdatedAt,
	}
}

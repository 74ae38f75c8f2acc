package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/livechat-service/internal/api/dto"
	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/repository"
	"github.com/spec-kit/livechat-service/internal/service"
	apperrors "github.com/spec-kit/livechat-service/pkg/util/errorutil"
)

// WidgetHandler serves the embedded chat widget. Every endpoint is
// authenticated only by the tenant API key carried in the api_key query
// parameter.
type WidgetHandler struct {
	messages   *service.MessageService
	sessions   *service.SessionService
	triggers   *service.TriggerService
	businesses repository.BusinessRepository
	maxUpload  int64
}

// NewWidgetHandler constructs handler.
func NewWidgetHandler(messages *service.MessageService, sessions *service.SessionService, triggers *service.TriggerService, businesses repository.BusinessRepository, maxUpload int64) *WidgetHandler {
	return &WidgetHandler{
		messages:   messages,
		sessions:   sessions,
		triggers:   triggers,
		businesses: businesses,
		maxUpload:  maxUpload,
	}
}

// GetMessages GET /widget/messages.
func (h *WidgetHandler) GetMessages(c *fiber.Ctx) error {
	view, err := h.messages.GetForCustomer(c.Context(), c.Query("api_key"), c.Query("sid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": customerMessagesResponse(view)})
}

// SendMessage POST /widget/messages. Text sends arrive as JSON; image and
// audio sends as multipart with the binary in the "file" field.
func (h *WidgetHandler) SendMessage(c *fiber.Ctx) error {
	business, err := h.resolveBusiness(c)
	if err != nil {
		return err
	}

	input := service.SendInput{
		BusinessID: business.ID,
		Sender:     domain.SenderCustomer,
	}

	if strings.HasPrefix(c.Get("Content-Type"), "multipart/form-data") {
		input.SID = c.FormValue("sid")
		input.Content = c.FormValue("content")
		input.ContentType = domain.MessageContentType(c.FormValue("content_type"))
		if email := strings.TrimSpace(c.FormValue("customer_email")); email != "" {
			input.CustomerEmail = &email
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return apperrors.NewValidationError("file field required for multipart sends", nil)
		}
		if h.maxUpload > 0 && fileHeader.Size > h.maxUpload {
			return apperrors.NewValidationError("file too large", map[string]any{"max_bytes": h.maxUpload})
		}
		file, err := fileHeader.Open()
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		defer file.Close()
		input.Upload = &service.UploadInput{Filename: fileHeader.Filename, Reader: file}
	} else {
		var req dto.SendWidgetMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		input.SID = req.SID
		input.Content = req.Content
		input.ContentType = req.ContentType
		input.CustomerEmail = req.CustomerEmail
	}

	msg, err := h.messages.Send(c.Context(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// CaptureEmail POST /widget/email.
func (h *WidgetHandler) CaptureEmail(c *fiber.Ctx) error {
	business, err := h.resolveBusiness(c)
	if err != nil {
		return err
	}
	var req dto.UpdateEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.SID) == "" {
		return apperrors.NewValidationError("sid required", nil)
	}
	if err := h.sessions.UpdateEmail(c.Context(), business.ID, req.SID, req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"sid": req.SID, "email": strings.ToLower(strings.TrimSpace(req.Email))}})
}

// RateConversation POST /widget/rating.
func (h *WidgetHandler) RateConversation(c *fiber.Ctx) error {
	business, err := h.resolveBusiness(c)
	if err != nil {
		return err
	}
	var req dto.RateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.SID) == "" {
		return apperrors.NewValidationError("sid required", nil)
	}
	if err := h.sessions.SetRating(c.Context(), business.ID, req.SID, req.Rating); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"sid": req.SID, "rating": req.Rating}})
}

// ListTriggers GET /widget/triggers.
func (h *WidgetHandler) ListTriggers(c *fiber.Ctx) error {
	triggers, err := h.triggers.ListForWidget(c.Context(), c.Query("api_key"))
	if err != nil {
		return err
	}
	items := make([]dto.WidgetTriggerResponse, 0, len(triggers))
	for i := range triggers {
		items = append(items, widgetTriggerResponse(&triggers[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *WidgetHandler) resolveBusiness(c *fiber.Ctx) (*domain.Business, error) {
	apiKey := c.Query("api_key")
	if apiKey == "" {
		return nil, apperrors.NewValidationError("api_key required", nil)
	}
	business, err := h.businesses.GetByAPIKey(c.Context(), apiKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("business", map[string]any{"api_key": apiKey})
		}
		return nil, apperrors.MapError(err)
	}
	return business, nil
}

func customerMessagesResponse(view *service.CustomerView) dto.CustomerMessagesResponse {
	msgs := make([]dto.MessageResponse, 0, len(view.Messages))
	for i := range view.Messages {
		msgs = append(msgs, messageResponse(&view.Messages[i]))
	}
	return dto.CustomerMessagesResponse{
		Messages:      msgs,
		CustomerEmail: view.CustomerEmail,
		IsResolved:    view.IsResolved,
		CurrentAgent:  view.CurrentAgent,
	}
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:          msg.ID,
		SessionID:   msg.SessionID,
		Sender:      msg.Sender,
		SenderID:    msg.SenderID,
		ContentType: msg.ContentType,
		Content:     msg.Content,
		IsRead:      msg.IsRead,
		CreatedAt:   msg.CreatedAt,
	}
}

func widgetTriggerResponse(trigger *domain.Trigger) dto.WidgetTriggerResponse {
	return dto.WidgetTriggerResponse{
		Identifier:   trigger.Identifier,
		Action:       trigger.Action,
		Conditions:   trigger.Conditions,
		OnlyIfOnline: trigger.OnlyIfOnline,
		DelaySeconds: trigger.DelaySeconds,
	}
}

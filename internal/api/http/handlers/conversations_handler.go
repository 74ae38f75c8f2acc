package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/livechat-service/internal/api/dto"
	"github.com/spec-kit/livechat-service/internal/auth"
	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/presence"
	"github.com/spec-kit/livechat-service/internal/service"
	apperrors "github.com/spec-kit/livechat-service/pkg/util/errorutil"
)

// ConversationsHandler serves the agent dashboard inbox.
type ConversationsHandler struct {
	messages *service.MessageService
	sessions *service.SessionService
	registry *presence.Registry
}

// NewConversationsHandler constructs handler.
func NewConversationsHandler(messages *service.MessageService, sessions *service.SessionService, registry *presence.Registry) *ConversationsHandler {
	return &ConversationsHandler{messages: messages, sessions: sessions, registry: registry}
}

// List GET /dashboard/conversations.
func (h *ConversationsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	rows, err := h.messages.FetchConversations(c.Context(), principal.BusinessID)
	if err != nil {
		return err
	}
	if rows == nil {
		// No sessions at all yet; distinct from sessions without messages.
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": rows})
}

// GetMessages GET /dashboard/conversations/:id/messages.
func (h *ConversationsHandler) GetMessages(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	msgs, err := h.messages.FetchBySession(c.Context(), principal.BusinessID, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, messageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SendMessage POST /dashboard/conversations/:id/messages.
func (h *ConversationsHandler) SendMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.SendAgentMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	session, err := h.sessions.GetByID(c.Context(), principal.BusinessID, c.Params("id"))
	if err != nil {
		return err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = domain.ContentTypeText
	}
	agentID := principal.Agent.ID
	msg, err := h.messages.Send(c.Context(), service.SendInput{
		BusinessID:  principal.BusinessID,
		Sender:      domain.SenderBusiness,
		SenderID:    &agentID,
		ContentType: contentType,
		Content:     req.Content,
		SID:         session.SID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// MarkRead POST /dashboard/messages/read. Accepts a comma-separated id list.
func (h *ConversationsHandler) MarkRead(c *fiber.Ctx) error {
	if _, ok := auth.PrincipalFromContext(c); !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.MarkReadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.messages.MarkRead(c.Context(), strings.Split(req.MessageIDs, ",")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"marked": true}})
}

// UpdateMeta PATCH /dashboard/conversations/:id.
func (h *ConversationsHandler) UpdateMeta(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.UpdateSessionMetaRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	session, err := h.sessions.UpdateMeta(c.Context(), principal.BusinessID, c.Params("id"), service.SessionMetaInput{
		Segments: req.Segments,
		Notes:    req.Notes,
	}, principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionResponse(session)})
}

// Resolve POST /dashboard/conversations/:id/resolve.
func (h *ConversationsHandler) Resolve(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.ResolveSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.sessions.SetResolved(c.Context(), principal.BusinessID, c.Params("id"), req.Resolved, principal.Agent.ID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"resolved": req.Resolved}})
}

// LiveVisitors GET /dashboard/visitors/live.
func (h *ConversationsHandler) LiveVisitors(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	visitors := h.registry.LiveVisitors(principal.BusinessID)
	items := make([]dto.LiveVisitorResponse, 0, len(visitors))
	for _, v := range visitors {
		items = append(items, dto.LiveVisitorResponse{
			SID:         v.SID,
			UserAgent:   v.UserAgent,
			ConnectedAt: v.ConnectedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func sessionResponse(session *domain.Session) dto.SessionResponse {
	return dto.SessionResponse{
		ID:              session.ID,
		SID:             session.SID,
		CustomerEmail:   session.CustomerEmail,
		AssignedAgentID: session.AssignedAgentID,
		IsResolved:      session.IsResolved,
		Notes:           session.Notes,
		Segments:        session.Segments,
		Country:         session.Country,
		City:            session.City,
		Browser:         session.Browser,
		OS:              session.OS,
		Rating:          session.Rating,
		LastActive:      session.LastActive,
		CreatedAt:       session.CreatedAt,
	}
}

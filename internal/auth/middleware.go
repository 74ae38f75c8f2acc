package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/livechat-service/internal/domain"
	"github.com/spec-kit/livechat-service/internal/repository"
	apperrors "github.com/spec-kit/livechat-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated agent acting for a business.
type Principal struct {
	BusinessID string
	Agent      *domain.Agent
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	agents repository.AgentRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, agents repository.AgentRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, agents: agents}
}

// Handle enforces authentication for dashboard routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.Subject != domain.SubjectTypeAgent || claims.BusinessID == "" {
		return apperrors.NewUnauthorized("agent token required")
	}

	agent, err := m.agents.GetByID(c.Context(), claims.SubjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("agent not found")
		}
		return apperrors.MapError(err)
	}
	if agent.BusinessID != claims.BusinessID {
		return apperrors.NewForbidden("agent does not belong to business")
	}

	c.Locals(principalKey, &Principal{BusinessID: claims.BusinessID, Agent: agent})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

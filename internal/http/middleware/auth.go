package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/auth"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/interface/http/response"
	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// Ключи gin.Context.
const (
	ContextUserIDKey = "user_id"
	ContextActorKey  = "actor"
)

// RoleRecorder запоминает роли пользователей, пришедших с валидным токеном.
// Каталог ролей нужен для проверки назначаемых медиаторов и арбитров.
type RoleRecorder interface {
	Remember(ctx context.Context, id uuid.UUID, role valueobject.Role) error
}

// AuthMiddleware проверяет JWT access токен и кладёт Actor в контекст.
// recorder может быть nil.
func AuthMiddleware(tokens *auth.TokenManager, recorder RoleRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(c, "требуется авторизация")
			c.Abort()
			return
		}

		actor, err := tokens.ParseAccess(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			response.Unauthorized(c, "токен невалиден")
			c.Abort()
			return
		}

		if recorder != nil {
			if err := recorder.Remember(c.Request.Context(), actor.ID, actor.Role); err != nil {
				logger.WithComponent("auth").WithError(err).
					WithField("user_id", actor.ID).
					Warn("не удалось сохранить роль пользователя")
			}
		}

		c.Set(ContextUserIDKey, actor.ID)
		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// ActorFrom достаёт Actor, положенный AuthMiddleware.
func ActorFrom(c *gin.Context) (valueobject.Actor, bool) {
	v, ok := c.Get(ContextActorKey)
	if !ok {
		return valueobject.Actor{}, false
	}
	actor, ok := v.(valueobject.Actor)
	return actor, ok
}

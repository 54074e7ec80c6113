package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/response"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextUserIDKey       = "userID"
	ContextRoleKey         = "role"
	ContextTechnicianIDKey = "technicianID"
)

// AuthMiddleware проверяет JWT access токен.
func AuthMiddleware(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			response.Unauthorized(c, "требуется авторизация")
			return
		}

		raw := strings.TrimPrefix(auth, "Bearer ")
		userID, role, err := tokens.ParseAccess(raw)
		if err != nil || userID == uuid.Nil {
			response.Unauthorized(c, "токен невалиден")
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRoleKey, role)
		c.Next()
	}
}

// RequireRole пропускает только пользователей с одной из ролей.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRoleKey)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "недостаточно прав")
	}
}

// TechnicianLookup находит профиль мастера по пользователю.
type TechnicianLookup interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*entity.Technician, error)
}

// TechnicianResolver кладёт в контекст ID профиля мастера текущего пользователя.
// Пользователь без профиля получает 403.
func TechnicianResolver(lookup TechnicianLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Unauthorized(c, "требуется авторизация")
			return
		}
		tech, err := lookup.GetByUser(c.Request.Context(), userID)
		if err != nil {
			if apperror.IsNotFound(err) {
				response.Forbidden(c, "сначала зарегистрируйтесь как мастер")
				return
			}
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextTechnicianIDKey, tech.ID)
		c.Next()
	}
}

// UserID возвращает пользователя из контекста.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func Role(c *gin.Context) string {
	return c.GetString(ContextRoleKey)
}

// TechnicianID возвращает профиль мастера, если его положил TechnicianResolver.
func TechnicianID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextTechnicianIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// OptionalTechnician кладёт в контекст профиль мастера, если он есть.
// Используется на маршрутах, доступных всем ролям.
func OptionalTechnician(lookup TechnicianLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if ok && Role(c) == service.RoleTechnician {
			if tech, err := lookup.GetByUser(c.Request.Context(), userID); err == nil {
				c.Set(ContextTechnicianIDKey, tech.ID)
			}
		}
		c.Next()
	}
}

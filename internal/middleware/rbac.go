package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-admin-api/internal/models"
	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
	"github.com/noah-isme/training-admin-api/pkg/response"
)

// RequireRoles rejects callers whose token role is not listed. SUPERADMIN always passes.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles)+1)
	allowed[models.RoleSuperAdmin] = struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not perform this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Writers is the role set allowed to mutate enquiries, batches and schedules.
var Writers = []models.UserRole{models.RoleAdmin, models.RoleCoordinator}

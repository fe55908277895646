package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/response"
)

// RequireRole checks that the authenticated user holds one of the given roles.
// Must run after RequireAuth or RequireWSAuth.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, response.ErrAuthMissing)
			return
		}

		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}

		response.AbortFail(c, response.ErrForbidden)
	}
}

package httpapi

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/gin-gonic/gin"
)

const (
	userIDKey   = "userID"
	clientIDKey = "clientID"
)

func userIDFromContext(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func clientIDFromContext(c *gin.Context) string {
	return c.GetString(clientIDKey)
}

// auth resolves the bearer token to a user id and records the caller's
// client id, which attributes the request's writes.
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorBody{Error: "missing token"})
			return
		}

		userID, err := s.users.Authenticate(strings.TrimSpace(h[7:]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorBody{Error: "invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Set(clientIDKey, strings.TrimSpace(c.GetHeader(common.ClientIDHeaderName)))
		c.Next()
	}
}

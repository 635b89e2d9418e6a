package handlers

import "github.com/gin-gonic/gin"

// userIDKey is set by the auth middleware after token validation.
const userIDKey = "userID"

// getUserID returns the authenticated user's ID from the gin context, or 0
// when the request carries no authenticated user.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get(userIDKey)
	if !exists {
		return 0
	}
	id, ok := val.(uint64)
	if !ok {
		return 0
	}
	return id
}

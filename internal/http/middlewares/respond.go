package middlewares

import "github.com/gin-gonic/gin"

// abortWithError writes the standard error envelope and stops the chain.
func abortWithError(c *gin.Context, status int, message string) {
	body := gin.H{
		"status":  "error",
		"message": message,
	}

	if id := c.GetString(CtxRequestID); id != "" {
		body["request_id"] = id
	}

	c.AbortWithStatusJSON(status, body)
}

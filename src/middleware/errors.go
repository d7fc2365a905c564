package middleware

import "github.com/gin-gonic/gin"

// abortWithError stops the chain with the API's error body
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": message,
		"code":  code,
	})
}

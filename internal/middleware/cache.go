package middleware

import "github.com/gin-gonic/gin"

// NoStore forbids caching. Exam state and results are per user and change
// while an exam is in progress.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

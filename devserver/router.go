package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const contextKeyUserID = "user_id"

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	api := r.Group("/api")
	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api.POST("/auth/register", s.handleRegister)
	api.POST("/token/get-token", s.handleGetToken)
	api.POST("/token/refresh", s.handleRefresh)

	lectures := api.Group("/lectures")
	lectures.Use(s.bearerAuth())
	{
		lectures.GET("", s.handleListLectures)
		lectures.POST("/upload", s.handleUpload)
		lectures.GET("/:id", s.handleGetLecture)
		lectures.GET("/:id/analysis", s.handleGetAnalysis)
	}
	return r
}

// detail writes an error body the way the backend does.
func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (s *Server) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			detail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims, err := s.tokens.validate(parts[1], tokenTypeAccess)
		if err != nil {
			detail(c, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		c.Set(contextKeyUserID, claims.Subject)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Dev backend request")
	}
}

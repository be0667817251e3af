package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Crispemo/simulia-session/internal/config"
	"github.com/Crispemo/simulia-session/internal/handler"
	"github.com/Crispemo/simulia-session/internal/middleware"
	"github.com/Crispemo/simulia-session/internal/response"
	"github.com/Crispemo/simulia-session/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Session  *handler.SessionHandler
	Question *handler.QuestionHandler
	Monitor  *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Auth group (public endpoints plus authenticated profile).
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
	}

	// Session group (JWT).
	sessions := router.Group("/api/v1/sessions")
	sessions.Use(middleware.RequireJWT(authService))
	{
		sessions.POST("/progress", handlers.Session.SaveProgress)
		sessions.GET("/resume", handlers.Session.Resume)
		sessions.POST("/finalize", handlers.Session.Finalize)
		sessions.GET("", handlers.Session.History)
	}

	// Question group (JWT).
	questions := router.Group("/api/v1/questions")
	questions.Use(middleware.RequireJWT(authService))
	{
		questions.GET("", handlers.Question.List)
		questions.POST("", handlers.Question.Create)
		questions.GET("/paper", handlers.Question.Paper)
	}

	// WebSocket group (query-token auth).
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/monitor", handlers.Monitor.EventStream)
	}

	return router
}

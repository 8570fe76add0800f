package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/handler"
	"github.com/yuresilva1/inss-study-hub/internal/metrics"
	"github.com/yuresilva1/inss-study-hub/internal/middleware"
	"github.com/yuresilva1/inss-study-hub/internal/response"
	"github.com/yuresilva1/inss-study-hub/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Subject *handler.SubjectHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID and access log on every response.
	router.Use(response.RequestIDMiddleware(log))
	router.Use(metrics.Middleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	// ─── 1. Exams (JWT) ────────────────────────────────────────────────
	exams := router.Group("/api/v1/exams")
	exams.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		create := []gin.HandlerFunc{handlers.Exam.CreateExam}
		if cfg.CreateRatePerMinute > 0 {
			limiter := middleware.NewRateLimiter(cfg.CreateRatePerMinute)
			create = append([]gin.HandlerFunc{limiter.Middleware()}, create...)
		}
		exams.POST("", create...)
		exams.GET("", handlers.Exam.ListHistory)
		exams.GET("/:exam_id", handlers.Exam.GetExam)
		exams.GET("/:exam_id/result", handlers.Exam.GetResult)
		exams.POST("/:exam_id/finalize", handlers.Exam.FinalizeExam)
	}

	// ─── 2. Subject catalog (JWT) ──────────────────────────────────────
	subjects := router.Group("/api/v1/subjects")
	subjects.Use(middleware.RequireJWT(authService))
	{
		subjects.GET("", handlers.Subject.GetAll)
	}

	// ─── 3. System (JWT) ───────────────────────────────────────────────
	system := router.Group("/api/v1/system")
	system.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		system.GET("/status", handlers.System.Status)
	}

	// ─── 4. WebSocket (token in query) ─────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/exams/:exam_id/session", handlers.WS.ExamSession)
	}

	return router
}

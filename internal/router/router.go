package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Attempt *handler.AttemptHandler
	Seal    *handler.SealHandler
	Grading *handler.GradingHandler
	Monitor *handler.MonitorHandler
	Exam    *handler.ExamHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// guestLimiter may be nil to leave guest token issuance unthrottled.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	guestLimiter *middleware.RateLimiter,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.GinMode != gin.ReleaseMode {
		router.Use(gin.Logger())
	}

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

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// ─── Operational ───────────────────────────────────────────────────
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	if guestLimiter != nil {
		auth.Use(guestLimiter.Middleware())
	}
	{
		auth.POST("/guest", handlers.Auth.GuestToken)
	}

	// ─── 2. Taker Group (Student or Guest JWT) ─────────────────────────
	attempts := router.Group("/api/v1/attempts")
	attempts.Use(
		middleware.RequireTakerJWT(authService),
		middleware.NoStore(),
		middleware.Brotli(),
	)
	{
		attempts.POST("/start", handlers.Attempt.Start)
		attempts.GET("/resume-requests/:request_id", handlers.Seal.GetResumeRequestStatus)
		attempts.GET("/:attempt_id", handlers.Attempt.GetState)
		attempts.POST("/:attempt_id/responses", handlers.Attempt.RecordResponse)
		attempts.POST("/:attempt_id/tab-switch", handlers.Attempt.LogTabSwitch)
		attempts.POST("/:attempt_id/submit", handlers.Attempt.Submit)
		attempts.POST("/:attempt_id/seal", handlers.Seal.Seal)
		attempts.POST("/:attempt_id/auto-submit-sealed", handlers.Seal.AutoSubmitSealed)
		attempts.POST("/:attempt_id/resume-requests", handlers.Seal.RequestResume)
	}

	// ─── 3. WebSocket Group (Taker WS Auth) ────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireTakerWSAuth(authService))
	{
		ws.GET("/attempts/:attempt_id/events", handlers.WS.AttemptEvents)
	}

	// ─── 4. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService), middleware.NoStore())
	{
		// Resume requests
		adminAPI.GET("/exams/:id/resume-requests",
			middleware.RequirePermission(model.PermissionAttemptsResume),
			handlers.Seal.ListPending,
		)
		adminAPI.POST("/resume-requests/:id/approve",
			middleware.RequirePermission(model.PermissionAttemptsResume),
			handlers.Seal.Approve,
		)
		adminAPI.POST("/resume-requests/:id/decline",
			middleware.RequirePermission(model.PermissionAttemptsResume),
			handlers.Seal.Decline,
		)

		// Grading
		adminAPI.POST("/responses/grade",
			middleware.RequirePermission(model.PermissionAttemptsGrade),
			handlers.Grading.GradeBulk,
		)
		adminAPI.POST("/responses/:id/grade",
			middleware.RequirePermission(model.PermissionAttemptsGrade),
			handlers.Grading.GradeResponse,
		)
		adminAPI.POST("/attempts/:id/recalculate",
			middleware.RequirePermission(model.PermissionAttemptsGrade),
			handlers.Grading.Recalculate,
		)
		adminAPI.POST("/attempts/:id/finalize",
			middleware.RequirePermission(model.PermissionAttemptsGrade),
			handlers.Grading.Finalize,
		)

		// Live monitor; graders may watch too
		adminAPI.GET("/exams/:id/monitor",
			middleware.RequireAnyPermission(model.PermissionAttemptsMonitor, model.PermissionAttemptsGrade),
			handlers.Monitor.MonitorExamSSE,
		)

		// Exam cache
		adminAPI.POST("/exams/:id/refresh-cache",
			middleware.RequirePermission(model.PermissionExamsPublish),
			handlers.Exam.RefreshExamCache,
		)
	}

	return router
}

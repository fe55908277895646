package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/handler"
	"github.com/edukit/examgate-backend/internal/middleware"
	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/response"
	"github.com/edukit/examgate-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Execute *handler.ExecuteHandler
	Status  *handler.StatusHandler
	WS      *handler.WSHandler
	Health  *handler.HealthHandler
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
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Exam-Token"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", handlers.Health.Check)

	// Token fetch gets its own limiter: every participant polls it while
	// waiting for the exam to open.
	tokenLimiter := middleware.NewRateLimiter(30, time.Minute)

	execute := router.Group("/exam-online/execute")
	execute.Use(middleware.RequireAuth(authService))
	{
		student := execute.Group("")
		student.Use(middleware.RequireRole(model.RoleStudent))
		{
			student.GET("/token/:examId", tokenLimiter.Middleware(), handlers.Execute.GetToken)
			student.POST("/start/:examId", handlers.Execute.StartExam)
			student.GET("/record/:examRecordId", handlers.Execute.GetRecord)
			student.POST("/answer", handlers.Execute.SaveAnswer)
			student.GET("/progress/:examRecordId", handlers.Execute.GetProgress)
			student.GET("/answered/:examRecordId", handlers.Execute.GetAnsweredQuestions)
			student.POST("/submit/:examRecordId", handlers.Execute.SubmitExam)
		}

		execute.POST("/status/:examId",
			middleware.RequireRole(model.RoleAdmin, model.RoleTeacher),
			handlers.Status.Transition,
		)
	}

	ws := router.Group("/ws")
	ws.Use(middleware.RequireWSAuth(authService), middleware.RequireRole(model.RoleStudent))
	{
		ws.GET("/exam", handlers.WS.Stream)
	}

	return router
}

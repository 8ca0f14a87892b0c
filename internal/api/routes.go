package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"hirehub/internal/api/middleware"
	"hirehub/internal/auth"
	"hirehub/internal/config"
	"hirehub/internal/database"
	"hirehub/internal/realtime"
	"hirehub/internal/service"
)

// Dependencies 汇总路由所需的外部资源。
type Dependencies struct {
	Config  *config.Config
	DB      *gorm.DB
	Auth    *auth.AuthService
	Redis   *redis.Client
	Queue   TaskEnqueuer
	Storage ObjectStorage
	Hub     *realtime.Hub
	Logger  *slog.Logger
	// Applications 可注入带自定义时钟的服务，测试用；为空时按 DB 构造。
	Applications *service.ApplicationService
}

// RegisterRoutes 在 /api 下注册全部业务路由。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	uploads := newUploadGuard(cfg.Clamd.Addr, cfg.Limits.UploadMaxBytes)

	applications := deps.Applications
	if applications == nil {
		applications = service.NewApplicationService(deps.DB)
	}

	authHandler := NewAuthHandler(deps.DB, deps.Auth, deps.Redis, deps.Queue, deps.Storage, deps.Logger, cfg.API, cfg.Limits)
	userHandler := NewUserHandler(service.NewUserService(deps.DB), deps.Storage, uploads)
	companyHandler := NewCompanyHandler(service.NewCompanyService(deps.DB), deps.Storage, uploads)
	jobHandler := NewJobHandler(service.NewJobService(deps.DB), deps.Storage)
	applicationHandler := NewApplicationHandler(applications, deps.Storage, deps.Queue)
	savedJobHandler := NewSavedJobHandler(service.NewSavedJobService(deps.DB), deps.Storage)
	messageHandler := NewMessageHandler(service.NewMessageService(deps.DB), deps.Storage, uploads, deps.Hub, deps.Hub)
	wsHandler := NewWsHandler(deps.Hub, deps.Auth, deps.Logger, cfg.API.Origins(), cfg.Limits.ChatEventsPerSec)

	authMiddleware := middleware.AuthMiddleware(deps.Auth)
	// 改密、查看自身与登出之外的登录接口都要求已完成首次改密
	passwordGate := middleware.RequirePasswordChangeCompleted()
	recruiterOnly := middleware.RequireRole(database.RoleRecruiter)
	candidateOnly := middleware.RequireRole(database.RoleCandidate)

	api := router.Group("/api")
	{
		api.GET("/ws", wsHandler.HandleConnection)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/verify-email", authHandler.VerifyEmail)
			authGroup.POST("/resend-verification", authHandler.ResendVerification)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.POST("/forgot-password", authHandler.ForgotPassword)
			authGroup.POST("/reset-password", authHandler.ResetPassword)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
			authGroup.GET("/me", authMiddleware, authHandler.Me)
		}

		userGroup := api.Group("/user")
		userGroup.Use(authMiddleware, passwordGate)
		{
			userGroup.GET("/profile", userHandler.GetProfile)
			userGroup.PUT("/profile", userHandler.UpdateProfile)
			userGroup.POST("/profile/picture", userHandler.UploadPicture)
			userGroup.POST("/profile/resume", candidateOnly, userHandler.UploadResume)
			userGroup.GET("/:id", userHandler.GetPublic)
		}

		companyGroup := api.Group("/company")
		{
			companyGroup.GET("/mine", authMiddleware, passwordGate, recruiterOnly, companyHandler.ListMine)
			companyGroup.GET("/:id", companyHandler.Get)
			companyGroup.POST("", authMiddleware, passwordGate, recruiterOnly, companyHandler.Register)
			companyGroup.PUT("/:id", authMiddleware, passwordGate, recruiterOnly, companyHandler.Update)
			companyGroup.POST("/:id/logo", authMiddleware, passwordGate, recruiterOnly, companyHandler.UploadLogo)
			companyGroup.DELETE("/:id", authMiddleware, passwordGate, recruiterOnly, companyHandler.Delete)
		}

		jobGroup := api.Group("/job")
		{
			jobGroup.GET("", jobHandler.List)
			jobGroup.GET("/mine", authMiddleware, passwordGate, recruiterOnly, jobHandler.ListMine)
			jobGroup.GET("/company/:id", jobHandler.ListByCompany)
			jobGroup.GET("/:id", jobHandler.Get)
			jobGroup.POST("", authMiddleware, passwordGate, recruiterOnly, jobHandler.Create)
			jobGroup.PUT("/:id", authMiddleware, passwordGate, recruiterOnly, jobHandler.Update)
			jobGroup.DELETE("/:id", authMiddleware, passwordGate, recruiterOnly, jobHandler.Delete)
		}

		applicationGroup := api.Group("/application")
		applicationGroup.Use(authMiddleware, passwordGate)
		{
			applicationGroup.POST("/job/:id", candidateOnly, applicationHandler.Apply)
			applicationGroup.GET("/mine", candidateOnly, applicationHandler.ListMine)
			applicationGroup.GET("/job/:id", recruiterOnly, applicationHandler.ListByJob)
			applicationGroup.PATCH("/:id/status", recruiterOnly, applicationHandler.UpdateStatus)
			applicationGroup.PATCH("/:id/withdraw", candidateOnly, applicationHandler.Withdraw)
		}

		savedGroup := api.Group("/saved-job")
		savedGroup.Use(authMiddleware, passwordGate)
		{
			savedGroup.GET("", savedJobHandler.List)
			savedGroup.POST("/:jobId", savedJobHandler.Save)
			savedGroup.DELETE("/:jobId", savedJobHandler.Unsave)
		}

		messageGroup := api.Group("/message")
		messageGroup.Use(authMiddleware, passwordGate)
		{
			messageGroup.GET("/conversations", messageHandler.Conversations)
			messageGroup.GET("/online", messageHandler.Online)
			messageGroup.POST("/:userId", messageHandler.Send)
			messageGroup.GET("/:userId", messageHandler.History)
			messageGroup.PATCH("/:userId/read", messageHandler.MarkRead)
		}
	}
}

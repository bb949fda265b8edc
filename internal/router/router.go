package router

import (
	"studhub/config"
	"studhub/internal/handler"
	"studhub/internal/middleware"
	"studhub/internal/repository"
	"studhub/internal/service"
	"studhub/internal/ws"
	"studhub/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, cloud cloudinary.Client, log *zap.Logger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// Repositories
	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	hub := ws.NewHub()

	// Services
	fcmSvc := service.NewFCMService(cfg.Firebase.ServiceAccountPath, log)
	if fcmSvc != nil {
		log.Info("push notifications enabled")
	} else {
		log.Info("push notifications disabled", zap.String("hint", "set FIREBASE_SERVICE_ACCOUNT_PATH to enable"))
	}
	notifSvc := service.NewNotificationService(notificationRepo, userRepo, fcmSvc, hub, log)
	authSvc := service.NewAuthService(cfg, userRepo)
	paymentSvc := service.NewPaymentService(db, &cfg.Payment, paymentRepo, userRepo, balanceRepo, auditRepo, service.AllowAllStaff{}, notifSvc, log)
	adminSvc := service.NewAdminService(db, &cfg.Payment, userRepo, balanceRepo, auditRepo, notifSvc, log)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, userRepo)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, cloud)
	adminHandler := handler.NewAdminHandler(adminSvc, userRepo)
	notificationHandler := handler.NewNotificationHandler(notificationRepo)

	authMw := middleware.AuthRequired(&cfg.JWT)
	staffMw := middleware.StaffRequired()
	r.Use(middleware.RateLimit(newRateLimiter(cfg, log)))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
		}

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("/profile", authHandler.Me)
			me.POST("/fcm-token", authHandler.SetFCMToken)
			me.GET("/payments", paymentHandler.ListMine)
			me.GET("/notifications", notificationHandler.List)
			me.POST("/notifications/:id/read", notificationHandler.MarkRead)
			me.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		}

		payments := api.Group("/payments")
		payments.Use(authMw)
		{
			payments.POST("", paymentHandler.Submit)
			payments.GET("/:id", paymentHandler.Get)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, staffMw)
		{
			admin.GET("/payments", paymentHandler.List)
			admin.GET("/payments/pending", paymentHandler.ListPending)
			admin.GET("/payments/stats", paymentHandler.Stats)
			admin.POST("/payments/:id/process", paymentHandler.Process)
			admin.GET("/admins/:id/payments", paymentHandler.ListByAdmin)

			admin.GET("/users", adminHandler.ListUsers)
			admin.POST("/users/:id/role", adminHandler.ChangeRole)
			admin.POST("/users/:id/balance/add", adminHandler.AddBalance)
			admin.POST("/users/:id/balance/subtract", adminHandler.SubtractBalance)
			admin.POST("/users/:id/status", adminHandler.ChangeAccountStatus)

			admin.GET("/actions", adminHandler.ListActions)
			admin.GET("/actions/recent", adminHandler.RecentActions)
			admin.GET("/actions/:id", adminHandler.GetAction)
			admin.GET("/admins/:id/actions", adminHandler.ListActionsByAdmin)
			admin.GET("/users/:id/actions", adminHandler.ListActionsByTarget)
		}

		api.GET("/ws/notifications", ws.UpgradeNotifyWS(&cfg.JWT, hub))
	}

	return r
}

func newRateLimiter(cfg *config.Config, log *zap.Logger) middleware.RateLimiter {
	if cfg.RateLimit.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info("rate limiting via redis", zap.String("addr", cfg.Redis.Addr))
		return middleware.NewRedisRateLimiter(client, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
	}
	return middleware.NewTokenBucketLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
}

package httpserver

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pressroom/internal/handler"
	"pressroom/pkg/rbac"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *handler.AuthHandler,
	schedulerHandler *handler.SchedulerHandler,
	notificationHandler *handler.NotificationHandler,
	mailSettingsHandler *handler.MailSettingsHandler,
	healthHandler *handler.HealthHandler,
	jwtSecret string,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware())

	// Public
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/auth/login", authHandler.Login)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/admin/scheduler/run",
			RequirePermission(rbac.PermissionRunScheduler), schedulerHandler.Run)

		notif := auth.Group("/notifications", RequirePermission(rbac.PermissionReadNotifications))
		{
			notif.GET("", notificationHandler.ListRecent)
			notif.GET("/unread-count", notificationHandler.UnreadCount)
			notif.POST("/:id/read", notificationHandler.MarkRead)
			notif.POST("/read-all", notificationHandler.MarkAllRead)
		}

		auth.GET("/admin/mail-settings",
			RequirePermission(rbac.PermissionReadMailSettings), mailSettingsHandler.Get)
		auth.PUT("/admin/mail-settings",
			RequirePermission(rbac.PermissionWriteMailSettings), mailSettingsHandler.Update)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}

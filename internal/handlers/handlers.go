package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dispatchhub/internal/config"
	"dispatchhub/internal/middleware"
	"dispatchhub/internal/models"
	"dispatchhub/internal/service"
)

// Pinger is satisfied by the Postgres pool and the SQLite store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionCounter reports live websocket connections.
type ConnectionCounter interface {
	Count() int
}

type Deps struct {
	Log           zerolog.Logger
	Config        *config.AppConfig
	Auth          *service.AuthService
	Tasks         *service.TaskService
	Users         *service.UserService
	Locations     *service.LocationService
	Notifications *service.NotificationService
	Database      Pinger
	Cache         *redis.Client
	Storage       Pinger
	Connections   ConnectionCounter
}

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	authService   *service.AuthService
	tasks         *service.TaskService
	users         *service.UserService
	locations     *service.LocationService
	notifications *service.NotificationService
	db            Pinger
	cache         *redis.Client
	storage       Pinger
	connections   ConnectionCounter
	started       time.Time
}

func NewHandlerSet(deps Deps) HandlerSet {
	return HandlerSet{
		log:           deps.Log,
		cfg:           deps.Config,
		authService:   deps.Auth,
		tasks:         deps.Tasks,
		users:         deps.Users,
		locations:     deps.Locations,
		notifications: deps.Notifications,
		db:            deps.Database,
		cache:         deps.Cache,
		storage:       deps.Storage,
		connections:   deps.Connections,
		started:       time.Now(),
	}
}

// Mount mounts /health and the /api tree.
func (h HandlerSet) Mount(router gin.IRouter) {
	router.GET("/health", h.Health)

	api := router.Group("/api")
	requireAuth := middleware.Auth(h.authService)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleDispatcher)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	auth := api.Group("/auth")
	{
		auth.POST("/register", middleware.OptionalAuth(h.authService), h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)

		protected := auth.Group("")
		protected.Use(requireAuth)
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
		protected.PUT("/profile", h.UpdateProfile)
		protected.GET("/sessions", h.ListSessions)
		protected.DELETE("/sessions/:deviceId", h.RevokeSession)
	}

	tasks := api.Group("/tasks", requireAuth)
	{
		tasks.GET("", h.ListTasks)
		tasks.POST("", staff, h.CreateTask)
		tasks.GET("/:id", h.GetTask)
		tasks.PUT("/:id", staff, h.UpdateTask)
		tasks.DELETE("/:id", staff, h.DeleteTask)
		tasks.PATCH("/:id/status", h.TransitionTask)
	}

	users := api.Group("/users", requireAuth)
	{
		users.GET("/couriers", staff, h.ListCouriers)
		users.PATCH("/availability", middleware.RequireRoles(models.RoleCourier), h.SetAvailability)
		users.GET("", adminOnly, h.ListUsers)
		users.GET("/:id", adminOnly, h.GetUser)
		users.PUT("/:id", adminOnly, h.UpdateUser)
		users.PATCH("/:id/toggle-active", adminOnly, h.ToggleUserActive)
		users.DELETE("/:id", adminOnly, h.DeleteUser)
	}

	location := api.Group("/location", requireAuth)
	{
		location.POST("/update", middleware.RequireRoles(models.RoleCourier), h.UpdateLocation)
		location.GET("/couriers", staff, h.ActiveCouriers)
		location.GET("/nearby", staff, h.NearbyCouriers)
	}

	notifications := api.Group("/notifications", requireAuth)
	{
		notifications.GET("", h.ListNotifications)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.PATCH("/read-all", h.MarkAllNotificationsRead)
		notifications.PATCH("/:id/read", h.MarkNotificationRead)
	}
}

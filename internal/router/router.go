// Package router assembles the HTTP surface.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/Baaaki/postboard/internal/broker"
	"github.com/Baaaki/postboard/internal/config"
	"github.com/Baaaki/postboard/internal/handler"
	"github.com/Baaaki/postboard/internal/metrics"
	"github.com/Baaaki/postboard/internal/middleware"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps is everything the router wires into handlers.
type Deps struct {
	Config       *config.Config
	Lifetime     context.Context // cancelling it ends open event streams, nil means never
	DB           *gorm.DB
	Redis        *redis.Client // nil disables rate limiting
	Broker       broker.Broker
	AuthService  *service.AuthService
	UserService  *service.UserService
	PostService  *service.PostService
	AdminService *service.AdminService
}

func New(d Deps) *gin.Engine {
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.SecurityHeaders(d.Config.IsProduction()))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.Config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	authHandler := handler.NewAuthHandler(d.AuthService, d.UserService)
	userHandler := handler.NewUserHandler(d.UserService)
	postHandler := handler.NewPostHandler(d.PostService, d.UserService)
	adminHandler := handler.NewAdminHandler(d.AdminService, d.UserService)
	eventsHandler := handler.NewEventsHandler(d.Lifetime, d.AuthService, d.Broker, d.Config.AllowedOrigins)

	r.GET("/healthz", health(d.DB))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Public routes
	r.POST("/register/", limit(d, "register"), authHandler.Register)
	r.POST("/login/", limit(d, "login"), authHandler.Login)
	r.POST("/api/token/", limit(d, "login"), authHandler.Login)
	r.POST("/api/token/refresh/", authHandler.Refresh)

	authenticated := r.Group("/")
	authenticated.Use(middleware.AuthMiddleware(d.AuthService))
	authenticated.POST("/logout/", authHandler.Logout)

	// Valid users only
	valid := authenticated.Group("/")
	valid.Use(middleware.RequireValidUser())
	{
		valid.GET("/profile/", userHandler.GetProfile)
		valid.PATCH("/profile/", userHandler.UpdateProfile)
		valid.PUT("/profile/", userHandler.UpdateProfile)

		valid.GET("/users/", userHandler.List)
		valid.POST("/users/", userHandler.Create)
		valid.GET("/users/:id/", userHandler.Get)
		valid.PATCH("/users/:id/", userHandler.Update)
		valid.PUT("/users/:id/", userHandler.Update)
		valid.DELETE("/users/:id/", userHandler.Delete)

		valid.GET("/posts/", postHandler.List)
		valid.POST("/posts/", postHandler.Create)
		valid.GET("/posts/:id/", postHandler.Get)
		valid.PATCH("/posts/:id/", postHandler.Update)
		valid.PUT("/posts/:id/", postHandler.Update)
		valid.DELETE("/posts/:id/", postHandler.Delete)
		valid.POST("/posts/:id/like_post/", postHandler.Like)
		valid.POST("/posts/:id/unlike_post/", postHandler.Unlike)

		valid.GET("/feed/", postHandler.Feed)
		valid.GET("/feed/:id/", postHandler.FeedItem)
	}

	admin := authenticated.Group("/admin")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.GET("/users/", adminHandler.ListUsers)
		admin.POST("/users/approve/", adminHandler.ApproveBulk)
		admin.POST("/users/:id/approve/", adminHandler.Approve)
		admin.GET("/users/:id/approve/", adminHandler.ApproveAndRedirect)
		admin.GET("/posts/", adminHandler.ListPosts)
		admin.POST("/posts/restore/", adminHandler.RestorePosts)
	}

	// Token checked by the handler so it can also come from the query string
	r.GET("/ws/events", eventsHandler.Stream)

	return r
}

func limit(d Deps, scope string) gin.HandlerFunc {
	if d.Redis == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.NewRateLimiter(d.Redis, scope, middleware.RateLimiterConfig{
		MaxRequests: d.Config.RateLimitMaxRequests,
		Window:      d.Config.RateLimitWindow,
		BlockTime:   d.Config.RateLimitBlockTime,
	}).Middleware()
}

func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

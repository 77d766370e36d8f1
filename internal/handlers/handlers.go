package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"todolist/internal/cache"
	"todolist/internal/config"
	"todolist/internal/middleware"
	"todolist/internal/models"
	"todolist/internal/repository"
	"todolist/internal/security"
	"todolist/internal/service"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	authService *service.AuthService
	todoService *service.TodoService
	tokens      *security.TokenIssuer
	authLimiter *middleware.RateLimiter
	dbCheck     HealthCheck
	cacheCheck  HealthCheck
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, redisClient *redis.Client, cfg *config.AppConfig) HandlerSet {
	tokens := security.NewTokenIssuer(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.JWTAccessTTL,
		cfg.Security.JWTRefreshTTL,
	)
	auth := service.NewAuthService(
		repository.NewUserRepository(db),
		repository.NewSessionRepository(db),
		tokens,
		security.NewPasswordHasher(cfg.Security.BcryptCost),
		cfg,
		log,
	)
	todos := service.NewTodoService(repository.NewTodoRepository(db), cfg)

	return newHandlerSet(log, cfg, auth, todos, tokens,
		db.Ping,
		cache.Ping(redisClient),
	)
}

func newHandlerSet(
	log zerolog.Logger,
	cfg *config.AppConfig,
	auth *service.AuthService,
	todos *service.TodoService,
	tokens *security.TokenIssuer,
	dbCheck HealthCheck,
	cacheCheck HealthCheck,
) HandlerSet {
	return HandlerSet{
		log:         log,
		cfg:         cfg,
		authService: auth,
		todoService: todos,
		tokens:      tokens,
		authLimiter: middleware.NewRateLimiter(cfg.Security.AuthRateLimit, cfg.Security.AuthRateWindow),
		dbCheck:     dbCheck,
		cacheCheck:  cacheCheck,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	public := router.Group("")
	public.Use(h.authLimiter.Handler())
	{
		public.POST("/signup", h.Signup)
		public.POST("/login", h.Login)
		public.POST("/refresh", h.Refresh)
	}

	protected := router.Group("")
	protected.Use(middleware.Auth(h.tokens))
	{
		protected.PUT("/login/:_id", h.UpdateUser)
		protected.DELETE("/logout", h.Logout)
		protected.GET("/sessions", h.ListSessions)

		protected.POST("/todos", h.CreateTodo)
		protected.GET("/todos", h.ListTodos)
		protected.GET("/todos/all", middleware.RequireRoles(models.UserRoleAdmin), h.ListAllTodos)
		protected.PATCH("/todos/:id", h.UpdateTodo)
		protected.DELETE("/todos/:id", h.DeleteTodo)
	}
}

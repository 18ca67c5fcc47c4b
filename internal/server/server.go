// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "studyhub/docs" // swagger docs
	"studyhub/internal/cache"
	"studyhub/internal/config"
	"studyhub/internal/database"
	"studyhub/internal/featureflags"
	"studyhub/internal/middleware"
	"studyhub/internal/models"
	"studyhub/internal/notifications"
	"studyhub/internal/repository"
	"studyhub/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const blacklistReapInterval = time.Hour

// hub is implemented by every realtime component that must be drained on shutdown.
type hub interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	featureFlags   *featureflags.Manager

	userRepo repository.UserRepository

	tokens    *service.TokenService
	settings  *service.SettingsService
	auth      *service.AuthService
	google    *service.GoogleOAuth
	users     *service.UserService
	avatars   *service.AvatarService
	forum     *service.ForumService
	messages  *service.MessageService
	study     *service.StudyService
	analytics *service.AnalyticsService
	audit     *service.AuditService
	feedback  *service.FeedbackService
	admin     *service.AdminService

	notifier   *notifications.Notifier
	hub        *notifications.Hub
	dispatcher *notifications.Dispatcher
	studyHub   *notifications.StudyRoomHub
	peers      *notifications.PeerBroker
	live       *notifications.SSEBroker
	hubs       []hub
}

// NewServer connects to the database and Redis, then wires every dependency.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Redis is optional; a nil client disables caching and cross-instance fan-out.
	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("studyhub-api"),
		shutdownCtx:    ctx,
		shutdownFn:     cancel,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		userRepo:       repository.NewUserRepository(db),
	}

	// Realtime layer.
	s.live = notifications.NewSSEBroker()
	s.notifier = notifications.NewNotifier(redisClient)
	s.hub = notifications.NewHub(redisClient)
	s.dispatcher = notifications.NewDispatcher(s.hub, s.notifier)
	s.peers = notifications.NewPeerBroker(redisClient)

	// Services.
	s.settings = service.NewSettingsService(repository.NewSettingRepository(db))
	s.tokens = service.NewTokenService(cfg, redisClient, repository.NewTokenBlacklistRepository(db))
	s.auth = service.NewAuthService(s.userRepo, s.tokens, s.settings)
	s.google = service.NewGoogleOAuth(cfg, s.userRepo, s.tokens, redisClient)
	s.users = service.NewUserService(s.userRepo)
	s.avatars = service.NewAvatarService(s.users, cfg)

	topics := repository.NewTopicRepository(db)
	posts := repository.NewPostRepository(db)
	messages := repository.NewMessageRepository(db)
	sessions := repository.NewStudySessionRepository(db)
	feedback := repository.NewFeedbackRepository(db)
	analytics := repository.NewAnalyticsRepository(db)

	s.forum = service.NewForumService(topics, posts, s.dispatcher, s.users.IsAdmin)
	s.messages = service.NewMessageService(messages, s.userRepo, s.dispatcher)
	s.study = service.NewStudyService(sessions, s.settings, cfg, s.users.IsAdmin)
	s.analytics = service.NewAnalyticsService(analytics, cfg.AnalyticsSalt, s.live)
	s.audit = service.NewAuditService(repository.NewAuditLogRepository(db), s.live)
	s.feedback = service.NewFeedbackService(feedback)
	s.admin = service.NewAdminService(service.AdminRepos{
		Users:     s.userRepo,
		Topics:    topics,
		Posts:     posts,
		Messages:  messages,
		Sessions:  sessions,
		Feedback:  feedback,
		Analytics: analytics,
	}, s.audit)

	s.studyHub = notifications.NewStudyRoomHub(notifications.StudyRoomConfig{
		Redis:    redisClient,
		Store:    s.study,
		Activity: s.analytics,
		ChatEnabled: func(userID uint) bool {
			return s.featureFlags.Enabled(featureflags.StudyRoomChat, userID)
		},
		DefaultCapacity: cfg.MaxRoomPeers,
	})
	s.study.SetRooms(s.studyHub)
	s.hubs = []hub{s.hub, s.studyHub, s.peers}

	s.analytics.Start()
	s.audit.Start()

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || middleware.RateLimitBypassed()
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))

	app.Use(middleware.MaintenanceGuard(s.settings))
	app.Use(middleware.AuditTrail(s.audit))
	app.Use(middleware.AnalyticsRecorder(s.analytics))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)
	api.Get("/", s.HealthCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "StudyHub Backend Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	app.Static(service.AvatarURLPrefix, s.avatars.Dir(), fiber.Static{MaxAge: 86400})

	// Auth
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(s.redis, 5, 10*time.Minute, "register"), s.Register)
	auth.Post("/signup", middleware.RateLimit(s.redis, 5, 10*time.Minute, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)
	auth.Post("/refresh", s.AuthRequired(), s.Refresh)
	auth.Get("/me", s.AuthRequired(), s.Me)
	auth.Get("/google", s.GoogleLogin)
	auth.Get("/google/callback", s.GoogleCallback)

	// Public reads
	api.Get("/settings/public", s.GetPublicSettings)
	api.Post("/analytics/events", middleware.RateLimit(s.redis, 120, time.Minute, "analytics"), s.TrackEvent)
	api.Post("/analytics/visit", middleware.RateLimit(s.redis, 60, time.Minute, "visit"), s.RecordVisit)
	api.Post("/feedback", middleware.RateLimit(s.redis, 5, 10*time.Minute, "feedback"), s.SubmitFeedback)

	topics := api.Group("/topics")
	topics.Get("/", s.ListTopics)
	topics.Get("/categories", s.ListCategories)
	topics.Get("/:id/posts", s.ListPosts)
	topics.Get("/:id", s.GetTopic)

	// WebSocket endpoints. Registered ahead of the protected group so a
	// single-use ticket is redeemed exactly once.
	ws := api.Group("/ws", s.AuthRequired())
	ws.Post("/ticket", s.IssueWSTicket)
	ws.Get("/", s.WebsocketHandler())
	ws.Get("/study", s.WebSocketStudyHandler())
	api.Get("/peer", s.AuthRequired(), s.featureRequired(featureflags.PeerBroker), s.PeerBrokerHandler())

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Post("/me/avatar", middleware.RateLimit(s.redis, 10, time.Hour, "avatar"), s.UploadAvatar)
	users.Get("/online", s.GetOnlineUsers)
	users.Get("/:id/topics", s.GetUserTopics)
	users.Get("/:id", s.GetUserProfile)

	protected.Post("/topics", middleware.RateLimit(s.redis, 5, 10*time.Minute, "create_topic"), s.CreateTopic)
	protected.Put("/topics/:id", s.UpdateTopic)
	protected.Delete("/topics/:id", s.DeleteTopic)
	protected.Post("/topics/:id/pin", s.AdminRequired(), s.PinTopic)
	protected.Post("/topics/:id/lock", s.AdminRequired(), s.LockTopic)
	protected.Post("/topics/:id/posts", middleware.RateLimit(s.redis, 20, time.Minute, "create_post"), s.CreatePost)
	protected.Put("/posts/:id", s.UpdatePost)
	protected.Delete("/posts/:id", s.DeletePost)

	messages := protected.Group("/messages")
	messages.Post("/", middleware.RateLimit(s.redis, 30, time.Minute, "send_message"), s.SendMessage)
	messages.Get("/conversations", s.GetConversations)
	messages.Get("/unread-count", s.GetUnreadCount)
	messages.Post("/:userId/read", s.MarkThreadRead)
	messages.Get("/:userId", s.GetThread)
	messages.Delete("/:id", s.DeleteMessage)

	rooms := protected.Group("/study-rooms")
	rooms.Get("/ice-servers", s.GetICEServers)
	rooms.Post("/", middleware.RateLimit(s.redis, 10, 10*time.Minute, "create_room"), s.CreateStudyRoom)
	rooms.Get("/", s.ListStudyRooms)
	rooms.Post("/:roomId/end", s.EndStudyRoom)
	rooms.Get("/:roomId", s.GetStudyRoom)

	protected.Get("/peer/id", s.featureRequired(featureflags.PeerBroker), s.ReservePeerID)

	// Admin routes
	admin := protected.Group("/admin", s.AdminRequired())
	admin.Get("/dashboard", s.GetDashboard)
	admin.Get("/live", s.AdminLiveFeed)
	admin.Get("/users", s.AdminListUsers)
	admin.Post("/users/:id/ban", s.BanUser)
	admin.Post("/users/:id/unban", s.UnbanUser)
	admin.Post("/users/:id/promote", s.PromoteUser)
	admin.Post("/users/:id/demote", s.DemoteUser)
	admin.Delete("/users/:id", s.AdminDeleteUser)
	admin.Delete("/topics/:id", s.DeleteTopic)
	admin.Delete("/posts/:id", s.DeletePost)
	admin.Get("/audit-logs", s.GetAuditLogs)
	admin.Get("/analytics/events", s.GetAnalyticsEvents)
	admin.Get("/settings", s.GetSettings)
	admin.Put("/settings/:key", s.UpdateSetting)
	admin.Get("/feedback", s.ListFeedback)
	admin.Put("/feedback/:id", s.UpdateFeedback)
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// App builds the Fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:   "StudyHub API",
		BodyLimit: 10 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// HealthCheck is a simple alias for ReadinessCheck
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return s.ReadinessCheck(c)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck pings the database and Redis.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "StudyHub",
		"version": "1.0.0",
		"status":  overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// startBackground wires Redis fan-out for the hubs and starts the peer
// expiry loop and the blacklist reaper.
func (s *Server) startBackground() {
	ctx := s.shutdownCtx
	if s.notifier.Enabled() {
		if err := s.hub.StartWiring(ctx, s.notifier); err != nil {
			middleware.Logger.Error("failed to start notification wiring", slog.String("error", err.Error()))
		}
		if err := s.studyHub.StartWiring(ctx); err != nil {
			middleware.Logger.Error("failed to start study room wiring", slog.String("error", err.Error()))
		}
	}
	go s.peers.Run(ctx)
	go s.reapBlacklist(ctx)
}

func (s *Server) reapBlacklist(ctx context.Context) {
	ticker := time.NewTicker(blacklistReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.tokens.PurgeExpired(ctx)
			if err != nil {
				middleware.Logger.Warn("blacklist purge failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				middleware.Logger.Info("purged expired blacklist entries", slog.Int64("count", n))
			}
		}
	}
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	s.startBackground()

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Close drains hubs and async writers without touching the database or Redis.
func (s *Server) Close(ctx context.Context) {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}
	s.live.Close()
	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			middleware.Logger.Error("hub shutdown failed", slog.String("hub", h.Name()), slog.String("error", err.Error()))
		}
	}
	if err := s.analytics.Close(ctx); err != nil {
		middleware.Logger.Error("analytics drain failed", slog.String("error", err.Error()))
	}
	if err := s.audit.Close(ctx); err != nil {
		middleware.Logger.Error("audit drain failed", slog.String("error", err.Error()))
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	s.Close(ctx)
	database.Close(s.db)

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}

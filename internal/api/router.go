package api

import (
	"net/http"

	"github.com/Zagas-life-dev/studybetterlib/internal/api/handler"
	customMiddleware "github.com/Zagas-life-dev/studybetterlib/internal/api/middleware"
	"github.com/Zagas-life-dev/studybetterlib/internal/config"
	"github.com/Zagas-life-dev/studybetterlib/internal/llm"
	"github.com/Zagas-life-dev/studybetterlib/internal/llm/anthropic"
	"github.com/Zagas-life-dev/studybetterlib/internal/llm/gemini"
	"github.com/Zagas-life-dev/studybetterlib/internal/llm/ollama"
	"github.com/Zagas-life-dev/studybetterlib/internal/llm/openai"
	"github.com/Zagas-life-dev/studybetterlib/internal/realtime"
	"github.com/Zagas-life-dev/studybetterlib/internal/repository/postgres"
	"github.com/Zagas-life-dev/studybetterlib/internal/repository/redis"
	"github.com/Zagas-life-dev/studybetterlib/internal/security"
	"github.com/Zagas-life-dev/studybetterlib/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, db *postgres.DB, redisClient *redis.Client, notifier *realtime.Notifier, detector *postgres.SchemaDetector) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize security components
	jwtManager := security.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	courseRepo := postgres.NewCourseRepository(db)

	// Initialize rate limiter and course title cache
	rateLimiter := redis.NewRateLimiter(
		redisClient,
		cfg.Security.RateLimit.RequestsPerMinute,
		cfg.Security.RateLimit.Burst,
	)
	titleCache := redis.NewCourseTitleCache(redisClient)

	// Initialize LLM Router with providers
	llmRouter := llm.NewRouter(cfg.LLM.DefaultProvider)

	log.Info().Str("default", cfg.LLM.DefaultProvider).Msg("initializing LLM providers")

	if cfg.LLM.Ollama.Host != "" {
		llmRouter.RegisterProvider(ollama.NewProvider(cfg.LLM.Ollama.Host, cfg.LLM.Ollama.DefaultModel))
	}
	if cfg.LLM.OpenAI.APIKey != "" {
		llmRouter.RegisterProvider(openai.NewProvider(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.Model))
	}
	if cfg.LLM.Anthropic.APIKey != "" {
		llmRouter.RegisterProvider(anthropic.NewProvider(cfg.LLM.Anthropic.APIKey, cfg.LLM.Anthropic.Model))
	}
	if cfg.LLM.Gemini.APIKey != "" {
		llmRouter.RegisterProvider(gemini.NewProvider(cfg.LLM.Gemini))
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtManager)
	chatService := service.NewChatService(detector, courseRepo, llmRouter, titleCache, cfg.Chat)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	sessionHandler := handler.NewSessionHandler(chatService)
	wsHandler := handler.NewWSHandler(chatService, notifier)

	// Auth middleware
	authMiddleware := customMiddleware.NewAuthMiddleware(jwtManager)
	rateLimitMiddleware := customMiddleware.NewRateLimitMiddleware(rateLimiter)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(db))

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimitMiddleware.Limit)

			r.Get("/me", authHandler.Me)

			// LLM providers
			r.Get("/llm-providers", handler.ListLLMProviders(llmRouter))

			// Schema mode diagnostics
			r.Get("/schema-mode", handler.SchemaMode(detector))
			r.Post("/schema-mode/refresh", handler.RefreshSchemaMode(detector))

			// Session routes
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				r.Post("/", sessionHandler.Create)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", sessionHandler.Get)
					r.Patch("/", sessionHandler.Update)
					r.Delete("/", sessionHandler.Delete)

					r.Get("/messages", sessionHandler.GetMessages)
					r.Post("/messages", sessionHandler.PostMessage)

					r.Get("/ws", wsHandler.Subscribe)
				})
			})
		})
	})

	return r
}

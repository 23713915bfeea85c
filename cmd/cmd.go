package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quincy-backend/internal/config"
	"quincy-backend/internal/gate"
	"quincy-backend/internal/handlers"
	"quincy-backend/internal/middleware"
	"quincy-backend/internal/notify"
	"quincy-backend/internal/progress"
	"quincy-backend/internal/repository"
	"quincy-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	if err := repository.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	eventRepo := repository.NewEventRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	interestRepo := repository.NewInterestRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	progressRepo := repository.NewProgressRepository(db)

	// Progress resolution and push
	resolver := progress.NewResolver(progressRepo, cfg.Progress.ResolveTimeout)
	watcher := progress.NewWatcher(resolver)
	wsHub := services.NewWSHub()

	// Connection notifiers; the socket is always on, push and SMS when configured
	notifiers := []services.ConnectionNotifier{notify.NewHub(wsHub)}
	if cfg.Notify.APNs.Enabled() {
		push, err := notify.NewPush(notify.PushConfig{
			KeyPath:    cfg.Notify.APNs.KeyPath,
			KeyID:      cfg.Notify.APNs.KeyID,
			TeamID:     cfg.Notify.APNs.TeamID,
			Topic:      cfg.Notify.APNs.Topic,
			Production: cfg.Notify.APNs.Production,
		}, userRepo, profileRepo)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		notifiers = append(notifiers, push)
	}

	var smsSender services.SMSSender
	if cfg.Notify.Twilio.Enabled() {
		twilio := notify.NewTwilioSender(cfg.Notify.Twilio.AccountSID, cfg.Notify.Twilio.AuthToken, cfg.Notify.Twilio.FromNumber)
		smsSender = twilio
		notifiers = append(notifiers, notify.NewSMS(twilio, userRepo, profileRepo).WithAppURL(cfg.Notify.Twilio.AppURL))
	}
	notifier := notify.NewMulti(notifiers...)
	log.Info().Int("channels", notifier.Len()).Msg("Connection notifiers configured")

	// Initialize services
	userService := services.NewUserService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL)
	profileService := services.NewProfileService(profileRepo, watcher)
	eventService := services.NewEventService(eventRepo, watcher)
	recordService, err := services.NewRecordService(recordRepo, eventRepo, watcher, services.StorageConfig{
		Region:       cfg.AWS.Region,
		Bucket:       cfg.AWS.S3Bucket,
		AccessKey:    cfg.AWS.AccessKey,
		SecretKey:    cfg.AWS.SecretKey,
		Endpoint:     cfg.AWS.Endpoint,
		UsePathStyle: cfg.AWS.UsePathStyle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create record service")
	}
	metadataService := services.NewMetadataService(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	ledger := services.NewLedger(interestRepo, connectionRepo, notifier, cfg.Notify.Timeout)
	chatService := services.NewChatService(connectionRepo, wsHub)
	reminderService := services.NewReminderService(eventRepo, smsSender)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	profileHandler := handlers.NewProfileHandler(userService, profileService, resolver)
	eventHandler := handlers.NewEventHandler(eventService)
	recordHandler := handlers.NewRecordHandler(recordService, metadataService)
	interestHandler := handlers.NewInterestHandler(ledger, eventService, interestRepo)
	connectionHandler := handlers.NewConnectionHandler(ledger, chatService)
	navigationHandler := handlers.NewNavigationHandler(resolver, gate.DefaultPolicy())
	adminHandler := handlers.NewAdminHandler(eventService, reminderService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService, chatService, watcher, originAllowed(cfg.Server.AllowedOrigins))

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.AdminKeyHeader},
	}).Handler)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", userHandler.Register)
		r.Post("/auth/login", userHandler.Login)
		r.Get("/events/active", eventHandler.GetActive)
		r.With(middleware.OptionalAuth(userService)).Get("/navigation", navigationHandler.Resolve)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))
			r.Get("/me", profileHandler.GetMe)
			r.Put("/me/push-token", userHandler.UpdatePushToken)
			r.Put("/profile", profileHandler.UpdateProfile)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireTier(gate.TierOnboarded, resolver))
				r.Post("/events/active/rsvp", eventHandler.RSVP)
				r.Post("/records/summary", recordHandler.Summary)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireTier(gate.TierRSVP, resolver))
				r.Post("/records/upload", recordHandler.PrepareUpload)
				r.Post("/records/{record_id}/confirm", recordHandler.ConfirmUpload)
				r.Post("/records/extract", recordHandler.Extract)
				r.Get("/me/records", recordHandler.Mine)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireTier(gate.TierUpload, resolver))
				r.Get("/wall", recordHandler.Wall)
				r.Get("/records/{record_id}", recordHandler.Get)
				r.Get("/users/{user_id}", recordHandler.Attendee)
				r.Post("/interests", interestHandler.Express)
				r.Get("/interests/incoming", interestHandler.Incoming)
				r.Post("/interests/{interest_id}/respond", interestHandler.Respond)
				r.Get("/connections", connectionHandler.List)
				r.Get("/connections/{connection_id}/messages", connectionHandler.Messages)
				r.Post("/connections/{connection_id}/messages", connectionHandler.Send)
			})
		})

		// Operator routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminKey(cfg.Admin.APIKey))
			r.Post("/reminders", adminHandler.SendReminders)
			r.Post("/events", adminHandler.CreateEvent)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Hijacked sockets are not tracked by Shutdown
	wsHub.Close()

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight connection notifications finish
	ledger.Wait()

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// originAllowed matches the WebSocket Origin header against the CORS list
func originAllowed(allowed []string) func(origin string) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(origin string) bool {
		return set["*"] || set[origin]
	}
}

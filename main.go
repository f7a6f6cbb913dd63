package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gowa-multibot/config"
	"gowa-multibot/database"
	"gowa-multibot/internal/credential"
	"gowa-multibot/internal/handler"
	"gowa-multibot/internal/helper"
	"gowa-multibot/internal/logging"
	customMiddleware "gowa-multibot/internal/middleware"
	"gowa-multibot/internal/model"
	"gowa-multibot/internal/service"
	"gowa-multibot/internal/service/ai"
	"gowa-multibot/internal/worker"
	"gowa-multibot/internal/ws"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"
)

func main() {

	// Load .env (abaikan error kalau file tidak ada, misal di production)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)
	waLogger := logging.Whatsmeow(logger, cfg.WhatsmeowLogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//database custom (bot records)
	if err := database.InitAppDB(cfg.AppDatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("failed to open app database")
	}
	if err := helper.InitSchema(database.AppDB); err != nil {
		logger.Fatal().Err(err).Msg("failed to create schema")
	}

	//database whatsmeow
	store.DeviceProps.Os = proto.String(cfg.DeviceName)
	creds, err := openCredentialStore(ctx, cfg, waLogger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open credential store")
	}

	// Inisialisasi WebSocket Hub
	var hub *ws.Hub
	var realtime ws.RealtimePublisher = ws.NopPublisher{}
	if cfg.EnableWebsocket {
		hub = ws.NewHub()
		go hub.Run()
		realtime = hub
	}

	replier, err := newAutoReplier(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up auto reply")
	}

	var webhook *service.WebhookSender
	if cfg.EnableWebhook {
		webhook = service.NewWebhookSender(logger)
	}

	var qrOut io.Writer
	if cfg.QRTerminal {
		qrOut = os.Stdout
	}

	logger.Info().
		Bool("websocket", cfg.EnableWebsocket).
		Bool("webhook", cfg.EnableWebhook).
		Bool("ai_enabled", cfg.AIEnabled).
		Bool("jwt", cfg.JWTSecret != "").
		Str("store", cfg.StoreDriver).
		Msg("feature flags")

	manager := service.NewManager(service.ManagerOptions{
		Store:            creds,
		Logger:           logger,
		WhatsmeowLogger:  waLogger,
		Realtime:         realtime,
		Replier:          replier,
		Webhook:          webhook,
		QRTerminal:       qrOut,
		DefaultCountry:   cfg.DefaultCountry,
		ReconnectInitial: cfg.ReconnectInitial,
		ReconnectMax:     cfg.ReconnectMax,
	})

	// Load all existing sessions
	if _, err := manager.LoadExisting(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to load existing sessions")
	}

	go worker.StartPresenceWorker(ctx, manager, cfg.PresenceInterval, logger)

	auth := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry, cfg.AdminUsername, cfg.AdminPasswordHash)
	e := newServer(cfg, logger, manager, auth, hub)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		// bind ke semua interface, bukan hanya 127.0.0.1
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	manager.Shutdown(shutdownCtx)
	if hub != nil {
		hub.Close()
	}
	if err := creds.Close(); err != nil {
		logger.Warn().Err(err).Msg("close credential store")
	}
	if err := database.AppDB.Close(); err != nil {
		logger.Warn().Err(err).Msg("close app database")
	}
}

func openCredentialStore(ctx context.Context, cfg *config.Config, waLogger waLog.Logger) (credential.Store, error) {
	if cfg.StoreDriver == config.StoreDriverPostgres {
		return credential.NewSharedStore(ctx, cfg.DatabaseURL, model.BotDirectory{}, waLogger)
	}
	return credential.NewDirStore(cfg.SessionsDir, waLogger)
}

func newAutoReplier(cfg *config.Config, logger zerolog.Logger) (*service.AutoReplier, error) {
	replies := config.DefaultReplies()
	if cfg.RepliesFile != "" {
		loaded, err := config.LoadReplies(cfg.RepliesFile)
		if err != nil {
			return nil, err
		}
		replies = loaded
	}

	var responder service.AIResponder
	if cfg.AIEnabled {
		provider, err := ai.NewGeminiProvider(ai.GeminiConfig{
			APIKey:       cfg.GeminiAPIKey,
			Model:        cfg.GeminiModel,
			SystemPrompt: cfg.AISystemPrompt,
			Temperature:  cfg.AITemperature,
			MaxTokens:    cfg.AIMaxTokens,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("AI fallback disabled")
		} else {
			responder = provider
		}
	}

	logger.Info().Int("rules", len(replies.Rules)).Bool("ai", responder != nil).Msg("auto reply ready")
	return service.NewAutoReplier(replies, responder, cfg.AutoReplyMinInterval, logger), nil
}

func newServer(cfg *config.Config, logger zerolog.Logger, manager *service.Manager, auth *service.AuthService, hub *ws.Hub) *echo.Echo {
	// Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := logger.Debug()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				evt = logger.Warn().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowMethods: []string{
			echo.GET,
			echo.POST,
			echo.DELETE,
			echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderXRequestedWith,
			echo.HeaderAuthorization,
		},
	}))

	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     cfg.RateBurst,
				ExpiresIn: cfg.RateWindow,
			},
		),
	}))

	// =====================================================
	// DASHBOARD (basic auth only when ADMIN_PASSWORD_HASH is set)
	// =====================================================
	dashboardAuth := customMiddleware.DashboardAuth(auth)
	e.GET("/", handler.Dashboard(manager, hub != nil), dashboardAuth)
	e.POST("/new", handler.DashboardNewBot(manager), dashboardAuth)

	if hub != nil {
		e.GET("/ws", handler.WebSocketHandler(hub, cfg.CORSAllowOrigins)) //listen socket gorilla
	}

	e.POST("/api/token", handler.IssueToken(auth))

	// Daftar group route yang butuh JWT
	api := e.Group("/api", customMiddleware.JWTAuthMiddleware(auth))

	// IMPORTANT: /bots/export must come before /bots/:id
	api.GET("/bots", handler.ListBots(manager))
	api.POST("/bots", handler.CreateBot(manager))
	api.GET("/bots/export", handler.ExportBots(manager))
	api.GET("/bots/:id", handler.GetBot(manager))
	api.GET("/bots/:id/qr", handler.GetBotQR(manager))
	api.POST("/bots/:id/logout", handler.LogoutBot(manager))
	api.DELETE("/bots/:id", handler.DeleteBot(manager))
	api.POST("/bots/:id/send", handler.SendMessage(manager))
	api.POST("/bots/:id/webhook", handler.SetWebhookConfig(manager))

	return e
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/internal/api"
	"github.com/troikatech/callbridge/internal/api/handlers"
	"github.com/troikatech/callbridge/internal/calls"
	"github.com/troikatech/callbridge/pkg/dedupe"
	"github.com/troikatech/callbridge/pkg/env"
	"github.com/troikatech/callbridge/pkg/livekit"
	"github.com/troikatech/callbridge/pkg/logger"
	"github.com/troikatech/callbridge/pkg/otel"
	"github.com/troikatech/callbridge/pkg/twilio"
	"github.com/troikatech/callbridge/pkg/webhook"
)

const version = "1.0.0"

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing("callbridge", version, cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting call bridge",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
		zap.String("room_name_strategy", cfg.RoomNameStrategy),
	)

	// Redis is optional; without it webhooks dedupe in memory and rate
	// limiting and idempotency keys are off.
	var redisClient redis.Cmdable
	var ledger dedupe.Ledger
	dedupeTTL := time.Duration(cfg.WebhookDedupeTTLMin) * time.Minute
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		client := redis.NewClient(opt)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Log.Warn("Redis not reachable at startup", zap.Error(err))
		}
		cancel()

		redisClient = client
		ledger = dedupe.NewRedisLedger(client, "", dedupeTTL)
	} else {
		logger.Log.Info("REDIS_URL not set, using in-memory webhook dedupe")
		ledger = dedupe.NewMemoryLedger(dedupeTTL)
	}

	// Interfaces stay nil for unconfigured integrations.
	var rooms calls.RoomGateway
	var roomService handlers.RoomService
	if cfg.LiveKitConfigured() {
		lkClient := livekit.NewClient(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, logger.Log)
		rooms = lkClient
		roomService = lkClient
		logger.Log.Info("LiveKit client initialized", zap.String("url", cfg.LiveKitURL))
	} else {
		logger.Log.Warn("LiveKit not configured, rooms will not be created")
	}

	var dialer calls.Dialer
	if cfg.TwilioConfigured() {
		dialer = twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, logger.Log)
		logger.Log.Info("Twilio client initialized")
	} else {
		logger.Log.Warn("Twilio not configured, calls will not be dialed")
	}

	if cfg.LiveKitSIPEndpoint == "" {
		logger.Log.Warn("LIVEKIT_SIP_ENDPOINT not set, answered calls cannot be bridged")
	}

	store := calls.NewMemoryStore()

	var lister calls.RoomLister
	if rooms != nil {
		lister = rooms
	}
	namer := calls.NewRoomNamer(
		cfg.RoomNameStrategy,
		lister,
		store,
		time.Duration(cfg.RoomListTimeoutMs)*time.Millisecond,
		logger.Log,
	)

	orch := calls.NewOrchestrator(store, namer, rooms, dialer, calls.Config{
		PublicBaseURL:  cfg.APIBaseURL,
		SIPEndpoint:    cfg.LiveKitSIPEndpoint,
		SIPTrunkNumber: cfg.LiveKitSIPTrunkPhone,
		AgentName:      cfg.LiveKitAgentName,
		PrecreateRoom:  cfg.RoomPrecreate,
		GatewayTimeout: time.Duration(cfg.GatewayTimeoutMs) * time.Millisecond,
	}, logger.Log)

	verifier := webhook.NewTwilioVerifier(cfg.TwilioAuthToken, cfg.APIBaseURL)
	handler := handlers.NewHandler(cfg, orch, redisClient, roomService, verifier, ledger, version)
	router := api.NewRouter(cfg, handler, redisClient)

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Call bridge listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

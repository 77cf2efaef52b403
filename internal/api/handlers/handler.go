package handlers

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/internal/calls"
	"github.com/troikatech/callbridge/pkg/dedupe"
	"github.com/troikatech/callbridge/pkg/env"
	"github.com/troikatech/callbridge/pkg/livekit"
	"github.com/troikatech/callbridge/pkg/logger"
	"github.com/troikatech/callbridge/pkg/webhook"
)

// RoomService is the session-room gateway as seen by the HTTP layer.
type RoomService interface {
	ListRoomNames(ctx context.Context) ([]string, error)
	ReceiveWebhook(r *http.Request) (*livekit.RoomEvent, error)
}

type Handler struct {
	cfg         *env.Config
	orch        *calls.Orchestrator
	redisClient redis.Cmdable
	rooms       RoomService
	verifier    *webhook.TwilioVerifier
	ledger      dedupe.Ledger
	logger      *zap.Logger
	version     string
}

// NewHandler builds the HTTP handlers. redisClient and rooms may be nil
// when those integrations are not configured.
func NewHandler(
	cfg *env.Config,
	orch *calls.Orchestrator,
	redisClient redis.Cmdable,
	rooms RoomService,
	verifier *webhook.TwilioVerifier,
	ledger dedupe.Ledger,
	version string,
) *Handler {
	return &Handler{
		cfg:         cfg,
		orch:        orch,
		redisClient: redisClient,
		rooms:       rooms,
		verifier:    verifier,
		ledger:      ledger,
		logger:      logger.Log,
		version:     version,
	}
}

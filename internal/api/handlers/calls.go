package handlers

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/internal/calls"
	"github.com/troikatech/callbridge/pkg/errors"
	"github.com/troikatech/callbridge/pkg/logger"
	"github.com/troikatech/callbridge/pkg/metrics"
)

type InitiateCallRequest struct {
	PhoneNumber  string `json:"phone_number"`
	Language     string `json:"language"`
	LanguageName string `json:"language_name"`
	Prompt       string `json:"prompt"`
}

type InitiateCallResponse struct {
	Success       bool   `json:"success"`
	CallID        string `json:"call_id"`
	RoomName      string `json:"room_name"`
	Status        string `json:"status"`
	TwilioCallSID string `json:"twilio_call_sid,omitempty"`
	Message       string `json:"message,omitempty"`
}

type CallStatusResponse struct {
	Success       bool   `json:"success"`
	CallID        string `json:"call_id"`
	Status        string `json:"status"`
	Phone         string `json:"phone"`
	RoomName      string `json:"room_name"`
	TwilioCallSID string `json:"twilio_call_sid"`
	RoomConfirmed bool   `json:"room_confirmed"`
	DialOutcome   string `json:"dial_outcome,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type CallConfigResponse struct {
	Success      bool   `json:"success"`
	RoomName     string `json:"room_name"`
	Phone        string `json:"phone"`
	Language     string `json:"language"`
	LanguageName string `json:"language_name"`
	Prompt       string `json:"prompt"`
	CallID       string `json:"call_id"`
}

func (h *Handler) InitiateCall(c *gin.Context) {
	start := time.Now()
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.RecordRequest("/call/initiate", false, time.Since(start))
		errors.BadRequest(c, "request body must be a JSON object", "")
		return
	}

	res, err := h.orch.Initiate(c.Request.Context(), calls.InitiateRequest{
		Phone:        req.PhoneNumber,
		Language:     req.Language,
		LanguageName: req.LanguageName,
		Prompt:       req.Prompt,
	})
	metrics.RecordRequest("/call/initiate", err == nil, time.Since(start))
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Initiate request served",
		append(logger.CallFields(res.CallID, res.RoomName, res.CarrierCallID),
			zap.String("status", res.Status),
		)...,
	)

	c.JSON(http.StatusOK, InitiateCallResponse{
		Success:       true,
		CallID:        res.CallID,
		RoomName:      res.RoomName,
		Status:        res.Status,
		TwilioCallSID: res.CarrierCallID,
		Message:       res.Message,
	})
}

func (h *Handler) GetCallStatus(c *gin.Context) {
	rec, err := h.orch.Call(c.Request.Context(), c.GetString("call_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CallStatusResponse{
		Success:       true,
		CallID:        rec.ID,
		Status:        string(rec.Status),
		Phone:         rec.Phone,
		RoomName:      rec.RoomName,
		TwilioCallSID: rec.CarrierCallID,
		RoomConfirmed: rec.RoomConfirmed,
		DialOutcome:   rec.DialOutcome,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) GetCallConfig(c *gin.Context) {
	roomName := c.GetString("room_name")
	cfg, err := h.orch.RoomConfig(c.Request.Context(), roomName)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CallConfigResponse{
		Success:      true,
		RoomName:     roomName,
		Phone:        cfg.Phone,
		Language:     cfg.Language,
		LanguageName: cfg.LanguageName,
		Prompt:       cfg.Prompt,
		CallID:       cfg.CallID,
	})
}

// respondError maps orchestration errors to HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	message, callID := err.Error(), ""
	var ce *calls.Error
	if stderrors.As(err, &ce) {
		message, callID = ce.Message, ce.CallID
	}

	switch calls.KindOf(err) {
	case calls.KindValidation:
		errors.BadRequest(c, message, callID)
	case calls.KindNotFound:
		errors.NotFound(c, message)
	case calls.KindExternalService:
		errors.BadGateway(c, err, message, callID, h.logger)
	default:
		errors.InternalError(c, err, message, callID, h.logger)
	}
}

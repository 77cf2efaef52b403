package handlers

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/internal/calls"
	"github.com/troikatech/callbridge/pkg/errors"
	"github.com/troikatech/callbridge/pkg/logger"
	"github.com/troikatech/callbridge/pkg/metrics"
	"github.com/troikatech/callbridge/pkg/twilio"
)

// TelephonyAnswer is called by the carrier when the callee picks up. It
// always answers with TwiML: a failure to bridge is announced, never
// surfaced as an HTTP error.
func (h *Handler) TelephonyAnswer(c *gin.Context) {
	defer h.recoverTwiML(c, "answer")
	if !h.verifyCarrier(c, "answer") {
		return
	}
	metrics.RecordWebhook("answer", false)

	target, err := h.orch.AnswerCall(c.Request.Context(), calls.AnswerRequest{
		CallID:        c.Query("call_id"),
		RoomName:      c.Query("room_name"),
		CarrierCallID: c.PostForm("CallSid"),
	})

	switch {
	case stderrors.Is(err, calls.ErrSIPNotConfigured):
		h.logger.Warn("LIVEKIT_SIP_ENDPOINT not configured, answering without a bridge",
			zap.String("call_id", target.CallID))
		h.say(c, twilio.WaitMessage, false)
		return
	case stderrors.Is(err, calls.ErrMissingRoom):
		h.logger.Error("Answer callback without room information",
			zap.String("call_id", target.CallID))
		h.say(c, twilio.MissingRoomMessage, false)
		return
	case err != nil:
		h.logger.Error("Failed to resolve bridge target", zap.Error(err))
		h.say(c, twilio.ApologyMessage, false)
		return
	}

	doc, err := twilio.BridgeTwiML(twilio.Bridge{
		SIPURI:    target.SIPURI,
		CallerID:  target.CallerID,
		ActionURL: target.ActionURL,
	})
	if err != nil {
		h.logger.Error("Failed to render bridge TwiML", zap.Error(err))
		h.say(c, twilio.ApologyMessage, false)
		return
	}

	h.logger.Info("Bridging call to session room",
		append(logger.CallFields(target.CallID, target.RoomName, c.PostForm("CallSid")),
			zap.String("sip_uri", target.SIPURI),
		)...,
	)
	c.Data(http.StatusOK, twilio.ContentType, []byte(doc))
}

// TelephonyStatus receives carrier lifecycle callbacks. Redelivered events
// are acknowledged without being applied again; an event that could not be
// applied is not remembered.
func (h *Handler) TelephonyStatus(c *gin.Context) {
	defer h.recoverTwiML(c, "status")
	if !h.verifyCarrier(c, "status") {
		return
	}

	sid := c.PostForm("CallSid")
	phase := c.PostForm("CallStatus")
	if sid == "" || phase == "" {
		h.logger.Warn("Status callback without CallSid or CallStatus")
		h.ack(c)
		return
	}

	key := fmt.Sprintf("webhook:twilio:status:%s:%s", sid, phase)
	if h.ledger != nil {
		first, err := h.ledger.FirstSeen(c.Request.Context(), key)
		if err != nil {
			// Processing twice is harmless; the state machine ignores repeats.
			h.logger.Warn("Dedupe ledger unavailable", zap.Error(err))
		} else if !first {
			metrics.RecordWebhook("status", true)
			h.logger.Debug("Duplicate status callback ignored",
				zap.String("twilio_call_sid", sid),
				zap.String("carrier_status", phase),
			)
			h.ack(c)
			return
		}
	}
	metrics.RecordWebhook("status", false)

	if _, _, err := h.orch.HandleCarrierStatus(c.Request.Context(), sid, phase); err != nil {
		h.logger.Warn("Status callback not applied",
			zap.String("twilio_call_sid", sid),
			zap.String("carrier_status", phase),
			zap.Error(err),
		)
		// The sid may not be attached yet; let a redelivery try again.
		if h.ledger != nil {
			if err := h.ledger.Forget(c.Request.Context(), key); err != nil {
				h.logger.Warn("Failed to clear dedupe key", zap.String("key", key), zap.Error(err))
			}
		}
	}
	h.ack(c)
}

// TelephonyDialStatus receives the outcome of the SIP bridge leg. A failed
// bridge is announced to the callee before hanging up.
func (h *Handler) TelephonyDialStatus(c *gin.Context) {
	defer h.recoverTwiML(c, "dial-status")
	if !h.verifyCarrier(c, "dial-status") {
		return
	}
	metrics.RecordWebhook("dial_status", false)

	callID := c.Query("call_id")
	outcome := c.PostForm("DialCallStatus")

	failed, err := h.orch.HandleDialOutcome(c.Request.Context(), callID, outcome)
	if err != nil {
		h.logger.Warn("Dial outcome for unknown call",
			zap.String("call_id", callID),
			zap.String("dial_status", outcome),
			zap.Error(err),
		)
	}

	if failed {
		h.say(c, twilio.ApologyMessage, true)
		return
	}
	h.ack(c)
}

// LiveKitWebhook receives signed room events from the session-room gateway
// and confirms which room a call actually landed in. Finished rooms free
// their name for later calls.
func (h *Handler) LiveKitWebhook(c *gin.Context) {
	if h.rooms == nil {
		errors.NotFound(c, "LiveKit is not configured")
		return
	}

	event, err := h.rooms.ReceiveWebhook(c.Request)
	if err != nil {
		h.logger.Warn("Rejected LiveKit webhook", zap.Error(err))
		errors.Forbidden(c, "invalid webhook signature")
		return
	}
	metrics.RecordWebhook("livekit_"+event.Event, false)

	if event.RoomName != "" {
		switch event.Event {
		case "room_started":
			if _, err := h.orch.ConfirmRoom(c.Request.Context(), event.RoomName, event.RoomMetadata); err != nil {
				h.logger.Info("Started room has no matching call",
					zap.String("room_name", event.RoomName),
					zap.Error(err),
				)
			}
		case "room_finished":
			if err := h.orch.ReleaseRoom(c.Request.Context(), event.RoomName); err != nil {
				h.logger.Debug("Finished room has no matching call",
					zap.String("room_name", event.RoomName),
					zap.Error(err),
				)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// verifyCarrier checks the carrier signature when enabled. On failure the
// request is rejected and false is returned.
func (h *Handler) verifyCarrier(c *gin.Context, kind string) bool {
	if err := c.Request.ParseForm(); err != nil {
		h.logger.Warn("Unparseable carrier callback", zap.String("webhook", kind), zap.Error(err))
	}
	if h.cfg == nil || !h.cfg.TwilioValidateWebhooks {
		return true
	}
	if err := h.verifier.Verify(c.Request); err != nil {
		h.logger.Warn("Rejected carrier callback",
			zap.String("webhook", kind),
			zap.Error(err),
		)
		errors.Forbidden(c, "invalid webhook signature")
		return false
	}
	return true
}

func (h *Handler) say(c *gin.Context, message string, hangup bool) {
	doc, err := twilio.SayTwiML(message, hangup)
	if err != nil {
		h.ack(c)
		return
	}
	c.Data(http.StatusOK, twilio.ContentType, []byte(doc))
}

func (h *Handler) ack(c *gin.Context) {
	c.Data(http.StatusOK, twilio.ContentType, []byte(twilio.EmptyTwiML()))
}

// recoverTwiML turns a panic inside a carrier webhook into an apology so
// the live call is not dropped.
func (h *Handler) recoverTwiML(c *gin.Context, kind string) {
	if r := recover(); r != nil {
		h.logger.Error("Carrier webhook panicked",
			zap.String("webhook", kind),
			zap.Any("panic", r),
		)
		if !c.Writer.Written() {
			h.say(c, twilio.ApologyMessage, false)
		}
	}
}

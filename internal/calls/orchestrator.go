package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/pkg/livekit"
	"github.com/troikatech/callbridge/pkg/logger"
	"github.com/troikatech/callbridge/pkg/metrics"
	"github.com/troikatech/callbridge/pkg/twilio"
	"github.com/troikatech/callbridge/pkg/validation"
)

const reserveAttempts = 3

var (
	ErrSIPNotConfigured = errors.New("sip endpoint not configured")
	ErrMissingRoom      = errors.New("no room to bridge the call into")
)

// RoomGateway creates session rooms.
type RoomGateway interface {
	RoomLister
	CreateRoom(ctx context.Context, spec livekit.RoomSpec) error
}

// Dialer places outbound carrier calls.
type Dialer interface {
	FromNumber() string
	PlaceCall(ctx context.Context, req twilio.DialRequest) (string, error)
}

type Config struct {
	PublicBaseURL  string
	SIPEndpoint    string
	SIPTrunkNumber string
	AgentName      string
	PrecreateRoom  bool
	GatewayTimeout time.Duration
}

type InitiateRequest struct {
	Phone        string
	Language     string
	LanguageName string
	Prompt       string
}

type InitiateResult struct {
	CallID        string
	RoomName      string
	Status        string
	CarrierCallID string
	Message       string
}

type AnswerRequest struct {
	CallID        string
	RoomName      string
	CarrierCallID string
}

// BridgeTarget tells the carrier where to send an answered call.
type BridgeTarget struct {
	CallID    string
	RoomName  string
	SIPURI    string
	CallerID  string
	ActionURL string
}

// Orchestrator owns the call state machine and the correlation between
// carrier calls and session rooms.
type Orchestrator struct {
	store  Store
	namer  *RoomNamer
	rooms  RoomGateway
	dialer Dialer
	cfg    Config
	logger *zap.Logger

	newID func() string
	now   func() time.Time
}

// NewOrchestrator wires the orchestrator. rooms and dialer may be nil when
// the corresponding integration is not configured.
func NewOrchestrator(store Store, namer *RoomNamer, rooms RoomGateway, dialer Dialer, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	return &Orchestrator{
		store:  store,
		namer:  namer,
		rooms:  rooms,
		dialer: dialer,
		cfg:    cfg,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// DialerConfigured reports whether outbound dialing is available.
func (o *Orchestrator) DialerConfigured() bool {
	return o.dialer != nil
}

// Initiate creates the call record and room config, prepares the session
// room and, when a carrier is configured, places the outbound call.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	req.Phone = validation.SanitizeString(req.Phone)
	req.Prompt = validation.SanitizeString(req.Prompt)
	if req.Phone == "" {
		return nil, validationError("phone_number is required")
	}
	if req.Prompt == "" {
		return nil, validationError("prompt is required")
	}
	phone, err := validation.NormalizeE164(req.Phone)
	if err != nil {
		return nil, validationError("phone_number must contain digits")
	}

	rec := &CallRecord{
		ID:           o.newID(),
		Phone:        phone,
		Language:     defaultString(validation.SanitizeString(req.Language), DefaultLanguage),
		LanguageName: defaultString(validation.SanitizeString(req.LanguageName), DefaultLanguageName),
		Prompt:       req.Prompt,
		Status:       StatusInitiating,
		CreatedAt:    o.now(),
	}
	rec.UpdatedAt = rec.CreatedAt

	if err := o.reserve(ctx, rec); err != nil {
		return nil, &Error{Kind: KindInternal, Message: "could not reserve a room name", Err: err}
	}
	metrics.RecordCallInitiated()

	log := o.logger.With(logger.CallFields(rec.ID, rec.RoomName, "")...)
	log.Info("Call initiated",
		logger.MaskPhone("phone", rec.Phone),
		zap.String("language", rec.Language),
		zap.Bool("predicted_room", o.namer.Predictive()),
	)

	var answerURL, statusURL string
	if o.dialer != nil {
		if o.dialer.FromNumber() == "" {
			o.markFailed(ctx, rec.ID)
			return nil, configurationError(rec.ID, "TWILIO_PHONE_NUMBER is not configured", twilio.ErrMissingFromNumber)
		}
		answerURL, statusURL, err = o.callbackURLs(rec)
		if err != nil {
			o.markFailed(ctx, rec.ID)
			return nil, configurationError(rec.ID, "API_BASE_URL is not a valid public URL", err)
		}
	}

	roomCreated := false
	if o.rooms != nil && o.cfg.PrecreateRoom {
		if err := o.createRoom(ctx, rec); err != nil {
			log.Error("Failed to create session room", zap.Error(err))
			return nil, externalError(rec.ID, "Failed to create session room", err)
		}
		roomCreated = true
		log.Info("Session room created", zap.String("agent_name", o.cfg.AgentName))
	}

	if o.dialer == nil {
		status, message := ResultReady, "Room name reserved; no carrier configured to place the call"
		if roomCreated {
			status, message = ResultRoomCreated, "Room created; no carrier configured to place the call"
		}
		return &InitiateResult{CallID: rec.ID, RoomName: rec.RoomName, Status: status, Message: message}, nil
	}

	sid, err := o.placeCall(ctx, twilio.DialRequest{To: rec.Phone, AnswerURL: answerURL, StatusURL: statusURL})
	if err != nil {
		o.markFailed(ctx, rec.ID)
		log.Error("Carrier rejected outbound call", zap.Error(err))
		if errors.Is(err, twilio.ErrMissingFromNumber) {
			return nil, configurationError(rec.ID, "TWILIO_PHONE_NUMBER is not configured", err)
		}
		return nil, externalError(rec.ID, "Failed to initiate call", err)
	}

	if _, err := o.store.UpdateCall(ctx, rec.ID, func(r *CallRecord) error {
		if r.CarrierCallID == "" {
			r.CarrierCallID = sid
		}
		if r.advance(StatusQueued, true) {
			metrics.RecordCallTransition(string(StatusQueued))
		}
		return nil
	}); err != nil {
		// The dial went out; the answer callback can still attach the sid.
		log.Error("Failed to record carrier call id", zap.String("twilio_call_sid", sid), zap.Error(err))
	}

	log.Info("Outbound call queued", zap.String("twilio_call_sid", sid))
	return &InitiateResult{
		CallID:        rec.ID,
		RoomName:      rec.RoomName,
		Status:        string(StatusQueued),
		CarrierCallID: sid,
		Message:       "Call initiated",
	}, nil
}

// reserve derives a room name and stores the record with its config. Two
// concurrent initiates can derive the same name; the store admits only one
// and the other derives again, with a random suffix on the last attempt.
func (o *Orchestrator) reserve(ctx context.Context, rec *CallRecord) error {
	var err error
	for i := 0; i < reserveAttempts; i++ {
		rec.RoomName = o.namer.Derive(ctx, rec.Phone)
		if i == reserveAttempts-1 {
			rec.RoomName += "_" + o.namer.randHex(collisionSuffixes)
		}
		err = o.store.CreateCall(ctx, rec, rec.roomConfig())
		if !errors.Is(err, ErrRoomTaken) {
			return err
		}
		o.logger.Debug("Room name reserved concurrently, deriving again",
			zap.String("room_name", rec.RoomName),
			zap.Int("attempt", i+1),
		)
	}
	return err
}

func (o *Orchestrator) createRoom(ctx context.Context, rec *CallRecord) error {
	metadata, err := json.Marshal(roomMetadata{
		CallID:       rec.ID,
		Phone:        rec.Phone,
		Language:     rec.Language,
		LanguageName: rec.LanguageName,
		Prompt:       rec.Prompt,
	})
	if err != nil {
		return fmt.Errorf("encode room metadata: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
	defer cancel()

	return runBounded(ctx, func(ctx context.Context) error {
		return o.rooms.CreateRoom(ctx, livekit.RoomSpec{
			Name:      rec.RoomName,
			Metadata:  string(metadata),
			AgentName: o.cfg.AgentName,
		})
	})
}

func (o *Orchestrator) placeCall(ctx context.Context, req twilio.DialRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
	defer cancel()

	var sid string
	err := runBounded(ctx, func(ctx context.Context) error {
		var err error
		sid, err = o.dialer.PlaceCall(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	return sid, nil
}

// callbackURLs builds the answer and status callback URLs. The room name is
// only passed along when it was generated here rather than predicted.
func (o *Orchestrator) callbackURLs(rec *CallRecord) (string, string, error) {
	base, err := o.publicBase()
	if err != nil {
		return "", "", err
	}

	q := url.Values{}
	q.Set("call_id", rec.ID)
	if !o.namer.Predictive() {
		q.Set("room_name", rec.RoomName)
	}
	answer := base + "/webhook/telephony/answer?" + q.Encode()
	status := base + "/webhook/telephony/status"
	return answer, status, nil
}

func (o *Orchestrator) publicBase() (string, error) {
	raw := strings.TrimRight(strings.TrimSpace(o.cfg.PublicBaseURL), "/")
	if raw == "" {
		return "", errors.New("public base url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("public base url %q must be an absolute http(s) url", raw)
	}
	return raw, nil
}

func (o *Orchestrator) markFailed(ctx context.Context, callID string) {
	if _, err := o.store.UpdateCall(ctx, callID, func(r *CallRecord) error {
		if r.advance(StatusFailed, true) {
			metrics.RecordCallTransition(string(StatusFailed))
		}
		return nil
	}); err != nil {
		o.logger.Error("Failed to mark call failed", zap.String("call_id", callID), zap.Error(err))
	}
}

// AnswerCall records that the carrier picked up and returns where to bridge
// the call. With predicted room names the room is left out of the SIP URI so
// the gateway's dispatch rule assigns it from the caller id.
func (o *Orchestrator) AnswerCall(ctx context.Context, req AnswerRequest) (*BridgeTarget, error) {
	target := &BridgeTarget{CallID: req.CallID, RoomName: req.RoomName}

	var rec *CallRecord
	if req.CallID != "" {
		updated, err := o.store.UpdateCall(ctx, req.CallID, func(r *CallRecord) error {
			if r.CarrierCallID == "" && req.CarrierCallID != "" {
				r.CarrierCallID = req.CarrierCallID
			}
			if r.advance(StatusAnswered, true) {
				metrics.RecordCallTransition(string(StatusAnswered))
			}
			return nil
		})
		if err != nil {
			o.logger.Warn("Answer callback for unknown call",
				zap.String("call_id", req.CallID),
				zap.String("twilio_call_sid", req.CarrierCallID),
				zap.Error(err),
			)
		} else {
			rec = updated
		}
	}

	if target.RoomName == "" && rec != nil {
		target.RoomName = rec.RoomName
	}

	o.logger.Info("Call answered", logger.CallFields(req.CallID, target.RoomName, req.CarrierCallID)...)

	if strings.TrimSpace(o.cfg.SIPEndpoint) == "" {
		return target, ErrSIPNotConfigured
	}
	if target.RoomName == "" {
		return target, ErrMissingRoom
	}

	user := target.RoomName
	if o.namer.Predictive() && rec != nil {
		target.CallerID = rec.Phone
		// The dispatch rule names the room; an explicit room user part
		// would bypass it, so without a trunk number the user part is empty.
		user = o.cfg.SIPTrunkNumber
		if user == "" {
			o.logger.Debug("LIVEKIT_SIP_TRUNK_NUMBER not set, dialing the SIP endpoint without a user part",
				zap.String("room_name", target.RoomName),
			)
		}
	}
	target.SIPURI = twilio.SIPURI(user, o.cfg.SIPEndpoint)

	if req.CallID != "" {
		if base, err := o.publicBase(); err == nil {
			target.ActionURL = base + "/webhook/telephony/dial-status?" + url.Values{"call_id": {req.CallID}}.Encode()
		}
	}
	return target, nil
}

// HandleCarrierStatus applies a carrier status callback. It reports whether
// the record changed; duplicates and out-of-order phases do not.
func (o *Orchestrator) HandleCarrierStatus(ctx context.Context, carrierCallID, phase string) (*CallRecord, bool, error) {
	rec, err := o.store.FindByCarrierID(ctx, carrierCallID)
	if err != nil {
		return nil, false, notFoundError("no call for carrier call id", err)
	}

	next, known := MapCarrierStatus(phase)
	changed := false
	updated, err := o.store.UpdateCall(ctx, rec.ID, func(r *CallRecord) error {
		changed = r.advance(next, known)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	fields := logger.CallFields(updated.ID, updated.RoomName, carrierCallID)
	if changed {
		metrics.RecordCallTransition(string(updated.Status))
		o.logger.Info("Call status updated", append(fields,
			zap.String("carrier_status", phase),
			zap.String("status", string(updated.Status)),
		)...)
	} else {
		o.logger.Debug("Call status unchanged", append(fields,
			zap.String("carrier_status", phase),
			zap.String("status", string(updated.Status)),
		)...)
	}
	return updated, changed, nil
}

// HandleDialOutcome records the outcome of the bridge leg. A failed bridge
// forces sip_failed unless the call already ended. The returned bool reports
// whether the outcome is a failure, even for unknown calls.
func (o *Orchestrator) HandleDialOutcome(ctx context.Context, callID, outcome string) (bool, error) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	failed := IsDialFailure(outcome)

	updated, err := o.store.UpdateCall(ctx, callID, func(r *CallRecord) error {
		if outcome != "" {
			r.DialOutcome = outcome
		}
		if failed && r.failSIP() {
			metrics.RecordCallTransition(string(StatusSIPFailed))
		}
		return nil
	})
	if err != nil {
		return failed, notFoundError("call not found", err)
	}

	fields := append(logger.CallFields(updated.ID, updated.RoomName, updated.CarrierCallID),
		zap.String("dial_status", outcome),
		zap.String("status", string(updated.Status)),
	)
	if failed {
		o.logger.Warn("SIP bridge failed", fields...)
	} else {
		o.logger.Info("SIP bridge outcome", fields...)
	}
	return failed, nil
}

// ConfirmRoom correlates a room the gateway reports as started with a call.
// A room whose name differs from the one recorded for the call means the
// prediction drifted from the dispatch rule; the config is aliased under
// the actual name so the agent can still find it.
func (o *Orchestrator) ConfirmRoom(ctx context.Context, roomName, metadata string) (*CallRecord, error) {
	callID, err := o.correlateRoom(ctx, roomName, metadata)
	if err != nil {
		return nil, err
	}

	rec, err := o.store.GetCall(ctx, callID)
	if err != nil {
		return nil, notFoundError("call not found", err)
	}

	if rec.RoomName != roomName {
		cfg, err := o.store.GetRoomConfig(ctx, rec.RoomName)
		if err != nil {
			c := rec.roomConfig()
			cfg = &c
		}
		if err := o.store.AliasRoom(ctx, roomName, *cfg); err != nil {
			return nil, err
		}
		metrics.RecordRoomMismatch()
		o.logger.Warn("Session room does not match the recorded room",
			zap.String("call_id", rec.ID),
			zap.String("expected_room", rec.RoomName),
			zap.String("actual_room", roomName),
		)
	}

	updated, err := o.store.UpdateCall(ctx, callID, func(r *CallRecord) error {
		r.RoomName = roomName
		r.RoomConfirmed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("Session room confirmed", logger.CallFields(updated.ID, roomName, updated.CarrierCallID)...)
	return updated, nil
}

// ReleaseRoom records that the gateway closed roomName so the name can be
// handed to the next call.
func (o *Orchestrator) ReleaseRoom(ctx context.Context, roomName string) error {
	if err := o.store.ReleaseRoom(ctx, roomName); err != nil {
		return notFoundError("no call for room", err)
	}
	o.logger.Info("Session room finished", zap.String("room_name", roomName))
	return nil
}

func (o *Orchestrator) correlateRoom(ctx context.Context, roomName, metadata string) (string, error) {
	if cfg, err := o.store.GetRoomConfig(ctx, roomName); err == nil {
		return cfg.CallID, nil
	}

	if metadata != "" {
		var meta roomMetadata
		if err := json.Unmarshal([]byte(metadata), &meta); err == nil && meta.CallID != "" {
			return meta.CallID, nil
		}
	}

	prefix := callerPrefix(roomName)
	if prefix == "" || !o.namer.Predictive() {
		return "", notFoundError("no call for room", ErrNotFound)
	}
	pending, err := o.store.FindCalls(ctx, func(r *CallRecord) bool {
		return !r.RoomConfirmed && !r.Status.IsTerminal() && callerPrefix(r.RoomName) == prefix
	})
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		return "", notFoundError("no call for room", ErrNotFound)
	}

	// Several unconfirmed calls to the same number: the newest is the one
	// whose bridge is arriving.
	newest := pending[0]
	for _, r := range pending[1:] {
		if r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	return newest.ID, nil
}

// Call returns the record for id.
func (o *Orchestrator) Call(ctx context.Context, id string) (*CallRecord, error) {
	rec, err := o.store.GetCall(ctx, id)
	if err != nil {
		return nil, notFoundError("Call not found", err)
	}
	return rec, nil
}

// RoomConfig returns the config stored for a room.
func (o *Orchestrator) RoomConfig(ctx context.Context, roomName string) (*RoomConfig, error) {
	cfg, err := o.store.GetRoomConfig(ctx, roomName)
	if err != nil {
		return nil, notFoundError("Room config not found", err)
	}
	return cfg, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

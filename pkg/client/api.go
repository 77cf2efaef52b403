package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InitiateRequest is the body of POST /call/initiate.
type InitiateRequest struct {
	PhoneNumber  string `json:"phone_number"`
	Language     string `json:"language,omitempty"`
	LanguageName string `json:"language_name,omitempty"`
	Prompt       string `json:"prompt"`
}

type InitiateResponse struct {
	Success       bool   `json:"success"`
	CallID        string `json:"call_id"`
	RoomName      string `json:"room_name"`
	Status        string `json:"status"`
	TwilioCallSID string `json:"twilio_call_sid"`
	Message       string `json:"message"`
}

type CallStatus struct {
	Success       bool   `json:"success"`
	CallID        string `json:"call_id"`
	Status        string `json:"status"`
	Phone         string `json:"phone"`
	RoomName      string `json:"room_name"`
	TwilioCallSID string `json:"twilio_call_sid"`
	RoomConfirmed bool   `json:"room_confirmed"`
	DialOutcome   string `json:"dial_outcome"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type RoomConfig struct {
	Success      bool   `json:"success"`
	RoomName     string `json:"room_name"`
	Phone        string `json:"phone"`
	Language     string `json:"language"`
	LanguageName string `json:"language_name"`
	Prompt       string `json:"prompt"`
	CallID       string `json:"call_id"`
}

// APIError is a non-2xx answer from the bridge.
type APIError struct {
	StatusCode int
	Message    string
	CallID     string
}

func (e *APIError) Error() string {
	if e.CallID != "" {
		return fmt.Sprintf("bridge returned %d: %s (call_id=%s)", e.StatusCode, e.Message, e.CallID)
	}
	return fmt.Sprintf("bridge returned %d: %s", e.StatusCode, e.Message)
}

// API is a typed client for the call bridge HTTP API.
type API struct {
	baseURL string
	http    *HTTPClient
}

func NewAPI(baseURL string, timeout time.Duration) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    NewHTTPClient("callbridge-api", timeout),
	}
}

// InitiateCall starts an outbound call. The request is sent once; a caller
// that resends after a 5xx or timeout should check the call first, since the
// dial may already be out. The idempotency key lets a Redis-backed server
// replay a completed initiate.
func (a *API) InitiateCall(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	resp, err := a.http.Post(ctx, a.baseURL+"/call/initiate", req, map[string]string{
		"Idempotency-Key": uuid.NewString(),
	})
	var out InitiateResponse
	if err := decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) CallStatus(ctx context.Context, callID string) (*CallStatus, error) {
	resp, err := a.http.Get(ctx, a.baseURL+"/call/status?"+url.Values{"call_id": {callID}}.Encode())
	var out CallStatus
	if err := decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) RoomConfig(ctx context.Context, roomName string) (*RoomConfig, error) {
	resp, err := a.http.Get(ctx, a.baseURL+"/call/config?"+url.Values{"room_name": {roomName}}.Encode())
	var out RoomConfig
	if err := decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decode(resp *Response, err error, out interface{}) error {
	if resp != nil && resp.StatusCode >= 400 {
		var body struct {
			Error  string `json:"error"`
			CallID string `json:"call_id"`
		}
		_ = json.Unmarshal(resp.Body, &body)
		if body.Error == "" {
			body.Error = strings.TrimSpace(string(resp.Body))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error, CallID: body.CallID}
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

package twilio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	twiliogo "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/pkg/circuitbreaker"
	"github.com/troikatech/callbridge/pkg/logger"
	"github.com/troikatech/callbridge/pkg/metrics"
	"github.com/troikatech/callbridge/pkg/otel"
	"github.com/troikatech/callbridge/pkg/utils"
)

const serviceName = "twilio"

var (
	ErrMissingFromNumber = errors.New("twilio caller-id number is not configured")
	ErrCallNotFound      = errors.New("twilio call not found")
)

// statusCallbackEvents are the lifecycle phases we ask the carrier to report.
var statusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

// callAPI is the slice of the v2010 REST API used here.
type callAPI interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
	FetchCall(sid string, params *openapi.FetchCallParams) (*openapi.ApiV2010Call, error)
}

type Client struct {
	api     callAPI
	from    string
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// DialRequest describes an outbound call. AnswerURL receives the answer
// callback and StatusURL the lifecycle callbacks.
type DialRequest struct {
	To        string
	AnswerURL string
	StatusURL string
}

// CallInfo is the carrier's view of a call.
type CallInfo struct {
	SID       string
	Status    string
	From      string
	To        string
	Direction string
	Duration  string
	StartTime string
	EndTime   string
}

func NewClient(accountSID, authToken, fromNumber string, logger *zap.Logger) *Client {
	rest := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Client{
		api:     rest.Api,
		from:    fromNumber,
		breaker: circuitbreaker.New(serviceName, circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

// FromNumber is the caller id used for outbound calls.
func (c *Client) FromNumber() string {
	return c.from
}

// PlaceCall asks the carrier to dial req.To and returns the carrier call id.
func (c *Client) PlaceCall(ctx context.Context, req DialRequest) (string, error) {
	if c.from == "" {
		return "", ErrMissingFromNumber
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(c.from)
	params.SetUrl(req.AnswerURL)
	params.SetMethod(http.MethodPost)
	if req.StatusURL != "" {
		params.SetStatusCallback(req.StatusURL)
		params.SetStatusCallbackMethod(http.MethodPost)
		params.SetStatusCallbackEvent(statusCallbackEvents)
	}

	var sid string
	err := c.call(ctx, "create_call", func() error {
		resp, err := c.api.CreateCall(params)
		if err != nil {
			return fmt.Errorf("create call: %w", err)
		}
		if resp == nil || resp.Sid == nil || *resp.Sid == "" {
			return errors.New("create call: response carried no call sid")
		}
		sid = *resp.Sid
		return nil
	}, attribute.String("phone.masked", utils.MaskPhoneNumber(req.To)))
	if err != nil {
		return "", err
	}

	c.logger.Info("Carrier accepted outbound call",
		zap.String("twilio_call_sid", sid),
		logger.MaskPhone("to", req.To),
	)
	return sid, nil
}

// FetchCall returns the carrier's current record of a call.
func (c *Client) FetchCall(ctx context.Context, sid string) (*CallInfo, error) {
	var info *CallInfo
	err := c.call(ctx, "fetch_call", func() error {
		resp, err := c.api.FetchCall(sid, &openapi.FetchCallParams{})
		if err != nil {
			var restErr *twclient.TwilioRestError
			if errors.As(err, &restErr) && restErr.Status == http.StatusNotFound {
				return fmt.Errorf("%w: %s", ErrCallNotFound, sid)
			}
			return fmt.Errorf("fetch call: %w", err)
		}
		info = toCallInfo(resp)
		return nil
	}, attribute.String("twilio.call_sid", sid))
	return info, err
}

// call runs fn behind the breaker and a context boundary. The REST SDK takes
// no context, so a stalled request is abandoned to its goroutine when ctx
// expires.
func (c *Client) call(ctx context.Context, operation string, fn func() error, attrs ...attribute.KeyValue) error {
	start := time.Now()
	ctx, end := otel.StartGatewaySpan(ctx, serviceName, operation, attrs...)

	err := c.breaker.Execute(ctx, func() error {
		done := make(chan error, 1)
		go func() { done <- fn() }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return fmt.Errorf("%s %s: %w", serviceName, operation, ctx.Err())
		}
	})
	end(err)

	metrics.RecordServiceCall(serviceName, err == nil, time.Since(start))
	metrics.UpdateCircuitBreaker(serviceName, c.breaker.GetState().String(), int64(c.breaker.Failures()))
	return err
}

func toCallInfo(resp *openapi.ApiV2010Call) *CallInfo {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	info := &CallInfo{
		SID:       deref(resp.Sid),
		From:      deref(resp.From),
		To:        deref(resp.To),
		Direction: deref(resp.Direction),
		Duration:  deref(resp.Duration),
		StartTime: deref(resp.StartTime),
		EndTime:   deref(resp.EndTime),
	}
	if resp.Status != nil {
		info.Status = string(*resp.Status)
	}
	return info
}

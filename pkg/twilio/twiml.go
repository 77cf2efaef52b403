package twilio

import (
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

const (
	WaitMessage    = "Connecting to AI assistant. Please wait."
	ApologyMessage = "Sorry, there was an error connecting the call."
	// MissingRoomMessage is spoken when the answer callback cannot resolve
	// where to bridge the call.
	MissingRoomMessage = "Sorry, there was an error connecting the call. Missing room information."
)

// ContentType is the media type of every TwiML document.
const ContentType = "text/xml"

// Bridge is the SIP leg the answered call is dialed into.
type Bridge struct {
	SIPURI    string
	CallerID  string // optional; presented to the SIP side
	ActionURL string // optional; receives the dial outcome
}

// SIPURI builds sip:<user>@<endpoint>. The endpoint may be configured with or
// without a sip: scheme or a leading @.
func SIPURI(user, endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	endpoint = strings.TrimPrefix(endpoint, "sip:")
	endpoint = strings.TrimPrefix(endpoint, "@")
	return "sip:" + user + "@" + endpoint
}

// BridgeTwiML dials the answered call into the SIP endpoint.
func BridgeTwiML(b Bridge) (string, error) {
	dial := &twiml.VoiceDial{
		CallerId:      b.CallerID,
		InnerElements: []twiml.Element{&twiml.VoiceSip{SipUrl: b.SIPURI}},
	}
	if b.ActionURL != "" {
		dial.Action = b.ActionURL
		dial.Method = http.MethodPost
	}
	return twiml.Voice([]twiml.Element{dial})
}

// SayTwiML speaks message, optionally hanging up afterwards.
func SayTwiML(message string, hangup bool) (string, error) {
	verbs := []twiml.Element{&twiml.VoiceSay{Message: message}}
	if hangup {
		verbs = append(verbs, &twiml.VoiceHangup{})
	}
	return twiml.Voice(verbs)
}

// EmptyTwiML acknowledges a callback without instructions.
func EmptyTwiML() string {
	doc, err := twiml.Voice(nil)
	if err != nil {
		return `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	}
	return doc
}

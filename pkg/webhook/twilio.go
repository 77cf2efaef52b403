package webhook

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go/client"
)

var (
	ErrSignatureMissing = errors.New("signature header missing")
	ErrSignatureInvalid = errors.New("invalid signature")
)

const TwilioSignatureHeader = "X-Twilio-Signature"

// TwilioVerifier checks X-Twilio-Signature against the public URL the
// carrier was given. If the auth token is empty, verification is skipped.
type TwilioVerifier struct {
	validator *client.RequestValidator
	baseURL   string
}

// NewTwilioVerifier builds a verifier. baseURL is the externally visible
// origin (API_BASE_URL); requests arrive behind proxies so the local Host
// header cannot be trusted to reproduce the signed URL.
func NewTwilioVerifier(authToken, baseURL string) *TwilioVerifier {
	if authToken == "" {
		return &TwilioVerifier{}
	}
	v := client.NewRequestValidator(authToken)
	return &TwilioVerifier{
		validator: &v,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Verify validates a form-encoded POST. The request form must already be
// parsed.
func (v *TwilioVerifier) Verify(r *http.Request) error {
	if v == nil || v.validator == nil {
		return nil
	}

	signature := r.Header.Get(TwilioSignatureHeader)
	if signature == "" {
		return ErrSignatureMissing
	}

	if !v.validator.Validate(v.signedURL(r), flatten(r.PostForm), signature) {
		return ErrSignatureInvalid
	}
	return nil
}

func (v *TwilioVerifier) signedURL(r *http.Request) string {
	base := v.baseURL
	if base == "" {
		scheme := "https"
		if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") == "" {
			scheme = "http"
		} else if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
			scheme = p
		}
		base = scheme + "://" + r.Host
	}
	return base + r.URL.RequestURI()
}

func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

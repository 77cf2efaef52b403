package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
)

const testToken = "12345"

func sign(fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(testToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newStatusRequest(form url.Values, signature string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhook/telephony/status", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		r.Header.Set(TwilioSignatureHeader, signature)
	}
	r.ParseForm()
	return r
}

func TestTwilioVerifier_ValidSignature(t *testing.T) {
	form := url.Values{"CallSid": {"CA123"}, "CallStatus": {"ringing"}}
	v := NewTwilioVerifier(testToken, "https://bridge.example.com/")

	sig := sign("https://bridge.example.com/webhook/telephony/status", form)
	if err := v.Verify(newStatusRequest(form, sig)); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestTwilioVerifier_InvalidSignature(t *testing.T) {
	form := url.Values{"CallSid": {"CA123"}, "CallStatus": {"ringing"}}
	v := NewTwilioVerifier(testToken, "https://bridge.example.com")

	sig := sign("https://bridge.example.com/webhook/telephony/status", url.Values{"CallSid": {"CA999"}})
	if err := v.Verify(newStatusRequest(form, sig)); err != ErrSignatureInvalid {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestTwilioVerifier_MissingSignature(t *testing.T) {
	v := NewTwilioVerifier(testToken, "https://bridge.example.com")
	if err := v.Verify(newStatusRequest(url.Values{}, "")); err != ErrSignatureMissing {
		t.Fatalf("expected ErrSignatureMissing, got %v", err)
	}
}

func TestTwilioVerifier_NoTokenSkips(t *testing.T) {
	v := NewTwilioVerifier("", "")
	if err := v.Verify(newStatusRequest(url.Values{}, "")); err != nil {
		t.Fatalf("expected skip, got %v", err)
	}
}

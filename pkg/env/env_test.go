package env

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ROOM_NAME_STRATEGY", "")
	t.Setenv("APP_PORT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.AppPort != "8081" {
		t.Fatalf("expected default port 8081, got %q", cfg.AppPort)
	}
	if cfg.RoomNameStrategy != RoomStrategyRandom {
		t.Fatalf("expected random strategy, got %q", cfg.RoomNameStrategy)
	}
	if !cfg.RoomPrecreate {
		t.Fatalf("expected room pre-creation on by default")
	}
	if cfg.LiveKitAgentName != "callcenter-agent" {
		t.Fatalf("unexpected agent name %q", cfg.LiveKitAgentName)
	}
}

func TestLoad_TrimsValues(t *testing.T) {
	t.Setenv("TWILIO_PHONE_NUMBER", "  +15550001111 \n")
	t.Setenv("GATEWAY_TIMEOUT_MS", " 2500 ")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.TwilioPhoneNumber != "+15550001111" {
		t.Fatalf("expected trimmed number, got %q", cfg.TwilioPhoneNumber)
	}
	if cfg.GatewayTimeoutMs != 2500 {
		t.Fatalf("expected 2500, got %d", cfg.GatewayTimeoutMs)
	}
}

func TestLoad_RejectsUnknownStrategy(t *testing.T) {
	t.Setenv("ROOM_NAME_STRATEGY", "sequential")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	if _, err := Load("/nonexistent/.env"); err != nil {
		t.Fatalf("missing .env should not fail: %v", err)
	}
}

func TestConfigured(t *testing.T) {
	cfg := &Config{LiveKitURL: "https://lk", LiveKitAPIKey: "k"}
	if cfg.LiveKitConfigured() {
		t.Fatalf("livekit without secret should not count as configured")
	}
	cfg.LiveKitAPISecret = "s"
	if !cfg.LiveKitConfigured() {
		t.Fatalf("expected livekit configured")
	}
	if cfg.TwilioConfigured() {
		t.Fatalf("twilio should not be configured")
	}
}

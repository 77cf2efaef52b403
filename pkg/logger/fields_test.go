package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestCallFields_SkipsEmpty(t *testing.T) {
	fields := CallFields("c1", "", "CA123")
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Key != "call_id" || fields[1].Key != "twilio_call_sid" {
		t.Fatalf("unexpected keys: %s, %s", fields[0].Key, fields[1].Key)
	}
}

func TestMaskPhone(t *testing.T) {
	if f := MaskPhone("phone", ""); f.Type != zapcore.SkipType {
		t.Fatalf("expected empty phone to be skipped")
	}
	if f := MaskPhone("phone", "+15551234567"); f.String == "+15551234567" {
		t.Fatalf("phone was not masked")
	}
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()

	if err := Init("chatty", "test"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if Log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be disabled at the default level")
	}
	if !Log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be enabled")
	}
}

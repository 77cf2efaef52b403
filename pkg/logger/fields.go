package logger

import (
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/pkg/utils"
)

// CallFields returns the fields attached to every call lifecycle log line.
// Empty values are skipped.
func CallFields(callID, roomName, carrierCallID string) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if callID != "" {
		fields = append(fields, zap.String("call_id", callID))
	}
	if roomName != "" {
		fields = append(fields, zap.String("room_name", roomName))
	}
	if carrierCallID != "" {
		fields = append(fields, zap.String("twilio_call_sid", carrierCallID))
	}
	return fields
}

// MaskPhone logs a phone number with its middle digits hidden.
func MaskPhone(key, phone string) zap.Field {
	if phone == "" {
		return zap.Skip()
	}
	return zap.String(key, utils.MaskPhoneNumber(phone))
}

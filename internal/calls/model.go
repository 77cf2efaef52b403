package calls

import "time"

const (
	DefaultLanguage     = "en-US"
	DefaultLanguageName = "English"
)

// CallRecord is one outbound call attempt.
type CallRecord struct {
	ID            string    `json:"call_id"`
	Phone         string    `json:"phone"`
	Language      string    `json:"language"`
	LanguageName  string    `json:"language_name"`
	Prompt        string    `json:"prompt"`
	RoomName      string    `json:"room_name"`
	CarrierCallID string    `json:"twilio_call_sid,omitempty"`
	Status        Status    `json:"status"`
	RoomConfirmed bool      `json:"room_confirmed"`
	DialOutcome   string    `json:"dial_outcome,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// progress is the highest state rank reached; it survives a verbatim
	// carrier phase overwriting Status.
	progress int
}

// RoomConfig is what the agent needs after being dispatched into a room it
// did not create.
type RoomConfig struct {
	Phone        string `json:"phone"`
	Language     string `json:"language"`
	LanguageName string `json:"language_name"`
	Prompt       string `json:"prompt"`
	CallID       string `json:"call_id"`
}

// roomMetadata is attached to the session room for the dispatched agent.
type roomMetadata struct {
	CallID       string `json:"call_id"`
	Phone        string `json:"phone"`
	Language     string `json:"language"`
	LanguageName string `json:"language_name"`
	Prompt       string `json:"prompt"`
}

func (r *CallRecord) roomConfig() RoomConfig {
	return RoomConfig{
		Phone:        r.Phone,
		Language:     r.Language,
		LanguageName: r.LanguageName,
		Prompt:       r.Prompt,
		CallID:       r.ID,
	}
}

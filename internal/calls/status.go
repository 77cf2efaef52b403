package calls

import "strings"

// Status is a call state. Carrier phases that have no mapping are stored
// verbatim, so the type is open.
type Status string

const (
	StatusInitiating Status = "initiating"
	StatusQueued     Status = "queued"
	StatusRinging    Status = "ringing"
	StatusAnswered   Status = "answered"
	StatusConnected  Status = "connected"
	StatusCompleted  Status = "completed"
	StatusBusy       Status = "busy"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no-answer"
	StatusCancelled  Status = "cancelled"
	StatusSIPFailed  Status = "sip_failed"
)

// Statuses reported on initiate when no carrier dial took place. They
// describe the initiation result, not a record state.
const (
	ResultRoomCreated = "room_created"
	ResultReady       = "ready"
)

// rank orders the non-terminal happy path.
var rank = map[Status]int{
	StatusInitiating: 0,
	StatusQueued:     1,
	StatusRinging:    2,
	StatusAnswered:   3,
	StatusConnected:  4,
}

var terminal = map[Status]bool{
	StatusCompleted: true,
	StatusBusy:      true,
	StatusFailed:    true,
	StatusNoAnswer:  true,
	StatusCancelled: true,
	StatusSIPFailed: true,
}

var carrierStatus = map[string]Status{
	"initiated":   StatusQueued,
	"queued":      StatusQueued,
	"ringing":     StatusRinging,
	"answered":    StatusAnswered,
	"in-progress": StatusConnected,
	"completed":   StatusCompleted,
	"busy":        StatusBusy,
	"failed":      StatusFailed,
	"no-answer":   StatusNoAnswer,
	"canceled":    StatusCancelled,
}

// dialFailures are bridge-leg outcomes that mean the SIP side never came up.
var dialFailures = map[string]bool{
	"failed":    true,
	"busy":      true,
	"no-answer": true,
	"canceled":  true,
}

// IsTerminal reports whether no further transitions leave s.
func (s Status) IsTerminal() bool {
	return terminal[s]
}

// MapCarrierStatus maps a carrier phase to an internal status. Unknown phases
// are returned verbatim with ok=false.
func MapCarrierStatus(phase string) (Status, bool) {
	phase = strings.ToLower(strings.TrimSpace(phase))
	if s, ok := carrierStatus[phase]; ok {
		return s, true
	}
	return Status(phase), false
}

// IsDialFailure reports whether a dial outcome means the bridge failed.
func IsDialFailure(outcome string) bool {
	return dialFailures[strings.ToLower(strings.TrimSpace(outcome))]
}

// advance applies next to the record and reports whether anything changed.
// Terminal records never change. Known states only move forward; a terminal
// state is reachable from any non-terminal one. Unknown phases are stored
// verbatim without affecting progress.
func (r *CallRecord) advance(next Status, known bool) bool {
	if r.Status.IsTerminal() || next == "" {
		return false
	}
	if !known {
		if r.Status == next {
			return false
		}
		r.Status = next
		return true
	}
	if next.IsTerminal() {
		r.Status = next
		return true
	}
	if rank[next] <= r.progress {
		return false
	}
	r.Status = next
	r.progress = rank[next]
	return true
}

// failSIP forces sip_failed from any non-terminal state.
func (r *CallRecord) failSIP() bool {
	if r.Status.IsTerminal() {
		return false
	}
	r.Status = StatusSIPFailed
	return true
}

package scheduler

import "time"

type State string

const (
	StateConnecting State = "connecting"
	StateLive       State = "live"
	StateOffline    State = "offline"
)

const (
	MessageFetching = "Fetching…"
	MessageLive     = "Live ✓ Fetched successfully"
	failedPrefix    = "Failed: "
)

// Pill is the short indicator text for a state.
func (s State) Pill() string {
	switch s {
	case StateLive:
		return "Live ✓"
	case StateOffline:
		return "Offline"
	default:
		return "Connecting…"
	}
}

// Status is what the console shows in its status line.
type Status struct {
	State      State     `json:"state"`
	Pill       string    `json:"pill"`
	Message    string    `json:"message"`
	AppliedSeq uint64    `json:"applied_seq"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newStatus(state State, message string, applied uint64, at time.Time) Status {
	return Status{State: state, Pill: state.Pill(), Message: message, AppliedSeq: applied, UpdatedAt: at}
}

package llm

import "time"

// State is the readiness of a model on the backend
type State string

const (
	StateReady       State = "ready"
	StateMissing     State = "missing"     // backend is up, model not pulled
	StateUnavailable State = "unavailable" // backend unreachable or erroring
)

// Status is a point-in-time readiness snapshot. It is a value: refreshing
// readiness produces a new Status instead of mutating a shared flag.
type Status struct {
	State     State     `json:"state"`
	Model     string    `json:"model"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Ready reports whether requests can be sent
func (s Status) Ready() bool {
	return s.State == StateReady
}

// Label is the short human readable form shown in status widgets
func (s Status) Label() string {
	switch s.State {
	case StateReady:
		return "✅ Ready"
	case StateMissing:
		return "⏳ Loading..."
	default:
		return "❌ Ollama unavailable"
	}
}

// Stale reports whether the snapshot is older than maxAge
func (s Status) Stale(now time.Time, maxAge time.Duration) bool {
	return s.CheckedAt.IsZero() || now.Sub(s.CheckedAt) > maxAge
}

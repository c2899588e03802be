package server

import "time"

type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateListening
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Info is a point-in-time snapshot of the server.
type Info struct {
	Port           int        `json:"port"`
	PID            int        `json:"pid"`
	Environment    string     `json:"environment"`
	Uptime         float64    `json:"uptime"`
	IsListening    bool       `json:"isListening"`
	IsShuttingDown bool       `json:"isShuttingDown"`
	State          string     `json:"state"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
}

// ShutdownResult describes how Stop finished. Skipped is set when another
// call already owned the shutdown; Forced when the watchdog had to close
// connections that did not drain in time.
type ShutdownResult struct {
	Skipped  bool
	Forced   bool
	Duration time.Duration
}

package database

import (
	"context"
	"time"
)

type Status struct {
	Up        bool      `json:"up"`
	CheckedAt time.Time `json:"checkedAt"`
	Latency   float64   `json:"latencyMs"`
	Error     string    `json:"error,omitempty"`
}

// Heartbeat pings the pool and records the outcome for Status. Transitions
// between up and down are logged once.
func (db *DB) Heartbeat(ctx context.Context) error {
	start := time.Now()
	err := db.Ping(ctx)

	status := Status{
		Up:        err == nil,
		CheckedAt: start.UTC(),
		Latency:   float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		status.Error = err.Error()
	}

	db.statusMu.Lock()
	prev := db.status
	db.status = status
	db.statusMu.Unlock()

	switch {
	case !status.Up && (prev.Up || prev.CheckedAt.IsZero()):
		db.log.Error("Database unreachable", "error", err)
	case status.Up && !prev.Up && !prev.CheckedAt.IsZero():
		db.log.Info("Database reachable again", "latencyMs", status.Latency)
	}
	return err
}

// Status is the result of the latest heartbeat; the zero value means no check ran yet.
func (db *DB) Status() Status {
	db.statusMu.RLock()
	defer db.statusMu.RUnlock()
	return db.status
}

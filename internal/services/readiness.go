package services

import (
	"context"
	"sync"

	"climate-platform/pkg/logging"
)

// Readiness states
const (
	StateNotReady = "not_ready"
	StateReady    = "ready"
	StateError    = "error"
)

// ReadinessStatus is the externally visible startup state
type ReadinessStatus struct {
	Ready bool                 `json:"ready"`
	State string               `json:"state"`
	Error string               `json:"error,omitempty"`
	Info  *StationImportResult `json:"info,omitempty"`
}

// StationEnsurer populates the station table on startup
type StationEnsurer interface {
	EnsureStations(ctx context.Context) (*StationImportResult, error)
}

// Readiness tracks the asynchronous startup import
type Readiness struct {
	mu     sync.RWMutex
	status ReadinessStatus
	logger *logging.StructuredLogger
}

// NewReadiness returns a tracker in the not-ready state
func NewReadiness(logger *logging.StructuredLogger) *Readiness {
	return &Readiness{
		status: ReadinessStatus{State: StateNotReady},
		logger: logger,
	}
}

// Status returns a snapshot of the current state
func (r *Readiness) Status() ReadinessStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Run executes the startup import and records its outcome
func (r *Readiness) Run(ctx context.Context, ensurer StationEnsurer) {
	info, err := ensurer.EnsureStations(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.status = ReadinessStatus{State: StateError, Error: err.Error()}
		r.logger.Error(ctx, "[READINESS_ERROR] Startup station import failed", logging.Fields{}, err)
		return
	}

	r.status = ReadinessStatus{Ready: true, State: StateReady, Info: info}
	r.logger.Info(ctx, "[READINESS_READY] Service ready", logging.Fields{
		"imported":       info.Imported,
		"stations_count": info.StationsCount,
	})
}

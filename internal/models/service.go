package models

import (
	"errors"
	"time"
)

var (
	// ErrNoSnapshot is returned before the first successful refresh.
	ErrNoSnapshot = errors.New("no incident snapshot loaded")
	// ErrStaleSnapshot is returned to callers requiring the latest snapshot when
	// it was replaced while their computation ran.
	ErrStaleSnapshot = errors.New("incident snapshot changed during computation")
	// ErrInvalidFilter wraps filter validation failures.
	ErrInvalidFilter = errors.New("invalid filter")
)

// ServiceStatus describes the loaded snapshot and configuration.
type ServiceStatus struct {
	Ready           bool      `json:"ready"`
	SnapshotVersion uint64    `json:"snapshotVersion"`
	Records         int       `json:"records"`
	LoadedAt        time.Time `json:"loadedAt"`
	ConfigVersion   string    `json:"configVersion"`
	LatencyP95      string    `json:"latencyP95"`
}

// Package arbiter serializes admission decisions per vehicle. Every
// operation that reads the calendar index and then writes (create, accept,
// cancel, sweep) runs under the vehicle's lock, so two concurrent operations
// cannot both observe a stale index and both succeed.
package arbiter

import (
	"context"
	"sync"
	"time"

	apperrors "wheelshare/pkg/errors"
)

// VehicleLocks hands out one exclusive lock per vehicle ID. Acquisition is
// bounded: callers that cannot get the lock within the configured wait fail
// with a BUSY error and are expected to retry. Lock tokens are purely
// in-process and never persisted.
type VehicleLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	wait    time.Duration
}

type lockEntry struct {
	sem  chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

func NewVehicleLocks(wait time.Duration) *VehicleLocks {
	return &VehicleLocks{
		entries: make(map[string]*lockEntry),
		wait:    wait,
	}
}

// Acquire takes the vehicle's lock, waiting at most the configured timeout
// (or until ctx is done, whichever is sooner). On success it returns a
// release function that must be called exactly once.
func (vl *VehicleLocks) Acquire(ctx context.Context, vehicleID string) (func(), error) {
	vl.mu.Lock()
	entry, ok := vl.entries[vehicleID]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		vl.entries[vehicleID] = entry
	}
	entry.refs++
	vl.mu.Unlock()

	timer := time.NewTimer(vl.wait)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() { vl.release(vehicleID, entry) }, nil
	case <-timer.C:
		vl.unref(vehicleID, entry)
		return nil, apperrors.Busy("vehicle is busy with another reservation request, try again")
	case <-ctx.Done():
		vl.unref(vehicleID, entry)
		return nil, apperrors.Busy("request cancelled while waiting for the vehicle lock")
	}
}

func (vl *VehicleLocks) release(vehicleID string, entry *lockEntry) {
	<-entry.sem
	vl.unref(vehicleID, entry)
}

// unref drops a reference and evicts the entry once nobody holds or waits
// for it, so the map does not grow with the vehicle catalogue.
func (vl *VehicleLocks) unref(vehicleID string, entry *lockEntry) {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(vl.entries, vehicleID)
	}
}

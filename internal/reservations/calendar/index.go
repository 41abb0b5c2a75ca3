// Package calendar keeps the per-vehicle index of committed date intervals.
// Only accepted bookings appear here; the index is a derivative of the
// booking store, rebuilt at startup and maintained incrementally by the
// reservation engine.
package calendar

import (
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "wheelshare/pkg/errors"
)

// Interval is a committed half-open [Start, End) range held by a booking.
type Interval struct {
	BookingID string
	Start     time.Time
	End       time.Time
}

// Index answers overlap queries per vehicle. Intervals for a vehicle are
// kept sorted by start and non-overlapping by construction: Insert refuses
// anything that would violate that.
type Index struct {
	mu       sync.RWMutex
	vehicles map[string][]Interval
}

func NewIndex() *Index {
	return &Index{
		vehicles: make(map[string][]Interval),
	}
}

// Overlaps reports whether any committed interval for the vehicle intersects
// [start, end).
func (idx *Index) Overlaps(vehicleID string, start, end time.Time) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	intervals := idx.vehicles[vehicleID]
	i := searchAffected(intervals, start)
	return i < len(intervals) && intervals[i].Start.Before(end)
}

// Insert adds a committed interval. Returns a conflict error if the interval
// would overlap an existing entry; the caller is expected to have checked
// already, this is the defensive double-check.
func (idx *Index) Insert(vehicleID, bookingID string, start, end time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	intervals := idx.vehicles[vehicleID]
	i := searchAffected(intervals, start)
	if i < len(intervals) && intervals[i].Start.Before(end) {
		return apperrors.Conflict(fmt.Sprintf(
			"vehicle is not available between %s and %s",
			start.Format(time.DateOnly),
			end.Format(time.DateOnly),
		))
	}

	entry := Interval{BookingID: bookingID, Start: start, End: end}
	intervals = append(intervals, Interval{})
	copy(intervals[i+1:], intervals[i:])
	intervals[i] = entry
	idx.vehicles[vehicleID] = intervals
	return nil
}

// Remove deletes the interval held by bookingID, freeing its dates. Removing
// an interval that is not present is a no-op.
func (idx *Index) Remove(vehicleID, bookingID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	intervals := idx.vehicles[vehicleID]
	for i, iv := range intervals {
		if iv.BookingID == bookingID {
			intervals = append(intervals[:i], intervals[i+1:]...)
			break
		}
	}

	if len(intervals) == 0 {
		delete(idx.vehicles, vehicleID)
		return
	}
	idx.vehicles[vehicleID] = intervals
}

// Rebuild replaces the whole index with the given committed intervals, used
// when hydrating from the booking store at startup.
func (idx *Index) Rebuild(entries map[string][]Interval) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.vehicles = make(map[string][]Interval, len(entries))
	for vehicleID, intervals := range entries {
		sorted := make([]Interval, len(intervals))
		copy(sorted, intervals)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Start.Before(sorted[j].Start)
		})
		idx.vehicles[vehicleID] = sorted
	}
}

// Count returns the number of committed intervals for a vehicle.
func (idx *Index) Count(vehicleID string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vehicles[vehicleID])
}

// searchAffected returns the position of the first interval whose end is
// after start, i.e. the first interval that could intersect a query
// beginning at start. With intervals sorted and disjoint this is also the
// insertion point for a new interval starting at start.
func searchAffected(intervals []Interval, start time.Time) int {
	return sort.Search(len(intervals), func(i int) bool {
		return intervals[i].End.After(start)
	})
}

package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "wheelshare/pkg/errors"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)
	return d
}

func TestInsertAndOverlaps(t *testing.T) {
	idx := NewIndex()

	require.NoError(t, idx.Insert("v1", "b1", day(t, "2025-06-10"), day(t, "2025-06-14")))

	assert.True(t, idx.Overlaps("v1", day(t, "2025-06-10"), day(t, "2025-06-14")))
	assert.True(t, idx.Overlaps("v1", day(t, "2025-06-13"), day(t, "2025-06-20")))
	assert.True(t, idx.Overlaps("v1", day(t, "2025-06-01"), day(t, "2025-06-11")))
	assert.False(t, idx.Overlaps("v1", day(t, "2025-06-14"), day(t, "2025-06-18")), "half-open: end date is free")
	assert.False(t, idx.Overlaps("v1", day(t, "2025-06-01"), day(t, "2025-06-10")), "half-open: start date boundary is free")
	assert.False(t, idx.Overlaps("v2", day(t, "2025-06-10"), day(t, "2025-06-14")), "other vehicles are unaffected")
}

func TestInsertRejectsOverlap(t *testing.T) {
	idx := NewIndex()

	require.NoError(t, idx.Insert("v1", "b1", day(t, "2025-06-10"), day(t, "2025-06-14")))

	err := idx.Insert("v1", "b2", day(t, "2025-06-12"), day(t, "2025-06-16"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Equal(t, 1, idx.Count("v1"))
}

func TestInsertKeepsSortedOrder(t *testing.T) {
	idx := NewIndex()

	require.NoError(t, idx.Insert("v1", "b3", day(t, "2025-06-20"), day(t, "2025-06-22")))
	require.NoError(t, idx.Insert("v1", "b1", day(t, "2025-06-01"), day(t, "2025-06-03")))
	require.NoError(t, idx.Insert("v1", "b2", day(t, "2025-06-10"), day(t, "2025-06-14")))

	assert.Equal(t, 3, idx.Count("v1"))
	assert.True(t, idx.Overlaps("v1", day(t, "2025-06-02"), day(t, "2025-06-11")))
	assert.False(t, idx.Overlaps("v1", day(t, "2025-06-04"), day(t, "2025-06-10")), "gap between intervals stays free")
}

func TestRemoveFreesDates(t *testing.T) {
	idx := NewIndex()

	require.NoError(t, idx.Insert("v1", "b1", day(t, "2025-06-10"), day(t, "2025-06-14")))
	idx.Remove("v1", "b1")

	assert.False(t, idx.Overlaps("v1", day(t, "2025-06-10"), day(t, "2025-06-14")))
	assert.Equal(t, 0, idx.Count("v1"))

	// Removing again is a no-op.
	idx.Remove("v1", "b1")
	idx.Remove("v2", "b1")
}

func TestRebuildReplacesEverything(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Insert("v1", "old", day(t, "2025-06-01"), day(t, "2025-06-05")))

	idx.Rebuild(map[string][]Interval{
		"v2": {
			// Deliberately unsorted input.
			{BookingID: "b2", Start: day(t, "2025-07-10"), End: day(t, "2025-07-12")},
			{BookingID: "b1", Start: day(t, "2025-07-01"), End: day(t, "2025-07-03")},
		},
	})

	assert.Equal(t, 0, idx.Count("v1"), "rebuild drops previous contents")
	assert.Equal(t, 2, idx.Count("v2"))
	assert.True(t, idx.Overlaps("v2", day(t, "2025-07-02"), day(t, "2025-07-04")))
	assert.False(t, idx.Overlaps("v2", day(t, "2025-07-03"), day(t, "2025-07-10")))
}

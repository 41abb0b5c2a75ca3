package model

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBookingOverlaps(t *testing.T) {
	booking := &Booking{
		StartDate: date(2025, 6, 10),
		EndDate:   date(2025, 6, 14),
	}

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"identical range", date(2025, 6, 10), date(2025, 6, 14), true},
		{"contained", date(2025, 6, 11), date(2025, 6, 12), true},
		{"overlaps tail", date(2025, 6, 13), date(2025, 6, 20), true},
		{"overlaps head", date(2025, 6, 1), date(2025, 6, 11), true},
		{"starts at end boundary", date(2025, 6, 14), date(2025, 6, 18), false},
		{"ends at start boundary", date(2025, 6, 1), date(2025, 6, 10), false},
		{"fully before", date(2025, 6, 1), date(2025, 6, 5), false},
		{"fully after", date(2025, 6, 20), date(2025, 6, 25), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := booking.Overlaps(tc.start, tc.end); got != tc.want {
				t.Errorf("Overlaps(%s, %s) = %v, want %v",
					tc.start.Format(time.DateOnly), tc.end.Format(time.DateOnly), got, tc.want)
			}
		})
	}
}

func TestBookingIsTerminal(t *testing.T) {
	terminal := map[string]bool{
		StatusPending:   false,
		StatusAccepted:  false,
		StatusRejected:  true,
		StatusCancelled: true,
		StatusCompleted: true,
	}

	for status, want := range terminal {
		b := &Booking{Status: status}
		if got := b.IsTerminal(); got != want {
			t.Errorf("IsTerminal() for %s = %v, want %v", status, got, want)
		}
	}
}

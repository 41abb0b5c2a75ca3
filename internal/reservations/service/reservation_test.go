package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"wheelshare/internal/notifier"
	"wheelshare/internal/reservations/arbiter"
	"wheelshare/internal/reservations/calendar"
	reservationserrors "wheelshare/internal/reservations/errors"
	"wheelshare/pkg/config"
	mongotx "wheelshare/pkg/db/mongo"
	apperrors "wheelshare/pkg/errors"
	"wheelshare/pkg/logger"
	"wheelshare/pkg/model"
)

// ────────────────────────────────────────────────
// In-memory fakes
// ────────────────────────────────────────────────

type fakeBookingRepo struct {
	mu       sync.Mutex
	seq      int
	bookings map[string]*model.Booking

	updateStatusFunc func(ctx context.Context, id, from, to string, at time.Time) error
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[string]*model.Booking)}
}

func (f *fakeBookingRepo) Create(ctx context.Context, booking *model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	booking.ID = fmt.Sprintf("booking-%d", f.seq)
	now := time.Now().UTC()
	booking.CreatedAt = now.Add(time.Duration(f.seq) * time.Millisecond)
	booking.UpdatedAt = booking.CreatedAt

	copied := *booking
	f.bookings[booking.ID] = &copied
	return nil
}

func (f *fakeBookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	copied := *booking
	return &copied, nil
}

func (f *fakeBookingRepo) ListByRenter(ctx context.Context, renterID string) ([]*model.Booking, error) {
	return f.scan(func(b *model.Booking) bool { return b.RenterID == renterID })
}

func (f *fakeBookingRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Booking, error) {
	return f.scan(func(b *model.Booking) bool { return b.OwnerID == ownerID })
}

func (f *fakeBookingRepo) ListPendingForOwner(ctx context.Context, ownerID string) ([]*model.Booking, error) {
	return f.scan(func(b *model.Booking) bool {
		return b.OwnerID == ownerID && b.Status == model.StatusPending
	})
}

func (f *fakeBookingRepo) UpdateStatus(ctx context.Context, id, from, to string, at time.Time) error {
	if f.updateStatusFunc != nil {
		return f.updateStatusFunc(ctx, id, from, to, at)
	}
	return f.updateStatus(id, from, to, at)
}

func (f *fakeBookingRepo) updateStatus(id, from, to string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok {
		return reservationserrors.ErrNotFound
	}
	if booking.Status != from {
		return reservationserrors.ErrStatusChanged
	}
	booking.Status = to
	booking.UpdatedAt = at
	return nil
}

func (f *fakeBookingRepo) FindPendingOverlapping(ctx context.Context, vehicleID string, start, end time.Time, excludeID string) ([]*model.Booking, error) {
	return f.scan(func(b *model.Booking) bool {
		return b.VehicleID == vehicleID &&
			b.Status == model.StatusPending &&
			b.ID != excludeID &&
			b.Overlaps(start, end)
	})
}

func (f *fakeBookingRepo) FindAccepted(ctx context.Context) ([]*model.Booking, error) {
	return f.scan(func(b *model.Booking) bool { return b.Status == model.StatusAccepted })
}

func (f *fakeBookingRepo) FindAcceptedEndingBefore(ctx context.Context, cutoff time.Time) ([]*model.Booking, error) {
	return f.scan(func(b *model.Booking) bool {
		return b.Status == model.StatusAccepted && !b.EndDate.After(cutoff)
	})
}

func (f *fakeBookingRepo) WithTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

func (f *fakeBookingRepo) scan(match func(*model.Booking) bool) ([]*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Booking
	for _, b := range f.bookings {
		if match(b) {
			copied := *b
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeBookingRepo) status(t *testing.T, id string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	booking, ok := f.bookings[id]
	if !ok {
		t.Fatalf("booking %s not found in store", id)
	}
	return booking.Status
}

type fakeVehicleRepo struct {
	vehicles map[string]*model.Vehicle
}

func (f *fakeVehicleRepo) FindByID(ctx context.Context, id string) (*model.Vehicle, error) {
	vehicle, ok := f.vehicles[id]
	if !ok {
		return nil, reservationserrors.ErrVehicleNotFound
	}
	return vehicle, nil
}

type recordedEvent struct {
	event     string
	bookingID string
}

type captureNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (c *captureNotifier) Notify(ctx context.Context, event string, booking *model.Booking) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, recordedEvent{event: event, bookingID: booking.ID})
}

func (c *captureNotifier) Close() error { return nil }

func (c *captureNotifier) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.events {
		if e.event == event {
			n++
		}
	}
	return n
}

// ────────────────────────────────────────────────
// Test harness
// ────────────────────────────────────────────────

const (
	testVehicleID = "vehicle-1"
	ownerID       = "owner-1"
	renterID      = "renter-1"
	otherRenterID = "renter-2"
)

type harness struct {
	svc      *reservationService
	bookings *fakeBookingRepo
	calendar *calendar.Index
	locks    *arbiter.VehicleLocks
	events   *captureNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &config.Config{
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}

	bookings := newFakeBookingRepo()
	vehicles := &fakeVehicleRepo{vehicles: map[string]*model.Vehicle{
		testVehicleID: {ID: testVehicleID, OwnerID: ownerID, Name: "Blue van", PricePerDay: 100},
	}}
	idx := calendar.NewIndex()
	locks := arbiter.NewVehicleLocks(200 * time.Millisecond)
	events := &captureNotifier{}

	svc := NewReservationService(cfg, bookings, vehicles, idx, locks, events).(*reservationService)
	// Freeze the clock: "today" is 2025-06-01 for every test.
	svc.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	return &harness{
		svc:      svc,
		bookings: bookings,
		calendar: idx,
		locks:    locks,
		events:   events,
	}
}

func (h *harness) request(t *testing.T, renter, start, end string) *model.Booking {
	t.Helper()
	booking, err := h.svc.RequestBooking(context.Background(), renter, &model.BookingRequest{
		VehicleID: testVehicleID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		t.Fatalf("RequestBooking(%s, %s): unexpected error: %v", start, end, err)
	}
	return booking
}

func (h *harness) respond(t *testing.T, bookingID, actorID, decision string) *model.Booking {
	t.Helper()
	booking, err := h.svc.Respond(context.Background(), bookingID, actorID, decision)
	if err != nil {
		t.Fatalf("Respond(%s, %s): unexpected error: %v", bookingID, decision, err)
	}
	return booking
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		t.Fatalf("bad test date %s: %v", s, err)
	}
	return d
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected error code %s, got: %v", code, err)
	}
}

// ────────────────────────────────────────────────
// RequestBooking
// ────────────────────────────────────────────────

func TestRequestBooking_CreatesPendingWithPriceSnapshot(t *testing.T) {
	h := newHarness(t)

	booking, err := h.svc.RequestBooking(context.Background(), renterID, &model.BookingRequest{
		VehicleID: testVehicleID,
		StartDate: "2025-06-10",
		EndDate:   "2025-06-14",
		Message:   "  hi,   arriving\tlate  ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if booking.Status != model.StatusPending {
		t.Errorf("expected status pending, got %s", booking.Status)
	}
	if booking.OwnerID != ownerID {
		t.Errorf("expected owner %s, got %s", ownerID, booking.OwnerID)
	}
	if booking.TotalDays != 4 {
		t.Errorf("expected 4 days, got %d", booking.TotalDays)
	}
	if booking.PricePerDay != 100 {
		t.Errorf("expected price per day 100, got %d", booking.PricePerDay)
	}
	if booking.TotalPrice != 400 {
		t.Errorf("expected total price 400, got %d", booking.TotalPrice)
	}
	if booking.Message != "hi, arriving late" {
		t.Errorf("message not sanitized, got %q", booking.Message)
	}
	if h.events.count(notifier.EventBookingRequested) != 1 {
		t.Error("expected a booking.requested event")
	}
}

func TestRequestBooking_DateValidation(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name       string
		start, end string
	}{
		{"end equals start", "2025-06-10", "2025-06-10"},
		{"end before start", "2025-06-14", "2025-06-10"},
		{"start in the past", "2025-05-20", "2025-05-25"},
		{"malformed start", "June 10", "2025-06-14"},
		{"malformed end", "2025-06-10", "someday"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.RequestBooking(context.Background(), renterID, &model.BookingRequest{
				VehicleID: testVehicleID,
				StartDate: tc.start,
				EndDate:   tc.end,
			})
			expectCode(t, err, apperrors.CodeValidation)
		})
	}
}

func TestRequestBooking_StartingTodayIsAllowed(t *testing.T) {
	h := newHarness(t)
	h.request(t, renterID, "2025-06-01", "2025-06-03")
}

func TestRequestBooking_OwnVehicle(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.RequestBooking(context.Background(), ownerID, &model.BookingRequest{
		VehicleID: testVehicleID,
		StartDate: "2025-06-10",
		EndDate:   "2025-06-14",
	})
	expectCode(t, err, apperrors.CodeValidation)
}

func TestRequestBooking_VehicleNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.RequestBooking(context.Background(), renterID, &model.BookingRequest{
		VehicleID: "no-such-vehicle",
		StartDate: "2025-06-10",
		EndDate:   "2025-06-14",
	})
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestRequestBooking_ConflictWithCommittedDates(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")
	h.respond(t, booking.ID, ownerID, model.EventAccept)

	_, err := h.svc.RequestBooking(context.Background(), otherRenterID, &model.BookingRequest{
		VehicleID: testVehicleID,
		StartDate: "2025-06-12",
		EndDate:   "2025-06-16",
	})
	expectCode(t, err, apperrors.CodeConflict)
}

func TestRequestBooking_AdjacentDatesDoNotConflict(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")
	h.respond(t, booking.ID, ownerID, model.EventAccept)

	// [10,14) and [14,18) share only the checkout/checkin boundary.
	h.request(t, otherRenterID, "2025-06-14", "2025-06-18")
}

func TestRequestBooking_OverlappingPendingsBothSucceed(t *testing.T) {
	h := newHarness(t)

	first := h.request(t, renterID, "2025-06-10", "2025-06-14")
	second := h.request(t, otherRenterID, "2025-06-12", "2025-06-16")

	if h.bookings.status(t, first.ID) != model.StatusPending {
		t.Error("first booking should remain pending")
	}
	if h.bookings.status(t, second.ID) != model.StatusPending {
		t.Error("second booking should remain pending")
	}
}

func TestRequestBooking_BusyWhenLockHeld(t *testing.T) {
	h := newHarness(t)

	release, err := h.locks.Acquire(context.Background(), testVehicleID)
	if err != nil {
		t.Fatalf("failed to grab the lock: %v", err)
	}
	defer release()

	_, err = h.svc.RequestBooking(context.Background(), renterID, &model.BookingRequest{
		VehicleID: testVehicleID,
		StartDate: "2025-06-10",
		EndDate:   "2025-06-14",
	})
	expectCode(t, err, apperrors.CodeBusy)
}

// ────────────────────────────────────────────────
// Respond
// ────────────────────────────────────────────────

func TestRespond_AcceptCommitsAndAutoRejectsSiblings(t *testing.T) {
	h := newHarness(t)

	accepted := h.request(t, renterID, "2025-06-10", "2025-06-14")
	overlapping := h.request(t, otherRenterID, "2025-06-12", "2025-06-16")
	disjoint := h.request(t, otherRenterID, "2025-06-20", "2025-06-22")

	result := h.respond(t, accepted.ID, ownerID, model.EventAccept)

	if result.Status != model.StatusAccepted {
		t.Errorf("expected accepted, got %s", result.Status)
	}
	if h.bookings.status(t, overlapping.ID) != model.StatusRejected {
		t.Error("overlapping pending sibling should have been auto-rejected")
	}
	if h.bookings.status(t, disjoint.ID) != model.StatusPending {
		t.Error("disjoint pending booking should be untouched")
	}
	if !h.calendar.Overlaps(testVehicleID, day(t, "2025-06-10"), day(t, "2025-06-14")) {
		t.Error("accepted dates should be committed in the calendar")
	}
	if h.events.count(notifier.EventBookingAccepted) != 1 {
		t.Error("expected a booking.accepted event")
	}
	if h.events.count(notifier.EventBookingRejected) != 1 {
		t.Error("expected a booking.rejected event for the sibling")
	}
}

func TestRespond_DoubleAccept(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")
	h.respond(t, booking.ID, ownerID, model.EventAccept)

	_, err := h.svc.Respond(context.Background(), booking.ID, ownerID, model.EventAccept)
	expectCode(t, err, apperrors.CodeInvalidTransition)
}

func TestRespond_RenterCannotAcceptOwnRequest(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")

	_, err := h.svc.Respond(context.Background(), booking.ID, renterID, model.EventAccept)
	expectCode(t, err, apperrors.CodeForbidden)

	if h.bookings.status(t, booking.ID) != model.StatusPending {
		t.Error("booking should remain pending after a forbidden accept")
	}
}

func TestRespond_StrangerCannotAct(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")

	for _, decision := range []string{model.EventAccept, model.EventReject, model.EventCancel} {
		_, err := h.svc.Respond(context.Background(), booking.ID, "stranger", decision)
		expectCode(t, err, apperrors.CodeForbidden)
	}
}

func TestRespond_OwnerCannotCancelPending(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")

	_, err := h.svc.Respond(context.Background(), booking.ID, ownerID, model.EventCancel)
	expectCode(t, err, apperrors.CodeForbidden)
}

func TestRespond_RejectPending(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")
	result := h.respond(t, booking.ID, ownerID, model.EventReject)

	if result.Status != model.StatusRejected {
		t.Errorf("expected rejected, got %s", result.Status)
	}
	if h.calendar.Count(testVehicleID) != 0 {
		t.Error("rejecting must not touch the calendar")
	}
}

func TestRespond_CancelAcceptedFreesDates(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")
	h.respond(t, booking.ID, ownerID, model.EventAccept)
	h.respond(t, booking.ID, renterID, model.EventCancel)

	if h.bookings.status(t, booking.ID) != model.StatusCancelled {
		t.Error("booking should be cancelled")
	}
	if h.calendar.Overlaps(testVehicleID, day(t, "2025-06-10"), day(t, "2025-06-14")) {
		t.Error("cancelling an accepted booking must free its dates")
	}

	// The freed window is immediately bookable again.
	h.request(t, otherRenterID, "2025-06-10", "2025-06-14")
}

func TestRespond_OwnerCanCancelAccepted(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")
	h.respond(t, booking.ID, ownerID, model.EventAccept)
	result := h.respond(t, booking.ID, ownerID, model.EventCancel)

	if result.Status != model.StatusCancelled {
		t.Errorf("expected cancelled, got %s", result.Status)
	}
}

func TestRespond_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Respond(context.Background(), "missing", ownerID, model.EventAccept)
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestRespond_UnknownDecision(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")

	_, err := h.svc.Respond(context.Background(), booking.ID, ownerID, "approve")
	expectCode(t, err, apperrors.CodeInvalidInput)
}

func TestRespond_TransactionFailureLeavesCalendarClean(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")
	sibling := h.request(t, otherRenterID, "2025-06-12", "2025-06-16")

	h.bookings.updateStatusFunc = func(ctx context.Context, id, from, to string, at time.Time) error {
		if id == sibling.ID {
			return fmt.Errorf("write conflict")
		}
		return h.bookings.updateStatus(id, from, to, at)
	}

	_, err := h.svc.Respond(context.Background(), booking.ID, ownerID, model.EventAccept)
	if err == nil {
		t.Fatal("expected the accept to fail")
	}
	if h.calendar.Overlaps(testVehicleID, day(t, "2025-06-10"), day(t, "2025-06-14")) {
		t.Error("a failed transaction must not commit anything to the calendar")
	}
}

// ────────────────────────────────────────────────
// Get / List
// ────────────────────────────────────────────────

func TestGet_OnlyParticipantsCanView(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")

	if _, err := h.svc.Get(context.Background(), booking.ID, renterID); err != nil {
		t.Errorf("renter should be able to view: %v", err)
	}
	if _, err := h.svc.Get(context.Background(), booking.ID, ownerID); err != nil {
		t.Errorf("owner should be able to view: %v", err)
	}

	_, err := h.svc.Get(context.Background(), booking.ID, "stranger")
	expectCode(t, err, apperrors.CodeForbidden)
}

func TestList_RequiresExactlyOneFilter(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.List(context.Background(), ListQuery{})
	expectCode(t, err, apperrors.CodeInvalidInput)

	_, err = h.svc.List(context.Background(), ListQuery{RenterID: renterID, OwnerID: ownerID})
	expectCode(t, err, apperrors.CodeInvalidInput)
}

func TestList_PendingForOwnerExcludesDecided(t *testing.T) {
	h := newHarness(t)

	pending := h.request(t, renterID, "2025-06-10", "2025-06-14")
	rejected := h.request(t, otherRenterID, "2025-06-20", "2025-06-22")
	h.respond(t, rejected.ID, ownerID, model.EventReject)

	bookings, err := h.svc.List(context.Background(), ListQuery{PendingForOwner: ownerID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bookings) != 1 || bookings[0].ID != pending.ID {
		t.Fatalf("expected only the pending booking, got %d results", len(bookings))
	}
}

func TestList_ByRenterNewestFirst(t *testing.T) {
	h := newHarness(t)

	older := h.request(t, renterID, "2025-06-10", "2025-06-14")
	newer := h.request(t, renterID, "2025-06-20", "2025-06-22")

	bookings, err := h.svc.List(context.Background(), ListQuery{RenterID: renterID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bookings) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(bookings))
	}
	if bookings[0].ID != newer.ID || bookings[1].ID != older.ID {
		t.Error("bookings should be ordered newest first")
	}
}

// ────────────────────────────────────────────────
// Sweep / rebuild
// ────────────────────────────────────────────────

func TestSweepExpired_CompletesEndedBookings(t *testing.T) {
	h := newHarness(t)

	ended := h.request(t, renterID, "2025-06-02", "2025-06-05")
	h.respond(t, ended.ID, ownerID, model.EventAccept)
	ongoing := h.request(t, otherRenterID, "2025-06-20", "2025-06-25")
	h.respond(t, ongoing.ID, ownerID, model.EventAccept)

	completed, err := h.svc.SweepExpired(context.Background(), day(t, "2025-06-05"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if completed != 1 {
		t.Fatalf("expected 1 completed booking, got %d", completed)
	}
	if h.bookings.status(t, ended.ID) != model.StatusCompleted {
		t.Error("ended booking should be completed")
	}
	if h.bookings.status(t, ongoing.ID) != model.StatusAccepted {
		t.Error("ongoing booking should still be accepted")
	}
	if h.calendar.Overlaps(testVehicleID, day(t, "2025-06-02"), day(t, "2025-06-05")) {
		t.Error("completed booking should release its calendar dates")
	}
	if h.events.count(notifier.EventBookingCompleted) != 1 {
		t.Error("expected a booking.completed event")
	}
}

func TestSweepExpired_NothingToDo(t *testing.T) {
	h := newHarness(t)

	completed, err := h.svc.SweepExpired(context.Background(), day(t, "2025-06-05"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed != 0 {
		t.Errorf("expected 0 completed, got %d", completed)
	}
}

func TestRebuildCalendar_HydratesFromStore(t *testing.T) {
	h := newHarness(t)

	booking := h.request(t, renterID, "2025-06-10", "2025-06-14")
	h.respond(t, booking.ID, ownerID, model.EventAccept)

	// Simulate a restart: fresh index, same store.
	fresh := calendar.NewIndex()
	h.svc.calendar = fresh
	if err := h.svc.RebuildCalendar(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !fresh.Overlaps(testVehicleID, day(t, "2025-06-10"), day(t, "2025-06-14")) {
		t.Error("rebuilt index should contain the accepted booking")
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wheelshare/internal/notifier"
	"wheelshare/internal/reservations/arbiter"
	"wheelshare/internal/reservations/calendar"
	reservationserrors "wheelshare/internal/reservations/errors"
	"wheelshare/internal/reservations/lifecycle"
	"wheelshare/internal/reservations/repository"
	"wheelshare/pkg/config"
	apperrors "wheelshare/pkg/errors"
	"wheelshare/pkg/logger"
	"wheelshare/pkg/model"
	"wheelshare/pkg/sanitizer"
)

// ListQuery selects exactly one booking listing. IDs are actor IDs; the
// handler fills the field matching the query parameter it received.
type ListQuery struct {
	RenterID        string
	OwnerID         string
	PendingForOwner string
}

// ReservationService is the engine behind every booking operation: it owns
// admission (overlap checks against committed bookings), the lifecycle rules
// and the calendar index, and serializes all of it per vehicle.
type ReservationService interface {
	RequestBooking(ctx context.Context, renterID string, req *model.BookingRequest) (*model.Booking, error)
	Respond(ctx context.Context, bookingID, actorID, decision string) (*model.Booking, error)
	Get(ctx context.Context, bookingID, actorID string) (*model.Booking, error)
	List(ctx context.Context, query ListQuery) ([]*model.Booking, error)
	// SweepExpired completes accepted bookings whose end date is at or
	// before now, returning how many were completed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	// RebuildCalendar hydrates the calendar index from the booking store.
	// Called once at startup before the engine serves traffic.
	RebuildCalendar(ctx context.Context) error
}

type reservationService struct {
	cfg      *config.Config
	bookings repository.BookingRepository
	vehicles repository.VehicleRepository
	calendar *calendar.Index
	locks    *arbiter.VehicleLocks
	events   notifier.Notifier
	log      *logger.Logger
	now      func() time.Time
}

func NewReservationService(
	cfg *config.Config,
	bookings repository.BookingRepository,
	vehicles repository.VehicleRepository,
	idx *calendar.Index,
	locks *arbiter.VehicleLocks,
	events notifier.Notifier,
) ReservationService {
	return &reservationService{
		cfg:      cfg,
		bookings: bookings,
		vehicles: vehicles,
		calendar: idx,
		locks:    locks,
		events:   events,
		log:      cfg.Log,
		now:      time.Now,
	}
}

func (s *reservationService) RequestBooking(ctx context.Context, renterID string, req *model.BookingRequest) (*model.Booking, error) {
	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	today := s.today()
	if start.Before(today) {
		return nil, apperrors.Validation("start date cannot be in the past", map[string]any{
			"start_date": req.StartDate,
		})
	}

	vehicle, err := s.vehicles.FindByID(ctx, req.VehicleID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	if vehicle.OwnerID == renterID {
		return nil, apperrors.Validation("you cannot book your own vehicle", nil)
	}

	release, err := s.locks.Acquire(ctx, vehicle.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if s.calendar.Overlaps(vehicle.ID, start, end) {
		return nil, apperrors.Conflict(fmt.Sprintf(
			"vehicle is not available between %s and %s",
			start.Format(time.DateOnly),
			end.Format(time.DateOnly),
		))
	}

	days := totalDays(start, end)
	booking := &model.Booking{
		VehicleID:   vehicle.ID,
		RenterID:    renterID,
		OwnerID:     vehicle.OwnerID,
		StartDate:   start,
		EndDate:     end,
		TotalDays:   days,
		PricePerDay: vehicle.PricePerDay,
		TotalPrice:  int64(days) * vehicle.PricePerDay,
		Status:      model.StatusPending,
		Message:     sanitizer.SanitizeMessage(req.Message),
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, mapRepositoryError(err)
	}

	s.log.Info("Booking requested",
		"booking_id", booking.ID,
		"vehicle_id", booking.VehicleID,
		"renter_id", booking.RenterID,
		"start_date", booking.StartDate.Format(time.DateOnly),
		"end_date", booking.EndDate.Format(time.DateOnly),
		"total_price", booking.TotalPrice,
	)
	s.events.Notify(ctx, notifier.EventBookingRequested, booking)

	return booking, nil
}

func (s *reservationService) Respond(ctx context.Context, bookingID, actorID, decision string) (*model.Booking, error) {
	event, err := lifecycle.EventForDecision(decision)
	if err != nil {
		return nil, err
	}

	// Cheap pre-check before contending for the vehicle lock. The
	// authoritative check runs again on the reloaded booking under the lock.
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if _, err := lifecycle.Next(booking.Status, event, lifecycle.RoleOf(booking, actorID)); err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, booking.VehicleID)
	if err != nil {
		return nil, err
	}
	defer release()

	booking, err = s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	target, err := lifecycle.Next(booking.Status, event, lifecycle.RoleOf(booking, actorID))
	if err != nil {
		return nil, err
	}

	switch event {
	case model.EventAccept:
		if err := s.accept(ctx, booking); err != nil {
			return nil, err
		}
	case model.EventReject:
		if err := s.transition(ctx, booking, target); err != nil {
			return nil, err
		}
		s.events.Notify(ctx, notifier.EventBookingRejected, booking)
	case model.EventCancel:
		wasAccepted := booking.Status == model.StatusAccepted
		if err := s.transition(ctx, booking, target); err != nil {
			return nil, err
		}
		if wasAccepted {
			// Cancelling a committed booking frees its dates immediately.
			s.calendar.Remove(booking.VehicleID, booking.ID)
		}
		s.events.Notify(ctx, notifier.EventBookingCancelled, booking)
	}

	s.log.Info("Booking decision applied",
		"booking_id", booking.ID,
		"vehicle_id", booking.VehicleID,
		"actor_id", actorID,
		"decision", decision,
		"status", booking.Status,
	)

	return booking, nil
}

// accept commits the booking and atomically rejects every pending sibling
// that overlaps it, all in one transaction. The calendar index is updated
// only after the transaction commits, so a failed transaction leaves no
// trace anywhere.
func (s *reservationService) accept(ctx context.Context, booking *model.Booking) error {
	if s.calendar.Overlaps(booking.VehicleID, booking.StartDate, booking.EndDate) {
		return apperrors.Conflict("vehicle was booked for these dates while the request was pending")
	}

	now := s.now().UTC()
	var rejected []*model.Booking

	err := s.bookings.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.bookings.UpdateStatus(txCtx, booking.ID, model.StatusPending, model.StatusAccepted, now); err != nil {
			return err
		}

		siblings, err := s.bookings.FindPendingOverlapping(txCtx, booking.VehicleID, booking.StartDate, booking.EndDate, booking.ID)
		if err != nil {
			return err
		}

		for _, sibling := range siblings {
			if err := s.bookings.UpdateStatus(txCtx, sibling.ID, model.StatusPending, model.StatusRejected, now); err != nil {
				return err
			}
			sibling.Status = model.StatusRejected
			sibling.UpdatedAt = now
		}
		rejected = siblings
		return nil
	})
	if err != nil {
		return mapRepositoryError(err)
	}

	booking.Status = model.StatusAccepted
	booking.UpdatedAt = now

	if err := s.calendar.Insert(booking.VehicleID, booking.ID, booking.StartDate, booking.EndDate); err != nil {
		// The store and the index disagree; should be impossible under the
		// vehicle lock. Surface it loudly rather than serve a stale index.
		s.log.Error("Calendar index rejected a committed booking",
			"booking_id", booking.ID,
			"vehicle_id", booking.VehicleID,
			"error", err,
		)
		return apperrors.Internal("calendar index out of sync", err)
	}

	s.events.Notify(ctx, notifier.EventBookingAccepted, booking)
	for _, sibling := range rejected {
		s.events.Notify(ctx, notifier.EventBookingRejected, sibling)
	}

	if len(rejected) > 0 {
		s.log.Info("Auto-rejected overlapping pending bookings",
			"booking_id", booking.ID,
			"vehicle_id", booking.VehicleID,
			"rejected_count", len(rejected),
		)
	}

	return nil
}

func (s *reservationService) transition(ctx context.Context, booking *model.Booking, target string) error {
	now := s.now().UTC()
	if err := s.bookings.UpdateStatus(ctx, booking.ID, booking.Status, target, now); err != nil {
		return mapRepositoryError(err)
	}
	booking.Status = target
	booking.UpdatedAt = now
	return nil
}

func (s *reservationService) Get(ctx context.Context, bookingID, actorID string) (*model.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	if lifecycle.RoleOf(booking, actorID) == "" {
		return nil, apperrors.Forbidden("only the renter or the owner can view this booking")
	}

	return booking, nil
}

func (s *reservationService) List(ctx context.Context, query ListQuery) ([]*model.Booking, error) {
	set := 0
	for _, id := range []string{query.RenterID, query.OwnerID, query.PendingForOwner} {
		if id != "" {
			set++
		}
	}
	if set != 1 {
		return nil, apperrors.InvalidInput("exactly one of renter_id, owner_id or pending_for_owner must be provided")
	}

	var (
		bookings []*model.Booking
		err      error
	)
	switch {
	case query.RenterID != "":
		bookings, err = s.bookings.ListByRenter(ctx, query.RenterID)
	case query.OwnerID != "":
		bookings, err = s.bookings.ListByOwner(ctx, query.OwnerID)
	default:
		bookings, err = s.bookings.ListPendingForOwner(ctx, query.PendingForOwner)
	}
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	if bookings == nil {
		bookings = []*model.Booking{}
	}
	return bookings, nil
}

func (s *reservationService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.bookings.FindAcceptedEndingBefore(ctx, now.UTC())
	if err != nil {
		return 0, mapRepositoryError(err)
	}

	completed := 0
	for _, booking := range expired {
		if err := s.completeExpired(ctx, booking); err != nil {
			// Skip and let the next sweep retry; one stuck booking must not
			// block the rest of the batch.
			s.log.Warn("Failed to complete expired booking",
				"booking_id", booking.ID,
				"vehicle_id", booking.VehicleID,
				"error", err,
			)
			continue
		}
		completed++
	}

	return completed, nil
}

func (s *reservationService) completeExpired(ctx context.Context, booking *model.Booking) error {
	release, err := s.locks.Acquire(ctx, booking.VehicleID)
	if err != nil {
		return err
	}
	defer release()

	now := s.now().UTC()
	if err := s.bookings.UpdateStatus(ctx, booking.ID, model.StatusAccepted, model.StatusCompleted, now); err != nil {
		return mapRepositoryError(err)
	}
	booking.Status = model.StatusCompleted
	booking.UpdatedAt = now

	s.calendar.Remove(booking.VehicleID, booking.ID)
	s.events.Notify(ctx, notifier.EventBookingCompleted, booking)
	return nil
}

func (s *reservationService) RebuildCalendar(ctx context.Context) error {
	accepted, err := s.bookings.FindAccepted(ctx)
	if err != nil {
		return mapRepositoryError(err)
	}

	entries := make(map[string][]calendar.Interval)
	for _, booking := range accepted {
		entries[booking.VehicleID] = append(entries[booking.VehicleID], calendar.Interval{
			BookingID: booking.ID,
			Start:     booking.StartDate,
			End:       booking.EndDate,
		})
	}
	s.calendar.Rebuild(entries)

	s.log.Info("Calendar index rebuilt",
		"accepted_bookings", len(accepted),
		"vehicles", len(entries),
	)
	return nil
}

// today returns the current UTC day at midnight, the earliest start date a
// new booking may have.
func (s *reservationService) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// parseDateRange parses the wire dates into half-open [start, end) UTC
// midnights and validates their ordering.
func parseDateRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.Validation("start_date must be a valid YYYY-MM-DD date", map[string]any{
			"start_date": startStr,
		})
	}
	end, err := time.Parse(time.DateOnly, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.Validation("end_date must be a valid YYYY-MM-DD date", map[string]any{
			"end_date": endStr,
		})
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, apperrors.Validation("end_date must be after start_date", map[string]any{
			"start_date": startStr,
			"end_date":   endStr,
		})
	}
	return start, end, nil
}

func totalDays(start, end time.Time) int {
	return int(end.Sub(start) / (24 * time.Hour))
}

func mapRepositoryError(err error) error {
	switch {
	case errors.Is(err, reservationserrors.ErrNotFound):
		return apperrors.NotFound("booking")
	case errors.Is(err, reservationserrors.ErrVehicleNotFound):
		return apperrors.NotFound("vehicle")
	case errors.Is(err, reservationserrors.ErrInvalidID):
		return apperrors.InvalidInput("invalid ID format")
	case errors.Is(err, reservationserrors.ErrStatusChanged):
		return apperrors.InvalidTransition("booking was modified concurrently, please retry")
	case apperrors.IsAppError(err):
		return err
	case err == nil:
		return nil
	}
	return apperrors.Internal("database operation failed", err)
}

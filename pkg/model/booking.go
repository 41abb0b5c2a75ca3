package model

import (
	"time"
)

// Booking statuses. A booking starts pending and is mutated only through the
// lifecycle controller; rejected, cancelled and completed are terminal.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Lifecycle events.
const (
	EventAccept   = "accept"
	EventReject   = "reject"
	EventCancel   = "cancel"
	EventComplete = "complete"
)

// Actor roles relative to a booking.
const (
	RoleOwner  = "owner"
	RoleRenter = "renter"
	RoleSystem = "system"
)

// Booking is a rental reservation for a vehicle over a half-open day
// interval [start_date, end_date). PricePerDay is snapshotted from the
// vehicle at creation time and never changes afterwards; TotalDays and
// TotalPrice are derived from it. Amounts are integer minor units.
type Booking struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	VehicleID   string    `json:"vehicle_id" bson:"vehicle_id" validate:"required,mongodb"`
	RenterID    string    `json:"renter_id" bson:"renter_id" validate:"required,mongodb"`
	OwnerID     string    `json:"owner_id" bson:"owner_id" validate:"required,mongodb"`
	StartDate   time.Time `json:"start_date" bson:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" bson:"end_date" validate:"required,gtfield=StartDate"`
	TotalDays   int       `json:"total_days" bson:"total_days" validate:"min=1"`
	PricePerDay int64     `json:"price_per_day" bson:"price_per_day" validate:"min=0"`
	TotalPrice  int64     `json:"total_price" bson:"total_price" validate:"min=0"`
	Status      string    `json:"status" bson:"status" validate:"required,oneof=pending accepted rejected cancelled completed"`
	Message     string    `json:"message,omitempty" bson:"message,omitempty" validate:"omitempty,max=500"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// IsTerminal reports whether the booking can no longer change state.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Overlaps reports whether the booking's interval intersects [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartDate.Before(end) && b.EndDate.After(start)
}

// BookingRequest is the wire payload for creating a booking. Dates arrive as
// YYYY-MM-DD strings and are parsed to UTC midnights by the handler.
type BookingRequest struct {
	VehicleID string `json:"vehicle_id" validate:"required,mongodb"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Message   string `json:"message,omitempty" validate:"omitempty,max=500"`
}

// DecisionRequest is the wire payload for responding to a pending booking.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accept reject cancel"`
}

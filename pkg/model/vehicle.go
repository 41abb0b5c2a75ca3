package model

import "time"

// Vehicle is the slice of the marketplace's vehicle listing that the
// reservation engine needs: ownership and the current daily rate. Listing
// CRUD lives in the surrounding application.
type Vehicle struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty"`
	OwnerID     string    `json:"owner_id" bson:"owner_id"`
	Name        string    `json:"name" bson:"name"`
	PricePerDay int64     `json:"price_per_day" bson:"price_per_day"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

package lead

import "time"

// Lead is a purchase inquiry submitted by a user for a listing.
type Lead struct {
	ID        string    `json:"id,omitempty"`
	CarID     string    `json:"car_id"`
	DealerID  string    `json:"dealer_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

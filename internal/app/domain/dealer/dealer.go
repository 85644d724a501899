package dealer

import "time"

// Dealer represents a dealership profile.
type Dealer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	City        string    `json:"city"`
	Phone       string    `json:"phone"`
	LogoURL     string    `json:"logo_url"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

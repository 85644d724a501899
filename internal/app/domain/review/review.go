package review

import "time"

// Review is a user review of a dealer.
type Review struct {
	ID        string    `json:"id"`
	DealerID  string    `json:"dealer_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary aggregates ratings for a dealer.
type Summary struct {
	DealerID string  `json:"dealer_id"`
	Average  float64 `json:"average"`
	Count    int     `json:"count"`
}

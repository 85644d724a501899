package car

import "time"

// Car represents a vehicle listing in the marketplace catalog.
type Car struct {
	ID           string    `json:"id"`
	DealerID     string    `json:"dealer_id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	Price        float64   `json:"price"`
	Mileage      int       `json:"mileage"`
	Transmission string    `json:"transmission"`
	FuelType     string    `json:"fuel_type"`
	ImageURL     string    `json:"image_url"`
	Featured     bool      `json:"featured"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

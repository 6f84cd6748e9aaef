package models

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

type Review struct {
	ID           string    `json:"id" db:"id"`
	OrderID      string    `json:"order_id" db:"order_id"`
	RestaurantID string    `json:"restaurant_id" db:"restaurant_id"`
	ClientID     string    `json:"client_id" db:"client_id"`
	ClientName   *string   `json:"client_name,omitempty" db:"client_name"`
	Rating       int       `json:"rating" db:"rating"`
	Comment      *string   `json:"comment,omitempty" db:"comment"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type SubmitReviewRequest struct {
	ClientID   string  `json:"client_id"`
	ClientName *string `json:"client_name,omitempty"`
	Rating     int     `json:"rating"`
	Comment    *string `json:"comment,omitempty"`
}

package entity

import "time"

// Company is the tenant that owns users, expenses and approval configuration
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Country   string    `json:"country,omitempty"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

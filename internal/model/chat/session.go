package chat

import "time"

// Session captures one UI conversation instance.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

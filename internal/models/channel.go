package models

import "time"

// City groups monitored channels; its timezone resolves relative dates
// in posts from those channels.
type City struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// Channel is one monitored source chat. Lifecycle is managed by admin
// tooling; the pipeline only reads it.
type Channel struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Title     string    `json:"title"`
	IsActive  bool      `json:"is_active"`
	CityID    int64     `json:"city_id"`
	CreatedAt time.Time `json:"created_at"`
}

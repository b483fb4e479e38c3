package domain

import "time"

// Click is an append-only analytics record of a button selection.
type Click struct {
	ButtonID  string    `json:"button_id"`
	UserID    int64     `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Totals summarizes collection sizes for the stats command.
type Totals struct {
	Users      int64 `json:"users"`
	Categories int64 `json:"categories"`
	Buttons    int64 `json:"buttons"`
	Clicks     int64 `json:"clicks"`
}

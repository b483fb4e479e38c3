package domain

import "time"

// Button is one selectable link entry. Text is a mutable display attribute;
// ID is the stable key carried in callback payloads.
type Button struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	URL         string    `json:"url"`
	CategoryID  string    `json:"category_id"`
	ImageFileID string    `json:"image_file_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasImage reports whether a thumbnail is attached.
func (b Button) HasImage() bool {
	return b.ImageFileID != ""
}

// ButtonStat pairs a button with its click count.
type ButtonStat struct {
	Button Button `json:"button"`
	Clicks int64  `json:"clicks"`
}

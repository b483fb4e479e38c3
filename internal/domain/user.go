package domain

import "time"

// User represents a Telegram user registered with the bot. Fields are written
// once on first contact and never overwritten.
type User struct {
	UserID    int64     `bson:"user_id" json:"user_id"`
	Username  string    `bson:"username,omitempty" json:"username,omitempty"`
	FirstName string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName  string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Package domain defines the entities, errors and store contracts shared by
// the dispatcher and the storage backends.
package domain

import "time"

const (
	// OperatorSourceConfig marks operators seeded from SUDO_USERS.
	OperatorSourceConfig = "config"
	// OperatorSourceCommand marks operators added at runtime with /addsudo.
	OperatorSourceCommand = "command"
)

// Operator is a privileged user allowed to manage content.
type Operator struct {
	UserID    int64     `bson:"user_id" json:"user_id"`
	Source    string    `bson:"source" json:"source"`
	AddedBy   int64     `bson:"added_by,omitempty" json:"added_by,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

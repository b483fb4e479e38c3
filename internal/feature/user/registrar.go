// Package user registers Telegram users on first contact.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aphabeta/ADLLinks/internal/domain"
	"github.com/aphabeta/ADLLinks/internal/logging"
)

type userCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar inserts a user record the first time the user is seen. Existing
// records are left untouched.
type Registrar struct {
	users  userCollection
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided users collection.
func NewRegistrar(users userCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
	}
}

// EnsureUser upserts the user with insert-only fields and reports whether a
// new record was created.
func (r *Registrar) EnsureUser(ctx context.Context, u domain.User) (bool, error) {
	if r == nil || r.users == nil {
		return false, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if u.UserID == 0 {
		return false, errors.New("user id is required")
	}

	onInsert := bson.M{
		"user_id":    u.UserID,
		"created_at": time.Now().UTC().Truncate(time.Millisecond),
	}
	for field, value := range map[string]string{
		"username":   u.Username,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
	} {
		if v := strings.TrimSpace(value); v != "" {
			onInsert[field] = v
		}
	}

	result, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": u.UserID},
		bson.M{"$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("ensure user: %w", err)
	}

	if result == nil || result.UpsertedCount == 0 {
		return false, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "user_registered",
		"user_id": u.UserID,
	}).Info("registered new user")

	return true, nil
}

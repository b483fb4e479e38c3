package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aphabeta/ADLLinks/internal/domain"
)

type operatorCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// OperatorStore implements domain.OperatorStore on the sudo_users collection.
type OperatorStore struct {
	operators operatorCollection
}

// NewOperatorStore constructs an OperatorStore.
func NewOperatorStore(operators operatorCollection) *OperatorStore {
	return &OperatorStore{operators: operators}
}

func (s *OperatorStore) ready(ctx context.Context) error {
	if s == nil || s.operators == nil {
		return errors.New("operator store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

// UpsertOperator inserts the operator if absent. Config-sourced upserts also
// claim existing records so they become protected; command-sourced upserts
// never downgrade a config operator.
func (s *OperatorStore) UpsertOperator(ctx context.Context, op domain.Operator) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if op.UserID <= 0 {
		return false, errors.New("user id is required")
	}
	if op.Source == "" {
		op.Source = domain.OperatorSourceCommand
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	set := bson.M{"updated_at": now}
	setOnInsert := bson.M{
		"user_id":    op.UserID,
		"created_at": now,
	}
	if op.AddedBy != 0 {
		setOnInsert["added_by"] = op.AddedBy
	}
	if op.Source == domain.OperatorSourceConfig {
		set["source"] = op.Source
	} else {
		setOnInsert["source"] = op.Source
	}

	result, err := s.operators.UpdateOne(ctx,
		bson.M{"user_id": op.UserID},
		bson.M{"$set": set, "$setOnInsert": setOnInsert},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("upsert operator: %w", err)
	}

	return upsertedCount(result) > 0, nil
}

// DeleteOperator removes a command-sourced operator.
func (s *OperatorStore) DeleteOperator(ctx context.Context, userID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	op, err := decodeOne[domain.Operator](s.operators.FindOne(ctx, bson.M{"user_id": userID}))
	if err != nil {
		return fmt.Errorf("find operator: %w", err)
	}
	if op.Source == domain.OperatorSourceConfig {
		return domain.ErrProtected
	}

	result, err := s.operators.DeleteOne(ctx, bson.M{
		"user_id": userID,
		"source":  bson.M{"$ne": domain.OperatorSourceConfig},
	})
	if err != nil {
		return fmt.Errorf("delete operator: %w", err)
	}
	if result == nil || result.DeletedCount == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// PruneConfigOperators removes config-sourced operators absent from keep.
func (s *OperatorStore) PruneConfigOperators(ctx context.Context, keep []int64) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if keep == nil {
		keep = []int64{}
	}

	result, err := s.operators.DeleteMany(ctx, bson.M{
		"source":  domain.OperatorSourceConfig,
		"user_id": bson.M{"$nin": keep},
	})
	if err != nil {
		return 0, fmt.Errorf("prune config operators: %w", err)
	}
	if result == nil {
		return 0, nil
	}

	return result.DeletedCount, nil
}

// IsOperator looks the user up on every call.
func (s *OperatorStore) IsOperator(ctx context.Context, userID int64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}

	count, err := s.operators.CountDocuments(ctx, bson.M{"user_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count operator: %w", err)
	}

	return count > 0, nil
}

// ListOperators returns all operators ordered by user id.
func (s *OperatorStore) ListOperators(ctx context.Context) ([]domain.Operator, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	cursor, err := s.operators.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}

	return decodeAll[domain.Operator](ctx, cursor)
}

func upsertedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.UpsertedCount
}

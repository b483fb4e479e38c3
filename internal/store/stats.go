package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aphabeta/ADLLinks/internal/domain"
)

// DefaultTopButtons caps the stats listing.
const DefaultTopButtons = 20

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes collection counts for the stats command without
// leaking MongoDB internals to callers.
type StatsProvider struct {
	users      countCollection
	categories countCollection
	buttons    countCollection
	clicks     countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the provided collections.
func NewStatsProvider(users, categories, buttons, clicks countCollection) *StatsProvider {
	return &StatsProvider{
		users:      users,
		categories: categories,
		buttons:    buttons,
		clicks:     clicks,
	}
}

// Totals counts users, categories, buttons and clicks.
func (p *StatsProvider) Totals(ctx context.Context) (domain.Totals, error) {
	if ctx == nil {
		return domain.Totals{}, errors.New("context is required")
	}
	if p == nil || p.users == nil || p.categories == nil || p.buttons == nil || p.clicks == nil {
		return domain.Totals{}, errors.New("stats provider is not initialized")
	}

	var totals domain.Totals
	counts := []struct {
		name string
		coll countCollection
		dst  *int64
	}{
		{CollectionUsers, p.users, &totals.Users},
		{CollectionCategories, p.categories, &totals.Categories},
		{CollectionButtons, p.buttons, &totals.Buttons},
		{CollectionClicks, p.clicks, &totals.Clicks},
	}

	for _, c := range counts {
		count, err := c.coll.CountDocuments(ctx, bson.D{})
		if err != nil {
			return domain.Totals{}, fmt.Errorf("count %s: %w", c.name, err)
		}
		*c.dst = count
	}

	return totals, nil
}

type statRow struct {
	ID     primitive.ObjectID `bson:"_id"`
	Count  int64              `bson:"count"`
	Button buttonDoc          `bson:"button"`
}

// clickStatsPipeline groups clicks by button, joins the button document and
// orders by count descending, then by button creation order. Clicks of
// deleted buttons drop out at the $unwind stage.
func clickStatsPipeline(limit int) mongo.Pipeline {
	if limit <= 0 {
		limit = DefaultTopButtons
	}

	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$button_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollectionButtons},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "button"},
		}}},
		{{Key: "$unwind", Value: "$button"}},
		{{Key: "$sort", Value: bson.D{
			{Key: "count", Value: -1},
			{Key: "button.created_at", Value: 1},
			{Key: "_id", Value: 1},
		}}},
		{{Key: "$limit", Value: limit}},
	}
}

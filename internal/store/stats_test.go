package store

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestStatsProviderCountsCollections(t *testing.T) {
	users := &stubCountCollection{count: 12}
	categories := &stubCountCollection{count: 3}
	buttons := &stubCountCollection{count: 9}
	clicks := &stubCountCollection{count: 41}

	provider := NewStatsProvider(users, categories, buttons, clicks)

	totals, err := provider.Totals(context.Background())
	if err != nil {
		t.Fatalf("expected totals to succeed, got error: %v", err)
	}
	if totals.Users != 12 || totals.Categories != 3 || totals.Buttons != 9 || totals.Clicks != 41 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	for name, stub := range map[string]*stubCountCollection{"users": users, "categories": categories, "buttons": buttons, "clicks": clicks} {
		if stub.calls != 1 {
			t.Fatalf("expected %s count to be called once, got %d", name, stub.calls)
		}
	}
}

func TestStatsProviderRequiresContext(t *testing.T) {
	provider := NewStatsProvider(&stubCountCollection{}, &stubCountCollection{}, &stubCountCollection{}, &stubCountCollection{})

	if _, err := provider.Totals(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
}

func TestStatsProviderRequiresInitialization(t *testing.T) {
	var provider *StatsProvider

	if _, err := provider.Totals(context.Background()); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}

func TestStatsProviderPropagatesErrors(t *testing.T) {
	expectedErr := errors.New("count failed")
	provider := NewStatsProvider(
		&stubCountCollection{},
		&stubCountCollection{},
		&stubCountCollection{err: expectedErr},
		&stubCountCollection{},
	)

	_, err := provider.Totals(context.Background())
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected wrapped count error, got %v", err)
	}
}

func TestClickStatsPipelineOrdersByCountThenCreation(t *testing.T) {
	pipeline := clickStatsPipeline(5)

	if len(pipeline) != 5 {
		t.Fatalf("expected 5 stages, got %d", len(pipeline))
	}

	stages := []string{"$group", "$lookup", "$unwind", "$sort", "$limit"}
	for i, stage := range stages {
		if pipeline[i][0].Key != stage {
			t.Fatalf("expected stage %d to be %s, got %s", i, stage, pipeline[i][0].Key)
		}
	}

	sortSpec, ok := pipeline[3][0].Value.(bson.D)
	if !ok || len(sortSpec) != 3 {
		t.Fatalf("expected three sort keys, got %v", pipeline[3][0].Value)
	}
	if sortSpec[0].Key != "count" || sortSpec[0].Value != -1 {
		t.Fatalf("expected count descending first, got %v", sortSpec[0])
	}
	if sortSpec[1].Key != "button.created_at" || sortSpec[1].Value != 1 {
		t.Fatalf("expected creation order tie-break, got %v", sortSpec[1])
	}

	if pipeline[4][0].Value != 5 {
		t.Fatalf("expected limit 5, got %v", pipeline[4][0].Value)
	}

	if def := clickStatsPipeline(0); def[4][0].Value != DefaultTopButtons {
		t.Fatalf("expected default limit %d, got %v", DefaultTopButtons, def[4][0].Value)
	}
}

type stubCountCollection struct {
	count int64
	err   error
	calls int
}

func (s *stubCountCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	s.calls++
	return s.count, s.err
}

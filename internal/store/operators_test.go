package store

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aphabeta/ADLLinks/internal/domain"
)

func TestUpsertOperatorConfigClaimsSource(t *testing.T) {
	coll := &fakeOperatorCollection{updateResult: &mongo.UpdateResult{UpsertedCount: 1}}
	store := NewOperatorStore(coll)

	created, err := store.UpsertOperator(context.Background(), domain.Operator{UserID: 42, Source: domain.OperatorSourceConfig})
	if err != nil {
		t.Fatalf("expected upsert to succeed, got %v", err)
	}
	if !created {
		t.Fatalf("expected created to be true")
	}

	if coll.lastFilter.(bson.M)["user_id"] != int64(42) {
		t.Fatalf("unexpected filter %v", coll.lastFilter)
	}
	update := coll.lastUpdate.(bson.M)
	set := update["$set"].(bson.M)
	if set["source"] != domain.OperatorSourceConfig {
		t.Fatalf("expected config source in $set, got %v", set)
	}
	if _, ok := update["$setOnInsert"].(bson.M)["source"]; ok {
		t.Fatalf("source must not be duplicated in $setOnInsert")
	}
	if coll.lastUpdateOpts == nil || coll.lastUpdateOpts.Upsert == nil || !*coll.lastUpdateOpts.Upsert {
		t.Fatalf("expected upsert option")
	}
}

func TestUpsertOperatorCommandNeverDowngrades(t *testing.T) {
	coll := &fakeOperatorCollection{updateResult: &mongo.UpdateResult{MatchedCount: 1}}
	store := NewOperatorStore(coll)

	created, err := store.UpsertOperator(context.Background(), domain.Operator{UserID: 7, AddedBy: 42})
	if err != nil {
		t.Fatalf("expected upsert to succeed, got %v", err)
	}
	if created {
		t.Fatalf("expected existing operator to report created=false")
	}

	update := coll.lastUpdate.(bson.M)
	if _, ok := update["$set"].(bson.M)["source"]; ok {
		t.Fatalf("command upsert must not overwrite source")
	}
	onInsert := update["$setOnInsert"].(bson.M)
	if onInsert["source"] != domain.OperatorSourceCommand || onInsert["added_by"] != int64(42) {
		t.Fatalf("unexpected $setOnInsert %v", onInsert)
	}
}

func TestUpsertOperatorRejectsInvalidID(t *testing.T) {
	store := NewOperatorStore(&fakeOperatorCollection{})

	if _, err := store.UpsertOperator(context.Background(), domain.Operator{UserID: 0}); err == nil {
		t.Fatalf("expected error for zero user id")
	}
}

func TestDeleteOperatorProtectsConfigSource(t *testing.T) {
	coll := &fakeOperatorCollection{
		findOne: mongo.NewSingleResultFromDocument(bson.M{"user_id": int64(42), "source": domain.OperatorSourceConfig}, nil, nil),
	}
	store := NewOperatorStore(coll)

	err := store.DeleteOperator(context.Background(), 42)
	if !errors.Is(err, domain.ErrProtected) {
		t.Fatalf("expected ErrProtected, got %v", err)
	}
	if coll.deleteCalls != 0 {
		t.Fatalf("expected no delete for protected operator")
	}
}

func TestDeleteOperatorRemovesCommandSource(t *testing.T) {
	coll := &fakeOperatorCollection{
		findOne:      mongo.NewSingleResultFromDocument(bson.M{"user_id": int64(7), "source": domain.OperatorSourceCommand}, nil, nil),
		deleteResult: &mongo.DeleteResult{DeletedCount: 1},
	}
	store := NewOperatorStore(coll)

	if err := store.DeleteOperator(context.Background(), 7); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if coll.deleteCalls != 1 {
		t.Fatalf("expected one delete, got %d", coll.deleteCalls)
	}
}

func TestDeleteOperatorMissing(t *testing.T) {
	coll := &fakeOperatorCollection{
		findOne: mongo.NewSingleResultFromDocument(bson.M{}, mongo.ErrNoDocuments, nil),
	}
	store := NewOperatorStore(coll)

	if err := store.DeleteOperator(context.Background(), 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneConfigOperatorsFiltersByKeepList(t *testing.T) {
	coll := &fakeOperatorCollection{deleteResult: &mongo.DeleteResult{DeletedCount: 2}}
	store := NewOperatorStore(coll)

	removed, err := store.PruneConfigOperators(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("expected prune to succeed, got %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	filter := coll.lastFilter.(bson.M)
	if filter["source"] != domain.OperatorSourceConfig {
		t.Fatalf("expected prune to target config operators, got %v", filter)
	}
	nin := filter["user_id"].(bson.M)["$nin"].([]int64)
	if len(nin) != 2 || nin[0] != 1 || nin[1] != 2 {
		t.Fatalf("unexpected keep list %v", nin)
	}
}

func TestIsOperatorCounts(t *testing.T) {
	coll := &fakeOperatorCollection{count: 1}
	store := NewOperatorStore(coll)

	ok, err := store.IsOperator(context.Background(), 42)
	if err != nil || !ok {
		t.Fatalf("expected operator, got %v %v", ok, err)
	}

	coll.count = 0
	ok, err = store.IsOperator(context.Background(), 43)
	if err != nil || ok {
		t.Fatalf("expected non-operator, got %v %v", ok, err)
	}
}

func TestIsOperatorPropagatesErrors(t *testing.T) {
	expected := errors.New("count failed")
	store := NewOperatorStore(&fakeOperatorCollection{countErr: expected})

	if _, err := store.IsOperator(context.Background(), 42); !errors.Is(err, expected) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestListOperatorsDecodesCursor(t *testing.T) {
	cursor, err := mongo.NewCursorFromDocuments([]interface{}{
		bson.M{"user_id": int64(1), "source": domain.OperatorSourceConfig},
		bson.M{"user_id": int64(5), "source": domain.OperatorSourceCommand},
	}, nil, nil)
	if err != nil {
		t.Fatalf("build cursor: %v", err)
	}
	store := NewOperatorStore(&fakeOperatorCollection{cursor: cursor})

	ops, err := store.ListOperators(context.Background())
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if len(ops) != 2 || ops[0].UserID != 1 || ops[1].Source != domain.OperatorSourceCommand {
		t.Fatalf("unexpected operators %+v", ops)
	}
}

func TestOperatorStoreRequiresInitialization(t *testing.T) {
	var store *OperatorStore

	if _, err := store.IsOperator(context.Background(), 1); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

type fakeOperatorCollection struct {
	updateResult   *mongo.UpdateResult
	deleteResult   *mongo.DeleteResult
	findOne        *mongo.SingleResult
	cursor         *mongo.Cursor
	count          int64
	countErr       error
	lastFilter     interface{}
	lastUpdate     interface{}
	lastUpdateOpts *options.UpdateOptions
	deleteCalls    int
}

func (f *fakeOperatorCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.lastFilter = filter
	f.lastUpdate = update
	if len(opts) > 0 {
		f.lastUpdateOpts = opts[0]
	}
	return f.updateResult, nil
}

func (f *fakeOperatorCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	f.lastFilter = filter
	if f.findOne == nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, mongo.ErrNoDocuments, nil)
	}
	return f.findOne
}

func (f *fakeOperatorCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	f.lastFilter = filter
	return f.cursor, nil
}

func (f *fakeOperatorCollection) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	f.lastFilter = filter
	f.deleteCalls++
	return f.deleteResult, nil
}

func (f *fakeOperatorCollection) DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	f.lastFilter = filter
	return f.deleteResult, nil
}

func (f *fakeOperatorCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	f.lastFilter = filter
	return f.count, f.countErr
}

package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aphabeta/ADLLinks/internal/domain"
)

// collection is the subset of *mongo.Collection the stores use.
type collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	FindOneAndDelete(ctx context.Context, filter interface{}, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

// categoryDoc.ButtonCount is reserved before a button insert and released
// after a button delete, so a category delete filtered on it cannot race a
// concurrent insert.
type categoryDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Name        string             `bson:"name"`
	ButtonCount int64              `bson:"button_count"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

type buttonDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Text        string             `bson:"text"`
	URL         string             `bson:"url"`
	CategoryID  primitive.ObjectID `bson:"category_id"`
	ImageFileID string             `bson:"image_file_id,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

type channelDoc struct {
	Username string    `bson:"username"`
	AddedBy  int64     `bson:"added_by,omitempty"`
	AddedAt  time.Time `bson:"added_at"`
}

type clickDoc struct {
	ButtonID  primitive.ObjectID `bson:"button_id"`
	UserID    int64              `bson:"user_id"`
	Timestamp time.Time          `bson:"timestamp"`
}

func (d categoryDoc) domain() domain.Category {
	return domain.Category{ID: d.ID.Hex(), Name: d.Name, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

func (d buttonDoc) domain() domain.Button {
	return domain.Button{
		ID:          d.ID.Hex(),
		Text:        d.Text,
		URL:         d.URL,
		CategoryID:  d.CategoryID.Hex(),
		ImageFileID: d.ImageFileID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (d channelDoc) domain() domain.Channel {
	return domain.Channel{Handle: d.Username, AddedBy: d.AddedBy, AddedAt: d.AddedAt}
}

// creationOrder sorts documents oldest first; _id breaks ties within a millisecond.
var creationOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// ContentStore implements domain.ContentStore on MongoDB collections.
type ContentStore struct {
	categories collection
	buttons    collection
	channels   collection
	clicks     collection
	stats      *StatsProvider
	now        func() time.Time
}

// NewContentStore builds a ContentStore over the manager's collections.
func NewContentStore(m *Manager) *ContentStore {
	return newContentStore(m.Categories(), m.Buttons(), m.Channels(), m.Clicks(),
		NewStatsProvider(m.Users(), m.Categories(), m.Buttons(), m.Clicks()))
}

func newContentStore(categories, buttons, channels, clicks collection, stats *StatsProvider) *ContentStore {
	return &ContentStore{
		categories: categories,
		buttons:    buttons,
		channels:   channels,
		clicks:     clicks,
		stats:      stats,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
	}
}

// translate maps driver errors onto domain sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrAlreadyExists
	default:
		return err
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, domain.ErrNotFound
	}
	return oid, nil
}

func returnAfter() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func decodeOne[T any](result *mongo.SingleResult) (T, error) {
	var doc T
	if result == nil {
		return doc, errors.New("find returned no result")
	}
	if err := result.Err(); err != nil {
		return doc, translate(err)
	}
	if err := result.Decode(&doc); err != nil {
		return doc, fmt.Errorf("decode: %w", err)
	}
	return doc, nil
}

func decodeAll[T any](ctx context.Context, cursor *mongo.Cursor) ([]T, error) {
	docs := make([]T, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return docs, nil
}

// CreateCategory inserts a category with a unique name.
func (s *ContentStore) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.ErrInvalid
	}

	now := s.now()
	doc := categoryDoc{ID: primitive.NewObjectID(), Name: name, CreatedAt: now, UpdatedAt: now}
	if _, err := s.categories.InsertOne(ctx, doc); err != nil {
		return domain.Category{}, fmt.Errorf("insert category: %w", translate(err))
	}

	return doc.domain(), nil
}

// RenameCategory renames in place. Buttons reference the category by ID so
// they follow the rename without being touched.
func (s *ContentStore) RenameCategory(ctx context.Context, oldName, newName string) (domain.Category, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return domain.Category{}, domain.ErrInvalid
	}

	result := s.categories.FindOneAndUpdate(ctx,
		bson.M{"name": strings.TrimSpace(oldName)},
		bson.M{"$set": bson.M{"name": newName, "updated_at": s.now()}},
		returnAfter(),
	)
	doc, err := decodeOne[categoryDoc](result)
	if err != nil {
		return domain.Category{}, fmt.Errorf("rename category: %w", err)
	}

	return doc.domain(), nil
}

// DeleteCategory removes an empty category.
func (s *ContentStore) DeleteCategory(ctx context.Context, name string) error {
	cat, err := s.FindCategory(ctx, name)
	if err != nil {
		return err
	}
	oid, _ := parseID(cat.ID)

	count, err := s.buttons.CountDocuments(ctx, bson.M{"category_id": oid})
	if err != nil {
		return fmt.Errorf("count category buttons: %w", err)
	}
	if count > 0 {
		return domain.ErrCategoryNotEmpty
	}

	// Documents written before the counter existed have no button_count.
	result, err := s.categories.DeleteOne(ctx, bson.M{
		"_id": oid,
		"$or": bson.A{
			bson.M{"button_count": bson.M{"$exists": false}},
			bson.M{"button_count": bson.M{"$lte": 0}},
		},
	})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if result != nil && result.DeletedCount > 0 {
		return nil
	}

	remaining, err := s.categories.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if remaining > 0 {
		return domain.ErrCategoryNotEmpty
	}

	return domain.ErrNotFound
}

// GetCategory fetches a category by ID.
func (s *ContentStore) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	oid, err := parseID(id)
	if err != nil {
		return domain.Category{}, err
	}

	doc, err := decodeOne[categoryDoc](s.categories.FindOne(ctx, bson.M{"_id": oid}))
	if err != nil {
		return domain.Category{}, fmt.Errorf("find category: %w", err)
	}

	return doc.domain(), nil
}

// FindCategory fetches a category by its exact name.
func (s *ContentStore) FindCategory(ctx context.Context, name string) (domain.Category, error) {
	doc, err := decodeOne[categoryDoc](s.categories.FindOne(ctx, bson.M{"name": strings.TrimSpace(name)}))
	if err != nil {
		return domain.Category{}, fmt.Errorf("find category: %w", err)
	}

	return doc.domain(), nil
}

// ListCategories returns every category in creation order.
func (s *ContentStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	cursor, err := s.categories.Find(ctx, bson.M{}, options.Find().SetSort(creationOrder))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	docs, err := decodeAll[categoryDoc](ctx, cursor)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.domain())
	}
	return out, nil
}

// CreateButton inserts a button under an existing category.
func (s *ContentStore) CreateButton(ctx context.Context, button domain.Button) (domain.Button, error) {
	text := strings.TrimSpace(button.Text)
	if text == "" || strings.TrimSpace(button.URL) == "" {
		return domain.Button{}, domain.ErrInvalid
	}

	categoryID, err := parseID(button.CategoryID)
	if err != nil {
		return domain.Button{}, fmt.Errorf("create button: %w", err)
	}

	if _, err := decodeOne[categoryDoc](s.categories.FindOneAndUpdate(ctx,
		bson.M{"_id": categoryID},
		bson.M{"$inc": bson.M{"button_count": 1}},
	)); err != nil {
		return domain.Button{}, fmt.Errorf("reserve category: %w", err)
	}

	now := s.now()
	doc := buttonDoc{
		ID:          primitive.NewObjectID(),
		Text:        text,
		URL:         strings.TrimSpace(button.URL),
		CategoryID:  categoryID,
		ImageFileID: button.ImageFileID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.buttons.InsertOne(ctx, doc); err != nil {
		if releaseErr := s.releaseCategory(ctx, categoryID); releaseErr != nil {
			return domain.Button{}, errors.Join(fmt.Errorf("insert button: %w", translate(err)), releaseErr)
		}
		return domain.Button{}, fmt.Errorf("insert button: %w", translate(err))
	}

	return doc.domain(), nil
}

// GetButton fetches a button by ID.
func (s *ContentStore) GetButton(ctx context.Context, id string) (domain.Button, error) {
	oid, err := parseID(id)
	if err != nil {
		return domain.Button{}, err
	}

	doc, err := decodeOne[buttonDoc](s.buttons.FindOne(ctx, bson.M{"_id": oid}))
	if err != nil {
		return domain.Button{}, fmt.Errorf("find button: %w", err)
	}

	return doc.domain(), nil
}

// FindButton resolves key as an ID, falling back to the button text.
func (s *ContentStore) FindButton(ctx context.Context, key string) (domain.Button, error) {
	key = strings.TrimSpace(key)
	if _, err := primitive.ObjectIDFromHex(key); err == nil {
		button, err := s.GetButton(ctx, key)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return button, err
		}
	}

	doc, err := decodeOne[buttonDoc](s.buttons.FindOne(ctx, bson.M{"text": key}))
	if err != nil {
		return domain.Button{}, fmt.Errorf("find button: %w", err)
	}

	return doc.domain(), nil
}

func (s *ContentStore) findButtons(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Button, error) {
	cursor, err := s.buttons.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list buttons: %w", err)
	}

	docs, err := decodeAll[buttonDoc](ctx, cursor)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Button, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.domain())
	}
	return out, nil
}

// ListButtons returns buttons of a category (or all) in creation order.
func (s *ContentStore) ListButtons(ctx context.Context, categoryID string) ([]domain.Button, error) {
	filter := bson.M{}
	if categoryID != "" {
		oid, err := parseID(categoryID)
		if err != nil {
			return nil, err
		}
		filter["category_id"] = oid
	}

	return s.findButtons(ctx, filter, options.Find().SetSort(creationOrder))
}

// SearchButtons runs a case-insensitive substring match on button text.
func (s *ContentStore) SearchButtons(ctx context.Context, keyword string, limit int) ([]domain.Button, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, domain.ErrInvalid
	}

	opts := options.Find().SetSort(creationOrder)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	filter := bson.M{"text": primitive.Regex{Pattern: regexp.QuoteMeta(keyword), Options: "i"}}
	return s.findButtons(ctx, filter, opts)
}

func (s *ContentStore) updateButton(ctx context.Context, id string, set bson.M) (domain.Button, error) {
	oid, err := parseID(id)
	if err != nil {
		return domain.Button{}, err
	}

	set["updated_at"] = s.now()
	doc, err := decodeOne[buttonDoc](s.buttons.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, returnAfter()))
	if err != nil {
		return domain.Button{}, fmt.Errorf("update button: %w", err)
	}

	return doc.domain(), nil
}

// RenameButton changes the display text.
func (s *ContentStore) RenameButton(ctx context.Context, id, text string) (domain.Button, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Button{}, domain.ErrInvalid
	}
	return s.updateButton(ctx, id, bson.M{"text": text})
}

// RelinkButton changes the target URL.
func (s *ContentStore) RelinkButton(ctx context.Context, id, url string) (domain.Button, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return domain.Button{}, domain.ErrInvalid
	}
	return s.updateButton(ctx, id, bson.M{"url": url})
}

// SetButtonImage stores the Telegram file_id of the thumbnail.
func (s *ContentStore) SetButtonImage(ctx context.Context, id, fileID string) (domain.Button, error) {
	if strings.TrimSpace(fileID) == "" {
		return domain.Button{}, domain.ErrInvalid
	}
	return s.updateButton(ctx, id, bson.M{"image_file_id": fileID})
}

// DeleteButton removes a button. Its click events are kept.
func (s *ContentStore) DeleteButton(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	doc, err := decodeOne[buttonDoc](s.buttons.FindOneAndDelete(ctx, bson.M{"_id": oid}))
	if err != nil {
		return fmt.Errorf("delete button: %w", err)
	}

	return s.releaseCategory(ctx, doc.CategoryID)
}

func (s *ContentStore) releaseCategory(ctx context.Context, categoryID primitive.ObjectID) error {
	if _, err := s.categories.UpdateOne(ctx,
		bson.M{"_id": categoryID},
		bson.M{"$inc": bson.M{"button_count": -1}},
	); err != nil {
		return fmt.Errorf("release category: %w", err)
	}
	return nil
}

// AddChannel registers a required channel.
func (s *ContentStore) AddChannel(ctx context.Context, channel domain.Channel) (domain.Channel, error) {
	if channel.Handle == "" {
		return domain.Channel{}, domain.ErrInvalid
	}

	doc := channelDoc{Username: channel.Handle, AddedBy: channel.AddedBy, AddedAt: s.now()}
	if _, err := s.channels.InsertOne(ctx, doc); err != nil {
		return domain.Channel{}, fmt.Errorf("insert channel: %w", translate(err))
	}

	return doc.domain(), nil
}

// RemoveChannel drops a required channel.
func (s *ContentStore) RemoveChannel(ctx context.Context, handle string) error {
	result, err := s.channels.DeleteOne(ctx, bson.M{"username": handle})
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if result == nil || result.DeletedCount == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// ListChannels returns required channels in the order they were added.
func (s *ContentStore) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	cursor, err := s.channels.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	docs, err := decodeAll[channelDoc](ctx, cursor)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Channel, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.domain())
	}
	return out, nil
}

// RecordClick appends a click event.
func (s *ContentStore) RecordClick(ctx context.Context, click domain.Click) error {
	oid, err := primitive.ObjectIDFromHex(click.ButtonID)
	if err != nil {
		return domain.ErrInvalid
	}

	ts := click.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	if _, err := s.clicks.InsertOne(ctx, clickDoc{ButtonID: oid, UserID: click.UserID, Timestamp: ts.UTC()}); err != nil {
		return fmt.Errorf("insert click: %w", err)
	}

	return nil
}

// TopButtons aggregates clicks per button.
func (s *ContentStore) TopButtons(ctx context.Context, limit int) ([]domain.ButtonStat, error) {
	cursor, err := s.clicks.Aggregate(ctx, clickStatsPipeline(limit))
	if err != nil {
		return nil, fmt.Errorf("aggregate clicks: %w", err)
	}

	rows, err := decodeAll[statRow](ctx, cursor)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ButtonStat, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ButtonStat{Button: row.Button.domain(), Clicks: row.Count})
	}
	return out, nil
}

// Totals reports collection sizes.
func (s *ContentStore) Totals(ctx context.Context) (domain.Totals, error) {
	return s.stats.Totals(ctx)
}

// Package filestore keeps all bot content in a single JSON document on disk.
// Every mutation rewrites the file atomically through a temp file and rename.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aphabeta/ADLLinks/internal/domain"
)

type document struct {
	Categories []domain.Category `json:"categories"`
	Buttons    []domain.Button   `json:"buttons"`
	Channels   []domain.Channel  `json:"channels"`
	Clicks     []domain.Click    `json:"clicks"`
	Users      []domain.User     `json:"users"`
	Operators  []domain.Operator `json:"operators"`
}

func (d *document) clone() *document {
	return &document{
		Categories: append([]domain.Category(nil), d.Categories...),
		Buttons:    append([]domain.Button(nil), d.Buttons...),
		Channels:   append([]domain.Channel(nil), d.Channels...),
		Clicks:     append([]domain.Click(nil), d.Clicks...),
		Users:      append([]domain.User(nil), d.Users...),
		Operators:  append([]domain.Operator(nil), d.Operators...),
	}
}

// legacyButton is the record shape of the original bare-array file.
type legacyButton struct {
	Text     string `json:"text"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Store implements the content, operator and user stores on one JSON file.
type Store struct {
	mu    sync.Mutex
	path  string
	doc   *document
	now   func() time.Time
	newID func() string
}

// Open loads path, creating an empty store if the file does not exist.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("data file path is required")
	}

	s := &Store{
		path:  path,
		doc:   &document{},
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read data file: %w", err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return s, nil
	}

	if trimmed[0] == '[' {
		if err := s.importLegacy(trimmed); err != nil {
			return nil, err
		}
		if err := s.persist(s.doc); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := json.Unmarshal(trimmed, s.doc); err != nil {
		return nil, fmt.Errorf("decode data file: %w", err)
	}

	return s, nil
}

func (s *Store) importLegacy(raw []byte) error {
	var records []legacyButton
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("decode legacy data file: %w", err)
	}

	now := s.now()
	categoryIDs := make(map[string]string)
	for _, rec := range records {
		text := strings.TrimSpace(rec.Text)
		if text == "" || findButtonByText(s.doc, text) >= 0 {
			continue
		}

		name := strings.TrimSpace(rec.Category)
		if name == "" {
			name = "Uncategorized"
		}
		catID, ok := categoryIDs[name]
		if !ok {
			catID = s.newID()
			categoryIDs[name] = catID
			s.doc.Categories = append(s.doc.Categories, domain.Category{ID: catID, Name: name, CreatedAt: now, UpdatedAt: now})
		}

		s.doc.Buttons = append(s.doc.Buttons, domain.Button{
			ID:         s.newID(),
			Text:       text,
			URL:        strings.TrimSpace(rec.URL),
			CategoryID: catID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	return nil
}

// persist writes d to a temp file in the target directory and renames it
// over the data file.
func (s *Store) persist(d *document) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}

	return nil
}

// mutate applies fn to a copy of the document and commits it only when the
// write succeeds.
func (s *Store) mutate(fn func(d *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}

	s.doc = next
	return nil
}

func (s *Store) read(fn func(d *document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Ping verifies the data directory is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return errors.New("file store is not initialized")
	}
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

// Close is a no-op; every mutation is already on disk.
func (s *Store) Close(context.Context) error {
	return nil
}

func findCategoryByName(d *document, name string) int {
	for i, c := range d.Categories {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func findCategoryByID(d *document, id string) int {
	for i, c := range d.Categories {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func findButtonByID(d *document, id string) int {
	for i, b := range d.Buttons {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func findButtonByText(d *document, text string) int {
	for i, b := range d.Buttons {
		if b.Text == text {
			return i
		}
	}
	return -1
}

// CreateCategory adds a category with a unique name.
func (s *Store) CreateCategory(_ context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.ErrInvalid
	}

	var created domain.Category
	err := s.mutate(func(d *document) error {
		if findCategoryByName(d, name) >= 0 {
			return fmt.Errorf("create category %q: %w", name, domain.ErrAlreadyExists)
		}
		now := s.now()
		created = domain.Category{ID: s.newID(), Name: name, CreatedAt: now, UpdatedAt: now}
		d.Categories = append(d.Categories, created)
		return nil
	})

	return created, err
}

// RenameCategory renames in place; buttons keep their category ID.
func (s *Store) RenameCategory(_ context.Context, oldName, newName string) (domain.Category, error) {
	oldName, newName = strings.TrimSpace(oldName), strings.TrimSpace(newName)
	if newName == "" {
		return domain.Category{}, domain.ErrInvalid
	}

	var renamed domain.Category
	err := s.mutate(func(d *document) error {
		idx := findCategoryByName(d, oldName)
		if idx < 0 {
			return fmt.Errorf("rename category %q: %w", oldName, domain.ErrNotFound)
		}
		if other := findCategoryByName(d, newName); other >= 0 && other != idx {
			return fmt.Errorf("rename category %q: %w", newName, domain.ErrAlreadyExists)
		}
		d.Categories[idx].Name = newName
		d.Categories[idx].UpdatedAt = s.now()
		renamed = d.Categories[idx]
		return nil
	})

	return renamed, err
}

// DeleteCategory removes a category that has no buttons.
func (s *Store) DeleteCategory(_ context.Context, name string) error {
	name = strings.TrimSpace(name)

	return s.mutate(func(d *document) error {
		idx := findCategoryByName(d, name)
		if idx < 0 {
			return fmt.Errorf("delete category %q: %w", name, domain.ErrNotFound)
		}
		id := d.Categories[idx].ID
		for _, b := range d.Buttons {
			if b.CategoryID == id {
				return domain.ErrCategoryNotEmpty
			}
		}
		d.Categories = append(d.Categories[:idx], d.Categories[idx+1:]...)
		return nil
	})
}

// GetCategory fetches a category by ID.
func (s *Store) GetCategory(_ context.Context, id string) (domain.Category, error) {
	var (
		out domain.Category
		err error
	)
	s.read(func(d *document) {
		idx := findCategoryByID(d, strings.TrimSpace(id))
		if idx < 0 {
			err = domain.ErrNotFound
			return
		}
		out = d.Categories[idx]
	})
	return out, err
}

// FindCategory fetches a category by exact name.
func (s *Store) FindCategory(_ context.Context, name string) (domain.Category, error) {
	var (
		out domain.Category
		err error
	)
	s.read(func(d *document) {
		idx := findCategoryByName(d, strings.TrimSpace(name))
		if idx < 0 {
			err = domain.ErrNotFound
			return
		}
		out = d.Categories[idx]
	})
	return out, err
}

// ListCategories returns categories in creation order.
func (s *Store) ListCategories(context.Context) ([]domain.Category, error) {
	var out []domain.Category
	s.read(func(d *document) {
		out = append(make([]domain.Category, 0, len(d.Categories)), d.Categories...)
	})
	return out, nil
}

// CreateButton adds a button under an existing category.
func (s *Store) CreateButton(_ context.Context, button domain.Button) (domain.Button, error) {
	button.Text = strings.TrimSpace(button.Text)
	button.URL = strings.TrimSpace(button.URL)
	if button.Text == "" || button.URL == "" {
		return domain.Button{}, domain.ErrInvalid
	}

	var created domain.Button
	err := s.mutate(func(d *document) error {
		if findCategoryByID(d, button.CategoryID) < 0 {
			return fmt.Errorf("create button: %w", domain.ErrNotFound)
		}
		if findButtonByText(d, button.Text) >= 0 {
			return fmt.Errorf("create button %q: %w", button.Text, domain.ErrAlreadyExists)
		}
		now := s.now()
		created = domain.Button{
			ID:          s.newID(),
			Text:        button.Text,
			URL:         button.URL,
			CategoryID:  button.CategoryID,
			ImageFileID: button.ImageFileID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		d.Buttons = append(d.Buttons, created)
		return nil
	})

	return created, err
}

// GetButton fetches a button by ID.
func (s *Store) GetButton(_ context.Context, id string) (domain.Button, error) {
	var (
		out domain.Button
		err error
	)
	s.read(func(d *document) {
		idx := findButtonByID(d, strings.TrimSpace(id))
		if idx < 0 {
			err = domain.ErrNotFound
			return
		}
		out = d.Buttons[idx]
	})
	return out, err
}

// FindButton resolves key as an ID, then as button text.
func (s *Store) FindButton(_ context.Context, key string) (domain.Button, error) {
	key = strings.TrimSpace(key)

	var (
		out domain.Button
		err error
	)
	s.read(func(d *document) {
		idx := findButtonByID(d, key)
		if idx < 0 {
			idx = findButtonByText(d, key)
		}
		if idx < 0 {
			err = domain.ErrNotFound
			return
		}
		out = d.Buttons[idx]
	})
	return out, err
}

// ListButtons returns one category's buttons, or all when categoryID is empty.
func (s *Store) ListButtons(_ context.Context, categoryID string) ([]domain.Button, error) {
	out := make([]domain.Button, 0)
	s.read(func(d *document) {
		for _, b := range d.Buttons {
			if categoryID == "" || b.CategoryID == categoryID {
				out = append(out, b)
			}
		}
	})
	return out, nil
}

// SearchButtons matches keyword case-insensitively against button text.
func (s *Store) SearchButtons(_ context.Context, keyword string, limit int) ([]domain.Button, error) {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" {
		return nil, domain.ErrInvalid
	}

	out := make([]domain.Button, 0)
	s.read(func(d *document) {
		for _, b := range d.Buttons {
			if limit > 0 && len(out) >= limit {
				return
			}
			if strings.Contains(strings.ToLower(b.Text), needle) {
				out = append(out, b)
			}
		}
	})
	return out, nil
}

func (s *Store) updateButton(id string, fn func(d *document, b *domain.Button) error) (domain.Button, error) {
	var updated domain.Button
	err := s.mutate(func(d *document) error {
		idx := findButtonByID(d, strings.TrimSpace(id))
		if idx < 0 {
			return fmt.Errorf("update button: %w", domain.ErrNotFound)
		}
		if err := fn(d, &d.Buttons[idx]); err != nil {
			return err
		}
		d.Buttons[idx].UpdatedAt = s.now()
		updated = d.Buttons[idx]
		return nil
	})
	return updated, err
}

// RenameButton changes the display text.
func (s *Store) RenameButton(_ context.Context, id, text string) (domain.Button, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Button{}, domain.ErrInvalid
	}

	return s.updateButton(id, func(d *document, b *domain.Button) error {
		if other := findButtonByText(d, text); other >= 0 && d.Buttons[other].ID != b.ID {
			return fmt.Errorf("rename button %q: %w", text, domain.ErrAlreadyExists)
		}
		b.Text = text
		return nil
	})
}

// RelinkButton changes the target URL.
func (s *Store) RelinkButton(_ context.Context, id, url string) (domain.Button, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return domain.Button{}, domain.ErrInvalid
	}

	return s.updateButton(id, func(_ *document, b *domain.Button) error {
		b.URL = url
		return nil
	})
}

// SetButtonImage stores the thumbnail file id.
func (s *Store) SetButtonImage(_ context.Context, id, fileID string) (domain.Button, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return domain.Button{}, domain.ErrInvalid
	}

	return s.updateButton(id, func(_ *document, b *domain.Button) error {
		b.ImageFileID = fileID
		return nil
	})
}

// DeleteButton removes a button; its clicks remain but drop out of stats.
func (s *Store) DeleteButton(_ context.Context, id string) error {
	return s.mutate(func(d *document) error {
		idx := findButtonByID(d, strings.TrimSpace(id))
		if idx < 0 {
			return fmt.Errorf("delete button: %w", domain.ErrNotFound)
		}
		d.Buttons = append(d.Buttons[:idx], d.Buttons[idx+1:]...)
		return nil
	})
}

// AddChannel registers a required channel.
func (s *Store) AddChannel(_ context.Context, channel domain.Channel) (domain.Channel, error) {
	if channel.Handle == "" {
		return domain.Channel{}, domain.ErrInvalid
	}

	var added domain.Channel
	err := s.mutate(func(d *document) error {
		for _, ch := range d.Channels {
			if ch.Handle == channel.Handle {
				return fmt.Errorf("add channel %q: %w", channel.Handle, domain.ErrAlreadyExists)
			}
		}
		added = domain.Channel{Handle: channel.Handle, AddedBy: channel.AddedBy, AddedAt: s.now()}
		d.Channels = append(d.Channels, added)
		return nil
	})

	return added, err
}

// RemoveChannel drops a required channel.
func (s *Store) RemoveChannel(_ context.Context, handle string) error {
	return s.mutate(func(d *document) error {
		for i, ch := range d.Channels {
			if ch.Handle == handle {
				d.Channels = append(d.Channels[:i], d.Channels[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("remove channel %q: %w", handle, domain.ErrNotFound)
	})
}

// ListChannels returns channels in the order they were added.
func (s *Store) ListChannels(context.Context) ([]domain.Channel, error) {
	var out []domain.Channel
	s.read(func(d *document) {
		out = append(make([]domain.Channel, 0, len(d.Channels)), d.Channels...)
	})
	return out, nil
}

// RecordClick appends a click event.
func (s *Store) RecordClick(_ context.Context, click domain.Click) error {
	if strings.TrimSpace(click.ButtonID) == "" {
		return domain.ErrInvalid
	}
	if click.Timestamp.IsZero() {
		click.Timestamp = s.now()
	}

	return s.mutate(func(d *document) error {
		d.Clicks = append(d.Clicks, click)
		return nil
	})
}

// TopButtons counts clicks per existing button, descending; ties keep button
// creation order.
func (s *Store) TopButtons(_ context.Context, limit int) ([]domain.ButtonStat, error) {
	out := make([]domain.ButtonStat, 0)
	s.read(func(d *document) {
		counts := make(map[string]int64)
		for _, c := range d.Clicks {
			counts[c.ButtonID]++
		}
		for _, b := range d.Buttons {
			if n := counts[b.ID]; n > 0 {
				out = append(out, domain.ButtonStat{Button: b, Clicks: n})
			}
		}
	})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Clicks > out[j].Clicks
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// Totals reports collection sizes.
func (s *Store) Totals(context.Context) (domain.Totals, error) {
	var totals domain.Totals
	s.read(func(d *document) {
		totals = domain.Totals{
			Users:      int64(len(d.Users)),
			Categories: int64(len(d.Categories)),
			Buttons:    int64(len(d.Buttons)),
			Clicks:     int64(len(d.Clicks)),
		}
	})
	return totals, nil
}

// EnsureUser inserts the user if absent; existing records are untouched.
func (s *Store) EnsureUser(_ context.Context, u domain.User) (bool, error) {
	if u.UserID == 0 {
		return false, errors.New("user id is required")
	}

	var exists bool
	s.read(func(d *document) {
		for _, existing := range d.Users {
			if existing.UserID == u.UserID {
				exists = true
				return
			}
		}
	})
	if exists {
		return false, nil
	}

	created := false
	err := s.mutate(func(d *document) error {
		for _, existing := range d.Users {
			if existing.UserID == u.UserID {
				return nil
			}
		}
		u.CreatedAt = s.now()
		d.Users = append(d.Users, u)
		created = true
		return nil
	})

	return created, err
}

func findOperator(d *document, userID int64) int {
	for i, op := range d.Operators {
		if op.UserID == userID {
			return i
		}
	}
	return -1
}

// UpsertOperator inserts op if absent. A config-sourced upsert claims an
// existing record.
func (s *Store) UpsertOperator(_ context.Context, op domain.Operator) (bool, error) {
	if op.UserID <= 0 {
		return false, errors.New("user id is required")
	}
	if op.Source == "" {
		op.Source = domain.OperatorSourceCommand
	}

	created := false
	err := s.mutate(func(d *document) error {
		now := s.now()
		if idx := findOperator(d, op.UserID); idx >= 0 {
			if op.Source == domain.OperatorSourceConfig {
				d.Operators[idx].Source = op.Source
			}
			d.Operators[idx].UpdatedAt = now
			return nil
		}
		op.CreatedAt, op.UpdatedAt = now, now
		d.Operators = append(d.Operators, op)
		created = true
		return nil
	})

	return created, err
}

// DeleteOperator removes a command-sourced operator.
func (s *Store) DeleteOperator(_ context.Context, userID int64) error {
	return s.mutate(func(d *document) error {
		idx := findOperator(d, userID)
		if idx < 0 {
			return domain.ErrNotFound
		}
		if d.Operators[idx].Source == domain.OperatorSourceConfig {
			return domain.ErrProtected
		}
		d.Operators = append(d.Operators[:idx], d.Operators[idx+1:]...)
		return nil
	})
}

// PruneConfigOperators removes config-sourced operators absent from keep.
func (s *Store) PruneConfigOperators(_ context.Context, keep []int64) (int64, error) {
	keepSet := make(map[int64]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	var removed int64
	err := s.mutate(func(d *document) error {
		kept := d.Operators[:0]
		for _, op := range d.Operators {
			if _, ok := keepSet[op.UserID]; op.Source == domain.OperatorSourceConfig && !ok {
				removed++
				continue
			}
			kept = append(kept, op)
		}
		d.Operators = kept
		return nil
	})

	return removed, err
}

// IsOperator reports whether userID is in the operator set.
func (s *Store) IsOperator(_ context.Context, userID int64) (bool, error) {
	var ok bool
	s.read(func(d *document) {
		ok = findOperator(d, userID) >= 0
	})
	return ok, nil
}

// ListOperators returns operators ordered by user id.
func (s *Store) ListOperators(context.Context) ([]domain.Operator, error) {
	var out []domain.Operator
	s.read(func(d *document) {
		out = append(make([]domain.Operator, 0, len(d.Operators)), d.Operators...)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

package domain

import "context"

// CategoryStore manages categories. Names are unique.
type CategoryStore interface {
	CreateCategory(ctx context.Context, name string) (Category, error)
	RenameCategory(ctx context.Context, oldName, newName string) (Category, error)
	// DeleteCategory fails with ErrCategoryNotEmpty while buttons reference it.
	DeleteCategory(ctx context.Context, name string) error
	GetCategory(ctx context.Context, id string) (Category, error)
	FindCategory(ctx context.Context, name string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// ButtonStore manages buttons. Text is unique across the store.
type ButtonStore interface {
	CreateButton(ctx context.Context, button Button) (Button, error)
	GetButton(ctx context.Context, id string) (Button, error)
	// FindButton resolves key as a button ID first, then as button text.
	FindButton(ctx context.Context, key string) (Button, error)
	// ListButtons returns buttons of one category, or all when categoryID is empty,
	// in creation order.
	ListButtons(ctx context.Context, categoryID string) ([]Button, error)
	// SearchButtons matches keyword case-insensitively against button text.
	SearchButtons(ctx context.Context, keyword string, limit int) ([]Button, error)
	RenameButton(ctx context.Context, id, text string) (Button, error)
	RelinkButton(ctx context.Context, id, url string) (Button, error)
	SetButtonImage(ctx context.Context, id, fileID string) (Button, error)
	DeleteButton(ctx context.Context, id string) error
}

// ChannelStore manages required channels.
type ChannelStore interface {
	AddChannel(ctx context.Context, channel Channel) (Channel, error)
	RemoveChannel(ctx context.Context, handle string) error
	ListChannels(ctx context.Context) ([]Channel, error)
}

// ClickStore records and aggregates click events.
type ClickStore interface {
	RecordClick(ctx context.Context, click Click) error
	// TopButtons returns buttons ordered by clicks descending; ties keep button
	// creation order.
	TopButtons(ctx context.Context, limit int) ([]ButtonStat, error)
	Totals(ctx context.Context) (Totals, error)
}

// OperatorStore persists the operator set.
type OperatorStore interface {
	// UpsertOperator inserts op or refreshes its source; it reports whether a
	// new record was created.
	UpsertOperator(ctx context.Context, op Operator) (bool, error)
	// DeleteOperator fails with ErrProtected for config-sourced operators.
	DeleteOperator(ctx context.Context, userID int64) error
	// PruneConfigOperators removes config-sourced operators not listed in keep.
	PruneConfigOperators(ctx context.Context, keep []int64) (int64, error)
	IsOperator(ctx context.Context, userID int64) (bool, error)
	ListOperators(ctx context.Context) ([]Operator, error)
}

// UserRegistrar stores a user on first contact without overwriting later.
type UserRegistrar interface {
	EnsureUser(ctx context.Context, user User) (bool, error)
}

// ContentStore is the full persistence surface the dispatcher works against.
type ContentStore interface {
	CategoryStore
	ButtonStore
	ChannelStore
	ClickStore
}

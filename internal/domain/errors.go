package domain

import "errors"

var (
	// ErrNotFound reports a missing category, button, channel or operator.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists reports a unique-key collision.
	ErrAlreadyExists = errors.New("already exists")
	// ErrCategoryNotEmpty rejects deleting a category that still has buttons.
	ErrCategoryNotEmpty = errors.New("category still has buttons")
	// ErrInvalid reports an argument the store refuses to persist.
	ErrInvalid = errors.New("invalid value")
	// ErrProtected rejects removing an operator seeded from configuration.
	ErrProtected = errors.New("configured operator cannot be removed")
)

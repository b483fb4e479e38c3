// Package operator manages the privileged operator set: startup seeding from
// configuration and per-call authorization checks.
package operator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aphabeta/ADLLinks/internal/domain"
	"github.com/aphabeta/ADLLinks/internal/logging"
)

// Registrar bootstraps the configured operators.
type Registrar struct {
	operators domain.OperatorStore
	logger    *logrus.Entry
}

// NewRegistrar constructs a Registrar over the provided operator store.
func NewRegistrar(operators domain.OperatorStore, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		operators: operators,
		logger:    logger,
	}
}

// EnsureConfigured upserts every configured id with source=config and removes
// config-sourced operators that are no longer listed. Command-sourced
// operators are left alone.
func (r *Registrar) EnsureConfigured(ctx context.Context, ids []int64) error {
	if r == nil || r.operators == nil {
		return errors.New("operator registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if len(ids) == 0 {
		return errors.New("at least one operator id is required")
	}

	var created int
	for _, id := range ids {
		inserted, err := r.operators.UpsertOperator(ctx, domain.Operator{
			UserID: id,
			Source: domain.OperatorSourceConfig,
		})
		if err != nil {
			return fmt.Errorf("ensure operator %d: %w", id, err)
		}
		if inserted {
			created++
		}
	}

	pruned, err := r.operators.PruneConfigOperators(ctx, ids)
	if err != nil {
		return fmt.Errorf("prune operators: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":      "operator_bootstrap",
		"configured": len(ids),
		"created":    created,
		"pruned":     pruned,
	}).Info("ensured configured operators")

	return nil
}

// Checker answers authorization queries against the persisted operator set.
// There is no cache; every call is a store lookup.
type Checker struct {
	operators domain.OperatorStore
}

// NewChecker constructs a Checker.
func NewChecker(operators domain.OperatorStore) *Checker {
	return &Checker{operators: operators}
}

// IsOperator reports whether userID may run privileged commands. Callers must
// treat an error as a denial.
func (c *Checker) IsOperator(ctx context.Context, userID int64) (bool, error) {
	if c == nil || c.operators == nil {
		return false, errors.New("operator checker is not initialized")
	}
	if userID <= 0 {
		return false, nil
	}

	ok, err := c.operators.IsOperator(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("lookup operator: %w", err)
	}

	return ok, nil
}

// Add grants operator privilege at runtime. It reports whether the user was
// newly added.
func (c *Checker) Add(ctx context.Context, userID, addedBy int64) (bool, error) {
	if c == nil || c.operators == nil {
		return false, errors.New("operator checker is not initialized")
	}
	if userID <= 0 {
		return false, domain.ErrInvalid
	}

	return c.operators.UpsertOperator(ctx, domain.Operator{
		UserID:  userID,
		Source:  domain.OperatorSourceCommand,
		AddedBy: addedBy,
	})
}

// List returns every operator ordered by user id.
func (c *Checker) List(ctx context.Context) ([]domain.Operator, error) {
	if c == nil || c.operators == nil {
		return nil, errors.New("operator checker is not initialized")
	}

	ops, err := c.operators.ListOperators(ctx)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}

	return ops, nil
}

// Remove revokes a runtime-added operator. Configured operators yield
// domain.ErrProtected.
func (c *Checker) Remove(ctx context.Context, userID int64) error {
	if c == nil || c.operators == nil {
		return errors.New("operator checker is not initialized")
	}

	return c.operators.DeleteOperator(ctx, userID)
}

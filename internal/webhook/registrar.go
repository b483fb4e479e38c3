package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/aphabeta/ADLLinks/internal/logging"
)

// Registration defaults.
const (
	DefaultAttempts        = 5
	DefaultInitialInterval = time.Second
)

// API is the webhook subset of the Telegram client.
type API interface {
	SetWebhook(ctx context.Context, endpoint, secret string) error
	DeleteWebhook(ctx context.Context) error
}

// Registrar registers the webhook endpoint with retry.
type Registrar struct {
	api        API
	endpoint   string
	secret     string
	logger     *logrus.Entry
	newBackOff func() backoff.BackOff
}

// NewRegistrar constructs a Registrar for endpoint.
func NewRegistrar(api API, endpoint, secret string, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		api:      api,
		endpoint: endpoint,
		secret:   secret,
		logger:   logger,
		newBackOff: func() backoff.BackOff {
			expo := backoff.NewExponentialBackOff()
			expo.InitialInterval = DefaultInitialInterval
			return backoff.WithMaxRetries(expo, DefaultAttempts-1)
		},
	}
}

// Register calls setWebhook until it succeeds or the attempts run out.
func (r *Registrar) Register(ctx context.Context) error {
	if r == nil || r.api == nil {
		return errors.New("webhook registrar is not initialized")
	}

	attempt := 0
	op := func() error {
		attempt++
		return r.api.SetWebhook(ctx, r.endpoint, r.secret)
	}
	notify := func(err error, wait time.Duration) {
		r.logger.WithFields(logging.Fields{
			"event":   "webhook_register_retry",
			"attempt": attempt,
			"wait":    wait.String(),
		}).WithError(err).Warn("webhook registration failed; retrying")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(r.newBackOff(), ctx), notify); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":    "webhook_register_failed",
			"attempts": attempt,
		}).WithError(err).Error("webhook registration gave up")
		return fmt.Errorf("register webhook: %w", err)
	}

	r.logger.WithFields(logging.Fields{
		"event":    "webhook_registered",
		"endpoint": r.endpoint,
		"attempts": attempt,
	}).Info("webhook registered")

	return nil
}

// Deregister removes the webhook.
func (r *Registrar) Deregister(ctx context.Context) error {
	if r == nil || r.api == nil {
		return errors.New("webhook registrar is not initialized")
	}

	if err := r.api.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("deregister webhook: %w", err)
	}

	r.logger.WithField("event", "webhook_deregistered").Info("webhook removed")
	return nil
}

// Package webhook receives Telegram updates over HTTP and manages the webhook
// registration.
package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/aphabeta/ADLLinks/internal/logging"
	"github.com/aphabeta/ADLLinks/internal/telegram"
)

const (
	// SecretHeader carries the token configured with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	// MaxBodyBytes caps an update body.
	MaxBodyBytes = 1 << 20

	handleTimeout = 30 * time.Second
)

// UpdateHandler processes one decoded update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *models.Update)
}

// Handler is the webhook HTTP endpoint. Every POST is acknowledged with 200 so
// Telegram never redelivers.
type Handler struct {
	updates UpdateHandler
	secret  string
	logger  *logrus.Entry
}

// NewHandler constructs a Handler. An empty secret disables the header check.
func NewHandler(updates UpdateHandler, secret string, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handler{
		updates: updates,
		secret:  secret,
		logger:  logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer ack(w)

	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(h.secret)) != 1 {
		h.logger.WithField("event", "webhook_secret_mismatch").Warn("rejected webhook call with bad secret")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		h.logger.WithField("event", "webhook_read_failed").WithError(err).Warn("failed to read webhook body")
		return
	}

	update, err := telegram.DecodeUpdate(body)
	if err != nil {
		h.logger.WithField("event", "webhook_decode_failed").WithError(err).Warn("failed to decode webhook update")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), handleTimeout)
	defer cancel()

	h.process(ctx, update)
}

func (h *Handler) process(ctx context.Context, update *models.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.WithFields(logging.Fields{
				"event":     "webhook_panic",
				"update_id": update.ID,
				"panic":     fmt.Sprint(rec),
			}).Error("recovered panic while handling update")
		}
	}()

	if h.updates == nil {
		h.logger.WithField("event", "webhook_handler_missing").Error("no update handler configured")
		return
	}

	h.updates.HandleUpdate(ctx, update)
}

func ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

// Package telegram adapts the Telegram Bot API to the dispatcher: it decodes
// updates into events, delivers outbound actions and answers membership
// lookups.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/aphabeta/ADLLinks/internal/config"
	"github.com/aphabeta/ADLLinks/internal/dispatcher"
	"github.com/aphabeta/ADLLinks/internal/feature/membership"
	"github.com/aphabeta/ADLLinks/internal/logging"
)

// botAPI is the subset of *bot.Bot the client uses.
type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
	GetMe(ctx context.Context) (*models.User, error)
}

// EventHandler consumes decoded events.
type EventHandler interface {
	Handle(ctx context.Context, ev dispatcher.Event)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	bot    botAPI
	logger *logrus.Entry

	mu      sync.RWMutex
	handler EventHandler
}

// NewClient initializes the Telegram bot. Updates received by polling are
// forwarded to the handler installed with SetHandler.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	c := &Client{logger: logger}

	tgBot, err := createBot(cfg.BotToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(c.defaultHandler),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	c.bot = tgBot

	return c, nil
}

// SetHandler installs the event consumer.
func (c *Client) SetHandler(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Client) eventHandler() EventHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) defaultHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	c.HandleUpdate(ctx, update)
}

// HandleUpdate logs the update and forwards it as an event. Unsupported
// update kinds are dropped.
func (c *Client) HandleUpdate(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}

	meta := extractUpdateMeta(update)
	fields := logging.Fields{
		"event":       "telegram_update",
		"update_id":   update.ID,
		"update_type": meta.updateType,
	}
	if meta.userID != 0 {
		fields["user_id"] = meta.userID
	}
	if meta.chatID != 0 {
		fields["chat_id"] = meta.chatID
	}
	c.logger.WithFields(fields).Debug("telegram update received")

	ev, ok := EventFromUpdate(update)
	if !ok {
		return
	}

	h := c.eventHandler()
	if h == nil {
		c.logger.WithField("event", "handler_missing").Warn("no event handler installed; dropping update")
		return
	}

	h.Handle(ctx, ev)
}

// DecodeUpdate parses a webhook body.
func DecodeUpdate(body []byte) (*models.Update, error) {
	var update models.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	return &update, nil
}

// EventFromUpdate converts messages and callback queries into events.
func EventFromUpdate(update *models.Update) (dispatcher.Event, bool) {
	switch {
	case update == nil:
		return dispatcher.Event{}, false
	case update.Message != nil:
		msg := update.Message
		ev := dispatcher.Event{
			Kind:      dispatcher.EventMessage,
			UpdateID:  update.ID,
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			Text:      msg.Text,
		}
		if fileID := largestPhoto(msg.Photo); fileID != "" {
			ev.PhotoFileID = fileID
			ev.Text = msg.Caption
		}
		fillUser(&ev, msg.From)
		if ev.UserID == 0 {
			return dispatcher.Event{}, false
		}
		return ev, true
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		ev := dispatcher.Event{
			Kind:         dispatcher.EventCallback,
			UpdateID:     update.ID,
			ChatID:       messageChatID(q.Message),
			MessageID:    messageID(q.Message),
			CallbackID:   q.ID,
			CallbackData: q.Data,
			HasMedia:     messageHasMedia(q.Message),
		}
		fillUser(&ev, &q.From)
		if ev.ChatID == 0 {
			ev.ChatID = ev.UserID
		}
		return ev, true
	default:
		return dispatcher.Event{}, false
	}
}

func fillUser(ev *dispatcher.Event, user *models.User) {
	if user == nil {
		return
	}
	ev.UserID = user.ID
	ev.Username = user.Username
	ev.FirstName = user.FirstName
	ev.LastName = user.LastName
}

func largestPhoto(sizes []models.PhotoSize) string {
	var (
		best     string
		bestArea int
	)
	for _, p := range sizes {
		area := p.Width * p.Height
		if p.FileID != "" && (best == "" || area >= bestArea) {
			best, bestArea = p.FileID, area
		}
	}
	return best
}

// markup avoids handing the API a typed-nil interface.
func markup(kb *models.InlineKeyboardMarkup) models.ReplyMarkup {
	if kb == nil {
		return nil
	}
	return kb
}

// SendText sends a text message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, kb *models.InlineKeyboardMarkup) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup(kb),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// EditText replaces the text and keyboard of an existing message.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string, kb *models.InlineKeyboardMarkup) error {
	_, err := c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: markup(kb),
	})
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// SendPhoto sends a previously uploaded photo by file id.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, kb *models.InlineKeyboardMarkup) error {
	_, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:      chatID,
		Photo:       &models.InputFileString{Data: fileID},
		Caption:     caption,
		ReplyMarkup: markup(kb),
	})
	if err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	_, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	})
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// ChatMember looks up userID in channel.
func (c *Client) ChatMember(ctx context.Context, channel string, userID int64) (membership.MemberInfo, error) {
	member, err := c.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: channel,
		UserID: userID,
	})
	if err != nil {
		return membership.MemberInfo{}, fmt.Errorf("get chat member: %w", err)
	}
	if member == nil {
		return membership.MemberInfo{}, errors.New("get chat member: empty response")
	}

	info := membership.MemberInfo{Status: string(member.Type)}
	if member.Type == models.ChatMemberTypeRestricted && member.Restricted != nil {
		info.IsMember = member.Restricted.IsMember
	}
	return info, nil
}

// SetWebhook registers endpoint with Telegram.
func (c *Client) SetWebhook(ctx context.Context, endpoint, secret string) error {
	_, err := c.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            endpoint,
		SecretToken:    secret,
		AllowedUpdates: defaultAllowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the registered webhook.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if _, err := c.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// Username returns the bot's own username from getMe.
func (c *Client) Username(ctx context.Context) (string, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("get me: %w", err)
	}
	if me == nil {
		return "", errors.New("get me: empty response")
	}
	return me.Username, nil
}

type updateMeta struct {
	userID     int64
	chatID     int64
	updateType string
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		updateType := "message"
		if len(update.Message.Photo) > 0 {
			updateType = "photo"
		}
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			updateType: updateType,
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			updateType: "callback_query",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}

func messageHasMedia(msg models.MaybeInaccessibleMessage) bool {
	return msg.Type == models.MaybeInaccessibleMessageTypeMessage && msg.Message != nil && len(msg.Message.Photo) > 0
}

func messageID(msg models.MaybeInaccessibleMessage) int {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return msg.Message.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return msg.InaccessibleMessage.MessageID
	default:
		return 0
	}
}

package dispatcher

import (
	"context"
	"strings"
	"unicode"

	"github.com/go-telegram/bot/models"
)

// EventKind distinguishes messages from callback selections.
type EventKind int

const (
	EventMessage EventKind = iota + 1
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventCallback:
		return "callback_query"
	default:
		return "unknown"
	}
}

// Event is one decoded inbound update.
type Event struct {
	Kind     EventKind
	UpdateID int64

	UserID    int64
	Username  string
	FirstName string
	LastName  string

	ChatID    int64
	MessageID int

	// Text holds the message text or photo caption.
	Text        string
	PhotoFileID string

	CallbackID   string
	CallbackData string
	// HasMedia marks a callback whose source message is a photo; such
	// messages cannot be edited into text.
	HasMedia bool
}

// command splits "/name@bot arg..." into its lowercase name, the addressed
// bot (empty when none) and the raw argument remainder. ok is false for
// non-command text.
func (e Event) command() (name, target, rest string, ok bool) {
	text := strings.TrimSpace(e.Text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", "", false
	}

	head, tail := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, tail = head[:i], head[i:]
	}
	head, target, _ = strings.Cut(head, "@")

	return strings.ToLower(head), target, strings.TrimSpace(tail), head != ""
}

// ActionKind enumerates outbound operations.
type ActionKind int

const (
	ActionSendText ActionKind = iota + 1
	ActionEditText
	ActionSendPhoto
	ActionAnswerCallback
)

func (k ActionKind) String() string {
	switch k {
	case ActionSendText:
		return "send_text"
	case ActionEditText:
		return "edit_text"
	case ActionSendPhoto:
		return "send_photo"
	case ActionAnswerCallback:
		return "answer_callback"
	default:
		return "unknown"
	}
}

// Action is one outbound operation directed at the originating chat.
type Action struct {
	Kind        ActionKind
	ChatID      int64
	MessageID   int
	CallbackID  string
	Text        string
	PhotoFileID string
	Keyboard    *models.InlineKeyboardMarkup
	ShowAlert   bool
}

// Messenger delivers actions to the chat platform.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) error
	EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard *models.InlineKeyboardMarkup) error
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, keyboard *models.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error
}

func sendText(chatID int64, text string, keyboard *models.InlineKeyboardMarkup) Action {
	return Action{Kind: ActionSendText, ChatID: chatID, Text: text, Keyboard: keyboard}
}

func editText(chatID int64, messageID int, text string, keyboard *models.InlineKeyboardMarkup) Action {
	return Action{Kind: ActionEditText, ChatID: chatID, MessageID: messageID, Text: text, Keyboard: keyboard}
}

func sendPhoto(chatID int64, fileID, caption string, keyboard *models.InlineKeyboardMarkup) Action {
	return Action{Kind: ActionSendPhoto, ChatID: chatID, PhotoFileID: fileID, Text: caption, Keyboard: keyboard}
}

func answerCallback(callbackID, text string, alert bool) Action {
	return Action{Kind: ActionAnswerCallback, CallbackID: callbackID, Text: text, ShowAlert: alert}
}

// Package keyboard renders inline menus and defines the callback payloads
// they carry.
package keyboard

import (
	"github.com/go-telegram/bot/models"

	"github.com/aphabeta/ADLLinks/internal/domain"
)

// Callback payloads. Prefixed payloads carry an entity ID after the colon.
const (
	PayloadCheckJoin = "check_join"
	PayloadBack      = "back"
	PrefixCategory   = "cat:"
	PrefixDetail     = "drama:"
	PrefixClick      = "click:"
)

// Button labels.
const (
	LabelCheckAgain = "✅ Check Again"
	LabelBack       = "⬅ Back"
	LabelGetLink    = "🔗 Get Link"
	LabelOpen       = "🌐 Open"
)

func row(buttons ...models.InlineKeyboardButton) []models.InlineKeyboardButton {
	return buttons
}

func callback(text, data string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: data}
}

func link(text, url string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, URL: url}
}

func markup(rows [][]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// ForceJoin lists a join link per channel followed by the re-check button.
// Numeric chat ids have no public link and appear only in the message text.
func ForceJoin(channels []domain.Channel) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(channels)+1)
	for _, ch := range channels {
		if url := ch.JoinURL(); url != "" {
			rows = append(rows, row(link("📢 Join "+ch.Handle, url)))
		}
	}
	rows = append(rows, row(callback(LabelCheckAgain, PayloadCheckJoin)))

	return markup(rows)
}

// Categories renders one button per category.
func Categories(categories []domain.Category) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, row(callback(c.Name, PrefixCategory+c.ID)))
	}

	return markup(rows)
}

// Buttons renders a category's links with a trailing back button.
func Buttons(buttons []domain.Button) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(buttons)+1)
	for _, b := range buttons {
		rows = append(rows, row(callback(b.Text, PrefixClick+b.ID)))
	}
	rows = append(rows, row(callback(LabelBack, PayloadBack)))

	return markup(rows)
}

// SearchResults renders matches as detail-card entries.
func SearchResults(buttons []domain.Button) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, row(callback(b.Text, PrefixDetail+b.ID)))
	}

	return markup(rows)
}

// Detail is the keyboard under a button's detail card.
func Detail(button domain.Button) *models.InlineKeyboardMarkup {
	return markup([][]models.InlineKeyboardButton{
		row(callback(LabelGetLink, PrefixClick+button.ID)),
		row(callback(LabelBack, PayloadBack)),
	})
}

// Link is the single URL button attached to a delivered thumbnail.
func Link(button domain.Button) *models.InlineKeyboardMarkup {
	return markup([][]models.InlineKeyboardButton{
		row(link(LabelOpen, button.URL)),
	})
}

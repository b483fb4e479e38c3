package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aphabeta/ADLLinks/internal/domain"
	"github.com/aphabeta/ADLLinks/internal/keyboard"
)

// User-facing texts.
const (
	MsgChooseCategory = "📂 Choose a category:"
	MsgNoCategories   = "No categories available yet."
	MsgChooseLink     = "🔗 Choose a link:"
	MsgNoLinks        = "No links here yet."
	MsgInvalidLink    = "Invalid link"
	MsgOpeningLink    = "Opening link…"
	MsgUnknownMenu    = "This menu is no longer available."
)

func (d *Dispatcher) handleStart(ctx context.Context, req *request) error {
	cats, err := d.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	if len(cats) == 0 {
		req.reply(MsgNoCategories, nil)
		return nil
	}

	req.reply(MsgChooseCategory, keyboard.Categories(cats))
	return nil
}

func (d *Dispatcher) handleBack(ctx context.Context, req *request) error {
	cats, err := d.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	if len(cats) == 0 {
		req.edit(MsgNoCategories, nil)
		return nil
	}

	req.edit(MsgChooseCategory, keyboard.Categories(cats))
	return nil
}

func (d *Dispatcher) handleFind(ctx context.Context, req *request) error {
	keyword := req.args[0]

	found, err := d.store.SearchButtons(ctx, keyword, d.searchLimit)
	switch {
	case errors.Is(err, domain.ErrInvalid):
		req.reply(d.commands["find"].usage(), nil)
		return nil
	case err != nil:
		return fmt.Errorf("search buttons: %w", err)
	}

	if len(found) == 0 {
		req.reply(fmt.Sprintf("🔍 No results for %q.", keyword), nil)
		return nil
	}

	req.reply(fmt.Sprintf("🔍 Results for %q:", keyword), keyboard.SearchResults(found))
	return nil
}

func (d *Dispatcher) handleHelp(ctx context.Context, req *request) error {
	var b strings.Builder
	b.WriteString("ℹ️ Commands:\n")

	isOperator, err := d.operators.IsOperator(ctx, req.ev.UserID)
	if err != nil {
		isOperator = false
	}

	userSection := true
	for _, name := range d.commandOrder {
		r := d.commands[name]
		if r.requiresOperator && !isOperator {
			continue
		}
		if r.requiresOperator && userSection {
			b.WriteString("\n🛠 Operator commands:\n")
			userSection = false
		}
		fmt.Fprintf(&b, "%s - %s\n", strings.TrimPrefix(r.usage(), "Usage: "), r.summary)
	}

	req.reply(strings.TrimRight(b.String(), "\n"), nil)
	return nil
}

func (d *Dispatcher) handleCategory(ctx context.Context, req *request) error {
	cat, err := d.store.GetCategory(ctx, req.payload)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.answerWith(MsgUnknownMenu, true)
		return nil
	case err != nil:
		return fmt.Errorf("get category: %w", err)
	}

	buttons, err := d.store.ListButtons(ctx, cat.ID)
	if err != nil {
		return fmt.Errorf("list buttons: %w", err)
	}
	if len(buttons) == 0 {
		req.edit(MsgNoLinks, keyboard.Buttons(nil))
		return nil
	}

	req.edit(MsgChooseLink, keyboard.Buttons(buttons))
	return nil
}

func (d *Dispatcher) handleDetail(ctx context.Context, req *request) error {
	button, err := d.store.GetButton(ctx, req.payload)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.answerWith(MsgInvalidLink, true)
		return nil
	case err != nil:
		return fmt.Errorf("get button: %w", err)
	}

	caption := "🎬 " + button.Text
	if button.HasImage() {
		req.photo(button.ImageFileID, caption, keyboard.Detail(button))
		return nil
	}

	req.reply(caption, keyboard.Detail(button))
	return nil
}

// handleClick appends the click before replying; a failed reply does not
// undo the record.
func (d *Dispatcher) handleClick(ctx context.Context, req *request) error {
	button, err := d.store.GetButton(ctx, req.payload)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.answerWith(MsgInvalidLink, true)
		return nil
	case err != nil:
		return fmt.Errorf("get button: %w", err)
	}

	if err := d.store.RecordClick(ctx, domain.Click{
		ButtonID:  button.ID,
		UserID:    req.ev.UserID,
		Timestamp: d.clock.Now(),
	}); err != nil {
		return fmt.Errorf("record click: %w", err)
	}

	req.answerWith(MsgOpeningLink, false)
	if button.HasImage() {
		req.photo(button.ImageFileID, button.Text+"\n"+button.URL, keyboard.Link(button))
		return nil
	}

	req.reply(button.URL, nil)
	return nil
}

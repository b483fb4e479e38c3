package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aphabeta/ADLLinks/internal/domain"
	"github.com/aphabeta/ADLLinks/internal/logging"
)

// Operator-facing texts.
const (
	MsgInvalidURL     = "❌ Invalid URL. Use an absolute http://, https:// or tg:// link."
	MsgInvalidChannel = "❌ Invalid channel. Use @username, a t.me link or a numeric chat id."
	MsgInvalidUserID  = "❌ User id must be a positive number."
	MsgNoPending      = "ℹ️ No thumbnail upload is pending. Use /setthumb <text> first."
	MsgCancelled      = "❎ Cancelled."
	MsgNothingPending = "ℹ️ Nothing to cancel."
	MsgNoButtons      = "No buttons yet."
	MsgNoClicks       = "No clicks yet."
)

func notFound(kind, name string) string {
	return fmt.Sprintf("❌ %s %q not found.", kind, name)
}

func exists(kind, name string) string {
	return fmt.Sprintf("⚠️ %s %q already exists.", kind, name)
}

func (d *Dispatcher) handleAddCategory(ctx context.Context, req *request) error {
	name := req.args[0]

	cat, err := d.store.CreateCategory(ctx, name)
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		req.reply(exists("Category", name), nil)
		return nil
	case errors.Is(err, domain.ErrInvalid):
		req.reply(d.commands["addcategory"].usage(), nil)
		return nil
	case err != nil:
		return fmt.Errorf("create category: %w", err)
	}

	req.reply("✅ Category added: "+cat.Name, nil)
	return nil
}

func (d *Dispatcher) handleEditCategory(ctx context.Context, req *request) error {
	oldName, newName := req.args[0], req.args[1]

	_, err := d.store.RenameCategory(ctx, oldName, newName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.reply(notFound("Category", oldName), nil)
		return nil
	case errors.Is(err, domain.ErrAlreadyExists):
		req.reply(exists("Category", newName), nil)
		return nil
	case errors.Is(err, domain.ErrInvalid):
		req.reply(d.commands["editcategory"].usage(), nil)
		return nil
	case err != nil:
		return fmt.Errorf("rename category: %w", err)
	}

	req.reply(fmt.Sprintf("✏️ Category renamed: %s → %s", oldName, newName), nil)
	return nil
}

func (d *Dispatcher) handleDelCategory(ctx context.Context, req *request) error {
	name := req.args[0]

	err := d.store.DeleteCategory(ctx, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.reply(notFound("Category", name), nil)
		return nil
	case errors.Is(err, domain.ErrCategoryNotEmpty):
		req.reply(fmt.Sprintf("⚠️ Category %q still has buttons. Move or delete them first.", name), nil)
		return nil
	case err != nil:
		return fmt.Errorf("delete category: %w", err)
	}

	req.reply("🗑️ Category deleted: "+name, nil)
	return nil
}

func (d *Dispatcher) handleAddButton(ctx context.Context, req *request) error {
	categoryName, text, link := req.args[0], req.args[1], req.args[2]
	if !validLink(link) {
		req.reply(MsgInvalidURL, nil)
		return nil
	}

	cat, err := d.store.FindCategory(ctx, categoryName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.reply(notFound("Category", categoryName), nil)
		return nil
	case err != nil:
		return fmt.Errorf("find category: %w", err)
	}

	button, err := d.store.CreateButton(ctx, domain.Button{Text: text, URL: link, CategoryID: cat.ID})
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		req.reply(exists("Button", text), nil)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		req.reply(notFound("Category", categoryName), nil)
		return nil
	case errors.Is(err, domain.ErrInvalid):
		req.reply(d.commands["addbutton"].usage(), nil)
		return nil
	case err != nil:
		return fmt.Errorf("create button: %w", err)
	}

	d.startPending(req, Pending{Kind: PendingAttach, ButtonID: button.ID, ButtonText: button.Text})
	req.reply(fmt.Sprintf("✅ Button added: %s\n📷 Send a photo now to attach a thumbnail, or /cancel to skip.", button.Text), nil)
	return nil
}

// findButton resolves a button argument, replying when it does not exist.
func (d *Dispatcher) findButton(ctx context.Context, req *request, key string) (domain.Button, bool, error) {
	button, err := d.store.FindButton(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.reply(notFound("Button", key), nil)
		return domain.Button{}, false, nil
	case err != nil:
		return domain.Button{}, false, fmt.Errorf("find button: %w", err)
	}
	return button, true, nil
}

func (d *Dispatcher) handleEditDrama(ctx context.Context, req *request) error {
	oldText, newText := req.args[0], req.args[1]

	button, ok, err := d.findButton(ctx, req, oldText)
	if err != nil || !ok {
		return err
	}

	_, err = d.store.RenameButton(ctx, button.ID, newText)
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		req.reply(exists("Button", newText), nil)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		req.reply(notFound("Button", oldText), nil)
		return nil
	case err != nil:
		return fmt.Errorf("rename button: %w", err)
	}

	req.reply(fmt.Sprintf("✏️ Button renamed: %s → %s", button.Text, newText), nil)
	return nil
}

func (d *Dispatcher) handleEditLink(ctx context.Context, req *request) error {
	key, link := req.args[0], req.args[1]
	if !validLink(link) {
		req.reply(MsgInvalidURL, nil)
		return nil
	}

	button, ok, err := d.findButton(ctx, req, key)
	if err != nil || !ok {
		return err
	}

	_, err = d.store.RelinkButton(ctx, button.ID, link)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.reply(notFound("Button", key), nil)
		return nil
	case err != nil:
		return fmt.Errorf("relink button: %w", err)
	}

	req.reply("🔗 Link updated for "+button.Text, nil)
	return nil
}

func (d *Dispatcher) handleSetThumb(ctx context.Context, req *request) error {
	button, ok, err := d.findButton(ctx, req, req.args[0])
	if err != nil || !ok {
		return err
	}

	d.startPending(req, Pending{Kind: PendingReplace, ButtonID: button.ID, ButtonText: button.Text})
	req.reply(fmt.Sprintf("📷 Send the new thumbnail for %q now, or /cancel.", button.Text), nil)
	return nil
}

func (d *Dispatcher) startPending(req *request, p Pending) {
	prev, replaced := d.pending.Set(req.ev.UserID, p)
	if !replaced {
		return
	}

	d.eventLogger(req.ev, "").WithFields(logging.Fields{
		"event":           "pending_overwritten",
		"previous_kind":   string(prev.Kind),
		"previous_button": prev.ButtonID,
		"kind":            string(p.Kind),
		"button_id":       p.ButtonID,
	}).Info("pending thumbnail flow replaced")
}

func (d *Dispatcher) handleDelButton(ctx context.Context, req *request) error {
	key := req.args[0]

	button, ok, err := d.findButton(ctx, req, key)
	if err != nil || !ok {
		return err
	}

	err = d.store.DeleteButton(ctx, button.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.reply(notFound("Button", key), nil)
		return nil
	case err != nil:
		return fmt.Errorf("delete button: %w", err)
	}

	req.reply("🗑️ Button deleted: "+button.Text, nil)
	return nil
}

func (d *Dispatcher) handleListButtons(ctx context.Context, req *request) error {
	cats, err := d.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	buttons, err := d.store.ListButtons(ctx, "")
	if err != nil {
		return fmt.Errorf("list buttons: %w", err)
	}
	if len(buttons) == 0 {
		req.reply(MsgNoButtons, nil)
		return nil
	}

	byCategory := make(map[string][]domain.Button, len(cats))
	for _, b := range buttons {
		byCategory[b.CategoryID] = append(byCategory[b.CategoryID], b)
	}

	var sb strings.Builder
	sb.WriteString("📋 Buttons:\n")
	for _, c := range cats {
		group := byCategory[c.ID]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n📂 %s\n", c.Name)
		for _, b := range group {
			thumb := ""
			if b.HasImage() {
				thumb = " 🖼️"
			}
			fmt.Fprintf(&sb, "• %s → %s%s\n", b.Text, b.URL, thumb)
		}
	}

	req.reply(strings.TrimRight(sb.String(), "\n"), nil)
	return nil
}

func (d *Dispatcher) handleStats(ctx context.Context, req *request) error {
	totals, err := d.store.Totals(ctx)
	if err != nil {
		return fmt.Errorf("totals: %w", err)
	}
	top, err := d.store.TopButtons(ctx, d.statsLimit)
	if err != nil {
		return fmt.Errorf("top buttons: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Click Stats:\n\n👤 Users: %d\n📂 Categories: %d\n🔗 Buttons: %d\n👆 Clicks: %d\n\n",
		totals.Users, totals.Categories, totals.Buttons, totals.Clicks)

	if len(top) == 0 {
		sb.WriteString(MsgNoClicks)
	}
	for _, stat := range top {
		fmt.Fprintf(&sb, "• %s → %d clicks\n", stat.Button.Text, stat.Clicks)
	}

	req.reply(strings.TrimRight(sb.String(), "\n"), nil)
	return nil
}

func (d *Dispatcher) handleAddChannel(ctx context.Context, req *request) error {
	handle, err := domain.NormalizeChannelHandle(req.args[0])
	if err != nil {
		req.reply(MsgInvalidChannel, nil)
		return nil
	}

	_, err = d.store.AddChannel(ctx, domain.Channel{Handle: handle, AddedBy: req.ev.UserID})
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		req.reply(exists("Channel", handle), nil)
		return nil
	case err != nil:
		return fmt.Errorf("add channel: %w", err)
	}

	req.reply("✅ Channel added: "+handle, nil)
	return nil
}

func (d *Dispatcher) handleDelChannel(ctx context.Context, req *request) error {
	handle, err := domain.NormalizeChannelHandle(req.args[0])
	if err != nil {
		req.reply(MsgInvalidChannel, nil)
		return nil
	}

	err = d.store.RemoveChannel(ctx, handle)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.reply(notFound("Channel", handle), nil)
		return nil
	case err != nil:
		return fmt.Errorf("remove channel: %w", err)
	}

	req.reply("🗑️ Channel removed: "+handle, nil)
	return nil
}

func parseUserID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (d *Dispatcher) handleAddSudo(ctx context.Context, req *request) error {
	id, ok := parseUserID(req.args[0])
	if !ok {
		req.reply(MsgInvalidUserID, nil)
		return nil
	}

	created, err := d.operators.Add(ctx, id, req.ev.UserID)
	if err != nil {
		return fmt.Errorf("add operator: %w", err)
	}
	if !created {
		req.reply(fmt.Sprintf("ℹ️ %d is already an operator.", id), nil)
		return nil
	}

	req.reply(fmt.Sprintf("✅ Operator added: %d", id), nil)
	return nil
}

func (d *Dispatcher) handleDelSudo(ctx context.Context, req *request) error {
	id, ok := parseUserID(req.args[0])
	if !ok {
		req.reply(MsgInvalidUserID, nil)
		return nil
	}

	err := d.operators.Remove(ctx, id)
	switch {
	case errors.Is(err, domain.ErrProtected):
		req.reply(fmt.Sprintf("⚠️ %d is configured in SUDO_USERS and cannot be removed here.", id), nil)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		req.reply(fmt.Sprintf("❌ %d is not an operator.", id), nil)
		return nil
	case err != nil:
		return fmt.Errorf("remove operator: %w", err)
	}

	req.reply(fmt.Sprintf("🗑️ Operator removed: %d", id), nil)
	return nil
}

func (d *Dispatcher) handleListSudo(ctx context.Context, req *request) error {
	ops, err := d.operators.List(ctx)
	if err != nil {
		return fmt.Errorf("list operators: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("👮 Operators:\n")
	for _, op := range ops {
		fmt.Fprintf(&sb, "%d (%s)\n", op.UserID, op.Source)
	}

	req.reply(strings.TrimRight(sb.String(), "\n"), nil)
	return nil
}

func (d *Dispatcher) handleCancel(_ context.Context, req *request) error {
	if d.pending.Clear(req.ev.UserID) {
		req.reply(MsgCancelled, nil)
		return nil
	}

	req.reply(MsgNothingPending, nil)
	return nil
}

// handlePhoto consumes the operator's pending flow.
func (d *Dispatcher) handlePhoto(ctx context.Context, req *request) error {
	p, ok := d.pending.Take(req.ev.UserID)
	if !ok {
		req.reply(MsgNoPending, nil)
		return nil
	}

	_, err := d.store.SetButtonImage(ctx, p.ButtonID, req.ev.PhotoFileID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		req.reply(fmt.Sprintf("❌ Button %q no longer exists.", p.ButtonText), nil)
		return nil
	case err != nil:
		return fmt.Errorf("set button image: %w", err)
	}

	req.reply(fmt.Sprintf("🖼️ Thumbnail saved for %q.", p.ButtonText), nil)
	return nil
}

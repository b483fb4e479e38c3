package dispatcher

import (
	"context"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/aphabeta/ADLLinks/internal/keyboard"
)

type handlerFunc func(ctx context.Context, req *request) error

type route struct {
	name string
	// args names the positional arguments; the last one absorbs extra words.
	args             []string
	requiresOperator bool
	gated            bool
	// quietDenial suppresses the unauthorized reply.
	quietDenial bool
	summary     string
	handle      handlerFunc
}

func (r *route) usage() string {
	var b strings.Builder
	b.WriteString("Usage: /")
	b.WriteString(r.name)
	for _, a := range r.args {
		b.WriteString(" <")
		b.WriteString(a)
		b.WriteString(">")
	}
	return b.String()
}

func routeName(r *route) string {
	if r == nil {
		return ""
	}
	return r.name
}

type callbackRoute struct {
	// payload is matched exactly unless prefix is set.
	payload string
	prefix  bool
	route   *route
}

// request carries one event through its handler and collects actions.
type request struct {
	ev      Event
	rest    string
	args    []string
	payload string
	actions []Action
	answer  *Action
}

func (r *request) reply(text string, kb *models.InlineKeyboardMarkup) {
	r.actions = append(r.actions, sendText(r.ev.ChatID, text, kb))
}

// edit replaces the callback's text message when there is one, else replies.
func (r *request) edit(text string, kb *models.InlineKeyboardMarkup) {
	if r.ev.Kind == EventCallback && r.ev.MessageID != 0 && !r.ev.HasMedia {
		r.actions = append(r.actions, editText(r.ev.ChatID, r.ev.MessageID, text, kb))
		return
	}
	r.reply(text, kb)
}

func (r *request) photo(fileID, caption string, kb *models.InlineKeyboardMarkup) {
	r.actions = append(r.actions, sendPhoto(r.ev.ChatID, fileID, caption, kb))
}

func (r *request) answerWith(text string, alert bool) {
	a := answerCallback(r.ev.CallbackID, text, alert)
	r.answer = &a
}

func (d *Dispatcher) registerRoutes() {
	commands := []*route{
		{name: "start", gated: true, summary: "show the category menu", handle: d.handleStart},
		{name: "find", args: []string{"keyword"}, gated: true, summary: "search links by name", handle: d.handleFind},
		{name: "help", gated: true, summary: "list commands", handle: d.handleHelp},

		{name: "addcategory", args: []string{"name"}, requiresOperator: true, summary: "create a category", handle: d.handleAddCategory},
		{name: "editcategory", args: []string{"old", "new"}, requiresOperator: true, summary: "rename a category", handle: d.handleEditCategory},
		{name: "delcategory", args: []string{"name"}, requiresOperator: true, summary: "delete an empty category", handle: d.handleDelCategory},
		{name: "addbutton", args: []string{"category", "text", "url"}, requiresOperator: true, summary: "add a link, then optionally send a thumbnail", handle: d.handleAddButton},
		{name: "editdrama", args: []string{"old", "new"}, requiresOperator: true, summary: "rename a link", handle: d.handleEditDrama},
		{name: "editlink", args: []string{"text", "url"}, requiresOperator: true, summary: "change a link's URL", handle: d.handleEditLink},
		{name: "setthumb", args: []string{"text"}, requiresOperator: true, summary: "replace a link's thumbnail", handle: d.handleSetThumb},
		{name: "delbutton", args: []string{"text"}, requiresOperator: true, summary: "delete a link", handle: d.handleDelButton},
		{name: "listbuttons", requiresOperator: true, summary: "list every link", handle: d.handleListButtons},
		{name: "stats", requiresOperator: true, summary: "show click statistics", handle: d.handleStats},
		{name: "addchannel", args: []string{"handle"}, requiresOperator: true, summary: "require a channel", handle: d.handleAddChannel},
		{name: "delchannel", args: []string{"handle"}, requiresOperator: true, summary: "stop requiring a channel", handle: d.handleDelChannel},
		{name: "addsudo", args: []string{"user-id"}, requiresOperator: true, summary: "grant operator rights", handle: d.handleAddSudo},
		{name: "delsudo", args: []string{"user-id"}, requiresOperator: true, summary: "revoke operator rights", handle: d.handleDelSudo},
		{name: "listsudo", requiresOperator: true, summary: "list operators", handle: d.handleListSudo},
		{name: "cancel", requiresOperator: true, summary: "abort a pending thumbnail upload", handle: d.handleCancel},
	}

	d.commands = make(map[string]*route, len(commands))
	d.commandOrder = make([]string, 0, len(commands))
	for _, r := range commands {
		d.commands[r.name] = r
		d.commandOrder = append(d.commandOrder, r.name)
	}

	// Exact payloads come before prefixes; prefixes never overlap.
	d.callbacks = []callbackRoute{
		{payload: keyboard.PayloadCheckJoin, route: &route{name: "check_join", gated: true, handle: d.handleStart}},
		{payload: keyboard.PayloadBack, route: &route{name: "back", gated: true, handle: d.handleBack}},
		{payload: keyboard.PrefixCategory, prefix: true, route: &route{name: "category", gated: true, handle: d.handleCategory}},
		{payload: keyboard.PrefixDetail, prefix: true, route: &route{name: "detail", gated: true, handle: d.handleDetail}},
		{payload: keyboard.PrefixClick, prefix: true, route: &route{name: "click", gated: true, handle: d.handleClick}},
	}

	d.photo = &route{name: "photo", requiresOperator: true, quietDenial: true, handle: d.handlePhoto}
}

// addressedHere reports whether a "/cmd@target" mention names this bot. Bare
// commands and an unknown own username accept everything.
func (d *Dispatcher) addressedHere(target string) bool {
	return target == "" || d.botUsername == "" || strings.EqualFold(target, d.botUsername)
}

// classify picks the single route for ev, or nil when the event is ignored.
func (d *Dispatcher) classify(ev Event) (*route, *request) {
	req := &request{ev: ev}

	switch ev.Kind {
	case EventMessage:
		if name, target, rest, ok := ev.command(); ok {
			if !d.addressedHere(target) {
				return nil, req
			}
			if r, found := d.commands[name]; found {
				req.rest = rest
				return r, req
			}
		}
		if ev.PhotoFileID != "" {
			return d.photo, req
		}
	case EventCallback:
		for _, cb := range d.callbacks {
			if cb.prefix {
				if arg, ok := strings.CutPrefix(ev.CallbackData, cb.payload); ok {
					req.payload = strings.TrimSpace(arg)
					return cb.route, req
				}
				continue
			}
			if ev.CallbackData == cb.payload {
				return cb.route, req
			}
		}
	}

	return nil, req
}

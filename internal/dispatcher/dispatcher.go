// Package dispatcher classifies inbound events, enforces the operator and
// channel-membership checks, and runs exactly one handler per event. Handlers
// produce outbound actions; nothing here talks to the network directly.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aphabeta/ADLLinks/internal/domain"
	"github.com/aphabeta/ADLLinks/internal/keyboard"
	"github.com/aphabeta/ADLLinks/internal/logging"
)

// Fixed replies.
const (
	MsgUnauthorized = "❌ Unauthorized"
	MsgFailure      = "⚠️ Something went wrong. Please try again."
	MsgThrottled    = "⏳ Too many requests. Please slow down."
	MsgMustJoin     = "🚫 You must join all channels below:"
)

// Result caps for find and stats.
const (
	DefaultSearchLimit = 20
	DefaultStatsLimit  = 20
)

// Authorizer answers whether a user is an operator.
type Authorizer interface {
	IsOperator(ctx context.Context, userID int64) (bool, error)
}

// OperatorManager extends Authorizer with runtime grants.
type OperatorManager interface {
	Authorizer
	Add(ctx context.Context, userID, addedBy int64) (bool, error)
	Remove(ctx context.Context, userID int64) error
	List(ctx context.Context) ([]domain.Operator, error)
}

// MembershipGate returns the channels a user has not verifiably joined.
type MembershipGate interface {
	Missing(ctx context.Context, channels []domain.Channel, userID int64) []domain.Channel
}

// Deps are the collaborators a Dispatcher needs. Messenger is only required
// by Handle.
type Deps struct {
	Store     domain.ContentStore
	Users     domain.UserRegistrar
	Operators OperatorManager
	Gate      MembershipGate
	Messenger Messenger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the clock used for pending flows and throttling.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithPendingTTL sets how long a pending photo flow stays valid.
func WithPendingTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.pendingTTL = ttl
	}
}

// WithThrottle sets the per-user event budget per minute; 0 disables it.
func WithThrottle(perMinute int) Option {
	return func(d *Dispatcher) {
		d.ratePerMinute = perMinute
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithBotUsername sets the bot's own username; commands addressed to any
// other bot are ignored.
func WithBotUsername(username string) Option {
	return func(d *Dispatcher) {
		d.botUsername = strings.TrimPrefix(strings.TrimSpace(username), "@")
	}
}

// Dispatcher routes events to handlers.
type Dispatcher struct {
	store     domain.ContentStore
	users     domain.UserRegistrar
	operators OperatorManager
	gate      MembershipGate
	messenger Messenger

	clock         Clock
	pendingTTL    time.Duration
	ratePerMinute int
	searchLimit   int
	statsLimit    int
	botUsername   string
	logger        *logrus.Entry

	pending  *PendingStore
	throttle *Throttle

	commands     map[string]*route
	commandOrder []string
	callbacks    []callbackRoute
	photo        *route
}

// New constructs a Dispatcher.
func New(deps Deps, opts ...Option) (*Dispatcher, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("content store is required")
	case deps.Users == nil:
		return nil, errors.New("user registrar is required")
	case deps.Operators == nil:
		return nil, errors.New("operator manager is required")
	case deps.Gate == nil:
		return nil, errors.New("membership gate is required")
	}

	d := &Dispatcher{
		store:         deps.Store,
		users:         deps.Users,
		operators:     deps.Operators,
		gate:          deps.Gate,
		messenger:     deps.Messenger,
		clock:         RealClock{},
		pendingTTL:    DefaultPendingTTL,
		ratePerMinute: 30,
		searchLimit:   DefaultSearchLimit,
		statsLimit:    DefaultStatsLimit,
		logger:        logging.Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.pending = NewPendingStore(d.pendingTTL, d.clock)
	d.throttle = NewThrottle(d.ratePerMinute, d.clock)
	d.registerRoutes()

	return d, nil
}

// Pending exposes the pending-flow store for sweeping.
func (d *Dispatcher) Pending() *PendingStore {
	return d.pending
}

// Throttle exposes the limiter set for sweeping; nil when disabled.
func (d *Dispatcher) Throttle() *Throttle {
	return d.throttle
}

// Handle dispatches ev and delivers the resulting actions in order. Delivery
// failures are logged and do not stop later actions.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) {
	actions := d.Dispatch(ctx, ev)
	if len(actions) == 0 {
		return
	}

	logger := d.eventLogger(ev, "")
	if d.messenger == nil {
		logger.WithField("event", "messenger_missing").Error("no messenger configured; dropping actions")
		return
	}

	for _, action := range actions {
		if err := d.deliver(ctx, action); err != nil {
			logger.WithFields(logging.Fields{
				"event":  "action_delivery_failed",
				"action": action.Kind.String(),
			}).WithError(err).Warn("failed to deliver action")
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a Action) error {
	switch a.Kind {
	case ActionSendText:
		return d.messenger.SendText(ctx, a.ChatID, a.Text, a.Keyboard)
	case ActionEditText:
		return d.messenger.EditText(ctx, a.ChatID, a.MessageID, a.Text, a.Keyboard)
	case ActionSendPhoto:
		return d.messenger.SendPhoto(ctx, a.ChatID, a.PhotoFileID, a.Text, a.Keyboard)
	case ActionAnswerCallback:
		return d.messenger.AnswerCallback(ctx, a.CallbackID, a.Text, a.ShowAlert)
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
}

// Dispatch runs the check pipeline and the matching handler. It never fails:
// errors and panics become a generic failure reply.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (actions []Action) {
	if ctx == nil {
		ctx = context.Background()
	}

	rt, req := d.classify(ev)
	logger := d.eventLogger(ev, routeName(rt))

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logging.Fields{
				"event": "handler_panic",
				"panic": fmt.Sprint(r),
			}).Error("recovered panic while dispatching")
			actions = d.failure(ev)
		}
	}()

	if rt == nil {
		if ev.Kind == EventCallback && ev.CallbackID != "" {
			return []Action{answerCallback(ev.CallbackID, "", false)}
		}
		return nil
	}

	if !d.throttle.Allow(ev.UserID) {
		logger.WithField("event", "throttled").Debug("event throttled")
		if ev.Kind == EventCallback {
			return []Action{answerCallback(ev.CallbackID, MsgThrottled, false)}
		}
		return nil
	}

	if rt.requiresOperator {
		ok, err := d.operators.IsOperator(ctx, ev.UserID)
		if err != nil {
			logger.WithField("event", "operator_lookup_failed").WithError(err).Warn("operator lookup failed; denying")
		}
		if !ok {
			logger.WithField("event", "unauthorized").Info("operator route denied")
			if !rt.quietDenial {
				req.reply(MsgUnauthorized, nil)
			}
			return d.finish(req)
		}
	}

	d.register(ctx, ev, logger)

	if rt.gated {
		missing, err := d.missingChannels(ctx, ev.UserID)
		if err != nil {
			logger.WithField("event", "channel_list_failed").WithError(err).Error("failed to list required channels")
			return d.failure(ev)
		}
		if len(missing) > 0 {
			logger.WithFields(logging.Fields{
				"event":   "membership_required",
				"missing": len(missing),
			}).Info("user has not joined required channels")
			req.reply(gateText(missing), keyboard.ForceJoin(missing))
			return d.finish(req)
		}
	}

	if n := len(rt.args); n > 0 {
		req.args = fitArgs(splitArgs(req.rest), n)
		if req.args == nil {
			req.reply(rt.usage(), nil)
			return d.finish(req)
		}
	}

	if err := rt.handle(ctx, req); err != nil {
		logger.WithField("event", "handler_failed").WithError(err).Error("handler returned error")
		return d.failure(ev)
	}

	logger.WithField("event", "dispatched").Debug("event handled")
	return d.finish(req)
}

func (d *Dispatcher) missingChannels(ctx context.Context, userID int64) ([]domain.Channel, error) {
	channels, err := d.store.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, nil
	}

	return d.gate.Missing(ctx, channels, userID), nil
}

func (d *Dispatcher) register(ctx context.Context, ev Event, logger *logrus.Entry) {
	if ev.UserID == 0 {
		return
	}

	_, err := d.users.EnsureUser(ctx, domain.User{
		UserID:    ev.UserID,
		Username:  ev.Username,
		FirstName: ev.FirstName,
		LastName:  ev.LastName,
	})
	if err != nil {
		logger.WithField("event", "user_register_failed").WithError(err).Warn("failed to register user")
	}
}

// finish splits long texts and closes callbacks with an answer.
func (d *Dispatcher) finish(req *request) []Action {
	out := make([]Action, 0, len(req.actions)+1)
	for _, a := range req.actions {
		if a.Kind != ActionSendText || len(a.Text) <= MaxMessageBytes {
			out = append(out, a)
			continue
		}

		chunks := splitText(a.Text, MaxMessageBytes)
		for i, chunk := range chunks {
			part := sendText(a.ChatID, chunk, nil)
			if i == len(chunks)-1 {
				part.Keyboard = a.Keyboard
			}
			out = append(out, part)
		}
	}

	if req.ev.Kind == EventCallback {
		answer := answerCallback(req.ev.CallbackID, "", false)
		if req.answer != nil {
			answer = *req.answer
		}
		out = append(out, answer)
	}

	return out
}

func (d *Dispatcher) failure(ev Event) []Action {
	if ev.Kind == EventCallback {
		return []Action{answerCallback(ev.CallbackID, MsgFailure, true)}
	}
	if ev.ChatID == 0 {
		return nil
	}
	return []Action{sendText(ev.ChatID, MsgFailure, nil)}
}

func (d *Dispatcher) eventLogger(ev Event, route string) *logrus.Entry {
	return d.logger.WithFields(logging.Context{
		UserID:     ev.UserID,
		ChatID:     ev.ChatID,
		UpdateID:   ev.UpdateID,
		UpdateType: ev.Kind.String(),
		Route:      route,
	}.Fields())
}

func gateText(missing []domain.Channel) string {
	text := MsgMustJoin + "\n"
	for _, ch := range missing {
		text += "\n• " + ch.Handle
	}
	return text
}

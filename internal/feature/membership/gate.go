// Package membership checks whether users have joined the required channels.
package membership

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"github.com/aphabeta/ADLLinks/internal/domain"
	"github.com/aphabeta/ADLLinks/internal/logging"
)

// Status is the outcome of a membership lookup.
type Status int

const (
	// StatusUnknown means the lookup failed; callers treat it as not joined.
	StatusUnknown Status = iota
	StatusMember
	StatusNotMember
)

func (s Status) String() string {
	switch s {
	case StatusMember:
		return "member"
	case StatusNotMember:
		return "not_member"
	default:
		return "unknown"
	}
}

// Reason qualifies a non-member result.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonNotJoined Reason = "not_joined"
	// ReasonRejected covers API refusals: chat not found, bot not in the
	// channel, user id unknown.
	ReasonRejected Reason = "rejected"
	// ReasonTransport covers network failures and unexpected API errors.
	ReasonTransport Reason = "transport"
)

// Result is the explicit lookup result propagated to the fail-closed policy.
type Result struct {
	Status Status
	Reason Reason
	Err    error
}

// Joined reports whether the result satisfies the gate.
func (r Result) Joined() bool {
	return r.Status == StatusMember
}

// Chat member statuses reported by the platform.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMemberName    = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// MemberInfo is the subset of a chat member record the gate needs.
type MemberInfo struct {
	Status   string
	IsMember bool
}

// Lookup queries the chat platform for a user's status in a channel.
type Lookup interface {
	ChatMember(ctx context.Context, channel string, userID int64) (MemberInfo, error)
}

// Gate evaluates required-channel membership.
type Gate struct {
	lookup Lookup
	logger *logrus.Entry
}

// NewGate constructs a Gate.
func NewGate(lookup Lookup, logger *logrus.Entry) *Gate {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Gate{lookup: lookup, logger: logger}
}

// IsMember checks one channel.
func (g *Gate) IsMember(ctx context.Context, channel string, userID int64) Result {
	if g == nil || g.lookup == nil {
		return Result{Status: StatusUnknown, Reason: ReasonTransport, Err: errors.New("membership gate is not initialized")}
	}

	info, err := g.lookup.ChatMember(ctx, channel, userID)
	if err != nil {
		return Result{Status: StatusUnknown, Reason: classify(err), Err: err}
	}

	return fromInfo(info)
}

// Missing returns the channels the user has not verifiably joined, in the
// order given. Each channel is looked up once.
func (g *Gate) Missing(ctx context.Context, channels []domain.Channel, userID int64) []domain.Channel {
	var missing []domain.Channel
	for _, ch := range channels {
		result := g.IsMember(ctx, ch.Handle, userID)
		if result.Joined() {
			continue
		}

		if result.Err != nil && g != nil {
			g.logger.WithFields(logging.Fields{
				"event":   "membership_lookup_failed",
				"channel": ch.Handle,
				"user_id": userID,
				"reason":  string(result.Reason),
			}).WithError(result.Err).Warn("membership lookup failed; treating as not joined")
		}
		missing = append(missing, ch)
	}

	return missing
}

func fromInfo(info MemberInfo) Result {
	switch info.Status {
	case StatusCreator, StatusAdministrator, StatusMemberName:
		return Result{Status: StatusMember}
	case StatusRestricted:
		if info.IsMember {
			return Result{Status: StatusMember}
		}
	}

	return Result{Status: StatusNotMember, Reason: ReasonNotJoined}
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorNotFound):
		return ReasonRejected
	default:
		return ReasonTransport
	}
}

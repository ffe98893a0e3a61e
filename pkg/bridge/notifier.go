package bridge

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chatpilot/pkg/rules"
)

// Outbound notification types pushed to the other process.
const (
	NotifyMessageSent   = "MESSAGE_SENT"
	NotifyGiveawayEntry = "GIVEAWAY_ENTRY"
	NotifyChatMetrics   = "CHAT_METRICS_UPDATE"
	NotifyCommandUsed   = "COMMAND_USED"
)

// Notification is one outbound fire-and-forget event.
type Notification struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Notifier is the outbound side of the bridge: state-change events the
// engine pushes to the other process.
type Notifier interface {
	MessageSent(text string)
	GiveawayEntry(username string, total int)
	MetricsUpdate(s rules.MetricsSnapshot)
	CommandUsed(trigger string, uses int)
}

// ChannelNotifier delivers notifications on a buffered channel. A slow or
// absent peer drops notifications rather than blocking the engine; drops
// are counted.
type ChannelNotifier struct {
	ch      chan Notification
	dropped atomic.Int64
	log     *logrus.Entry
}

// NewChannelNotifier creates a notifier with the given channel buffer.
func NewChannelNotifier(buf int, log *logrus.Entry) *ChannelNotifier {
	if buf <= 0 {
		buf = 64
	}
	return &ChannelNotifier{ch: make(chan Notification, buf), log: log}
}

// C is the consumer side of the notification stream.
func (n *ChannelNotifier) C() <-chan Notification { return n.ch }

// Dropped returns the number of notifications dropped to a slow peer.
func (n *ChannelNotifier) Dropped() int64 { return n.dropped.Load() }

// MessageSent implements Notifier.
func (n *ChannelNotifier) MessageSent(text string) {
	n.push(NotifyMessageSent, map[string]string{"text": text})
}

// GiveawayEntry implements Notifier.
func (n *ChannelNotifier) GiveawayEntry(username string, total int) {
	n.push(NotifyGiveawayEntry, map[string]any{"username": username, "total": total})
}

// MetricsUpdate implements Notifier.
func (n *ChannelNotifier) MetricsUpdate(s rules.MetricsSnapshot) {
	n.push(NotifyChatMetrics, s)
}

// CommandUsed implements Notifier.
func (n *ChannelNotifier) CommandUsed(trigger string, uses int) {
	n.push(NotifyCommandUsed, map[string]any{"trigger": trigger, "uses": uses})
}

func (n *ChannelNotifier) push(kind string, payload any) {
	note := Notification{
		ID:      uuid.NewString(),
		Type:    kind,
		At:      time.Now(),
		Payload: payload,
	}
	select {
	case n.ch <- note:
	default:
		d := n.dropped.Add(1)
		if d%100 == 1 {
			n.log.WithFields(logrus.Fields{"type": kind, "dropped": d}).
				Warn("Notification peer is slow, dropping")
		}
	}
}

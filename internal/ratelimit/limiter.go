// Package ratelimit enforces per-sender daily quotas over a trailing
// 24-hour window.
package ratelimit

import (
	"time"

	"github.com/leadflowhq/leadflow/internal/senders"
)

// window is the trailing period a quota applies to
const window = 24 * time.Hour

// UsageCounter reports how many sends a sender made since an instant
type UsageCounter interface {
	CountSince(senderID string, channel senders.Channel, since time.Time) int
}

// Limiter checks sender quotas against recorded usage. It holds no
// state of its own and no locks; the counter it wraps is owned by a
// single campaign worker.
type Limiter struct {
	usage  UsageCounter
	limits map[senders.Channel]int
	now    func() time.Time
}

// New creates a limiter with per-channel daily limits
func New(usage UsageCounter, emailLimit, whatsappLimit int) *Limiter {
	return &Limiter{
		usage: usage,
		limits: map[senders.Channel]int{
			senders.ChannelEmail:    emailLimit,
			senders.ChannelWhatsApp: whatsappLimit,
		},
		now: time.Now,
	}
}

// Available reports whether the sender may send on the channel right
// now. A sender with an empty ID is never available. Checking consumes
// nothing; only recorded sends count against the quota.
func (l *Limiter) Available(channel senders.Channel, senderID string) bool {
	if senderID == "" {
		return false
	}
	limit, ok := l.limits[channel]
	if !ok || limit <= 0 {
		return false
	}
	since := l.now().Add(-window)
	return l.usage.CountSince(senderID, channel, since) < limit
}

// Limit returns the daily limit for a channel, 0 if unknown
func (l *Limiter) Limit(channel senders.Channel) int {
	return l.limits[channel]
}

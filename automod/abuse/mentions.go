// Package abuse holds the rolling-window detectors for mention spam, thread
// creation floods, and attachment floods by new members. Each detector keeps
// bounded per-user state with a TTL and hands back the tracked message or
// thread IDs so the caller can purge everything at once.
package abuse

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/warden-bot/warden/automod/keyedlock"
)

const (
	maxSameTargetMentions = 10
	maxDistinctTargets    = 5
	maxMentionMessages    = 200
	mentionTTL            = 30 * time.Minute

	trackedUsers = 20000
)

// TrackedMessage identifies a cached message for later purging.
type TrackedMessage struct {
	ID        string
	ChannelID string
}

// MentionMessage is the slice of a message the mention detector cares about.
type MentionMessage struct {
	ID            string
	ChannelID     string
	Content       string
	UserMentions  []string
	RoleMentions  []string
	ReplyTargetID string
}

type mentionState struct {
	counts   map[string]int
	messages []TrackedMessage
}

// MentionDetector accumulates per-user mention targets across recent
// messages. Mentioning the author you reply to is normal conversation and
// does not count; @everyone and @here count as targets of their own.
type MentionDetector struct {
	Logger *slog.Logger
	locks  *keyedlock.Manager
	state  *expirable.LRU[string, *mentionState]
}

func NewMentionDetector(logger *slog.Logger, locks *keyedlock.Manager) *MentionDetector {
	return &MentionDetector{
		Logger: logger,
		locks:  locks,
		state:  expirable.NewLRU[string, *mentionState](trackedUsers, nil, mentionTTL),
	}
}

// Check records msg's mentions for userID and reports whether the user
// crossed the same-target or distinct-target limit. The returned messages
// are everything tracked for the user, for purging.
func (d *MentionDetector) Check(userID string, msg MentionMessage) ([]TrackedMessage, bool) {
	release := d.locks.Acquire(userID)
	defer release()

	st, ok := d.state.Get(userID)
	if !ok {
		st = &mentionState{counts: make(map[string]int)}
	}

	kept := make([]TrackedMessage, 0, len(st.messages)+1)
	for _, m := range st.messages {
		if m.ID != msg.ID {
			kept = append(kept, m)
		}
	}
	st.messages = append(kept, TrackedMessage{ID: msg.ID, ChannelID: msg.ChannelID})
	if len(st.messages) > maxMentionMessages {
		st.messages = st.messages[len(st.messages)-maxMentionMessages:]
	}

	if strings.Contains(msg.Content, "@everyone") {
		st.counts["@everyone"]++
	}
	if strings.Contains(msg.Content, "@here") {
		st.counts["@here"]++
	}
	for _, id := range msg.UserMentions {
		if id == msg.ReplyTargetID {
			continue
		}
		st.counts[id]++
	}
	for _, id := range msg.RoleMentions {
		st.counts[id]++
	}

	d.state.Add(userID, st)

	for _, c := range st.counts {
		if c >= maxSameTargetMentions {
			return st.messages, true
		}
	}
	if len(st.counts) >= maxDistinctTargets {
		return st.messages, true
	}
	return st.messages, false
}

// Reset drops a user's mention state.
func (d *MentionDetector) Reset(userID string) {
	release := d.locks.Acquire(userID)
	defer release()
	d.state.Remove(userID)
}

package abuse

import (
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/warden-bot/warden/automod/keyedlock"
)

const (
	maxAttachments        = 3
	maxAttachmentMessages = 50
	attachmentTTL         = 20 * time.Minute
)

// AttachmentMessage is the slice of a message the attachment detector needs.
type AttachmentMessage struct {
	ID          string
	ChannelID   string
	Attachments int
}

type attachmentState struct {
	count    int
	messages []TrackedMessage
}

// AttachmentDetector counts attachments posted by a user inside a rolling
// window. New members have no reason to upload files in bulk.
type AttachmentDetector struct {
	Logger *slog.Logger
	locks  *keyedlock.Manager
	state  *expirable.LRU[string, *attachmentState]
}

func NewAttachmentDetector(logger *slog.Logger, locks *keyedlock.Manager) *AttachmentDetector {
	return &AttachmentDetector{
		Logger: logger,
		locks:  locks,
		state:  expirable.NewLRU[string, *attachmentState](trackedUsers, nil, attachmentTTL),
	}
}

// Check records msg and reports whether the user's attachment count in the
// window reached the limit. The returned messages are for purging.
func (d *AttachmentDetector) Check(userID string, msg AttachmentMessage) ([]TrackedMessage, bool) {
	release := d.locks.Acquire(userID)
	defer release()

	st, ok := d.state.Get(userID)
	if !ok {
		st = &attachmentState{}
	}

	kept := make([]TrackedMessage, 0, len(st.messages)+1)
	for _, m := range st.messages {
		if m.ID != msg.ID {
			kept = append(kept, m)
		}
	}
	st.messages = append(kept, TrackedMessage{ID: msg.ID, ChannelID: msg.ChannelID})
	if len(st.messages) > maxAttachmentMessages {
		st.messages = st.messages[len(st.messages)-maxAttachmentMessages:]
	}
	st.count += msg.Attachments

	d.state.Add(userID, st)

	return st.messages, st.count >= maxAttachments
}

// Reset drops a user's attachment state.
func (d *AttachmentDetector) Reset(userID string) {
	release := d.locks.Acquire(userID)
	defer release()
	d.state.Remove(userID)
}

package engine

import (
	"strconv"
	"strings"
	"time"
)

// Priority buckets members by how much scrutiny their actions get. Lower is
// more trusted.
type Priority int

const (
	// PriorityTrusted members (moderators, ad-channel posts) are never moderated.
	PriorityTrusted Priority = iota
	// PriorityVeteran members only go through the cheap platform-level checks.
	PriorityVeteran
	// PriorityNormal members get link and structure moderation.
	PriorityNormal
	// PriorityNew members additionally get mention, invite, and flood moderation.
	PriorityNew
)

func (p Priority) String() string {
	switch p {
	case PriorityTrusted:
		return "trusted"
	case PriorityVeteran:
		return "veteran"
	case PriorityNormal:
		return "normal"
	case PriorityNew:
		return "new"
	}
	return "unknown"
}

// UserMeta is the member snapshot taken when the event arrived.
type UserMeta struct {
	ID                string
	Username          string
	Bot               bool
	JoinedAt          time.Time
	CanManageMessages bool
	Whitelisted       bool
	// set when the message came out of an application interaction run by
	// this user rather than posted directly
	FromInteraction bool
}

type Attachment struct {
	Filename    string
	URL         string
	Size        int
	ContentType string
}

type Embed struct {
	Title       string
	Description string
}

type Sticker struct {
	ID   string
	Name string
}

type Poll struct {
	Question string
	Answers  []string
}

// Activity mirrors the message activity payload; type 3 is a listen-along
// invitation, the vector used for activity advertising. Genuine Spotify
// listen-alongs carry a "spotify:"-prefixed party id.
type Activity struct {
	Type    int
	PartyID string
}

// MessageEvent is a created or edited message. Edits re-enter the engine
// only when the content changed; the adapter enforces that.
type MessageEvent struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	MessageID   string
	Author      UserMeta
	Content     string

	IsSystem       bool
	IsAutomod      bool
	ChannelIsText  bool
	ChannelIsForum bool

	Mentions      []string
	RoleMentions  []string
	ReplyTargetID string

	Attachments []Attachment
	Embeds      []Embed
	Stickers    []Sticker
	Poll        *Poll
	Activity    *Activity
}

// ThreadEvent is a newly created thread.
type ThreadEvent struct {
	GuildID  string
	ThreadID string
	Name     string
	Owner    UserMeta
}

// ChannelEvent is a created or renamed guild channel.
type ChannelEvent struct {
	GuildID     string
	ChannelID   string
	Name        string
	IsVoice     bool
	NameChanged bool
	// members connected to the channel when the event fired
	Members []UserMeta
}

// ChannelDeleteEvent is a deleted guild channel.
type ChannelDeleteEvent struct {
	GuildID   string
	ChannelID string
	Name      string
}

// ComposeRecordContent flattens everything a message carries into one text
// for the flood window and link scanning, so swapping a sticker for text
// does not dodge clustering.
func ComposeRecordContent(evt *MessageEvent) string {
	var b strings.Builder
	b.WriteString(evt.Content)

	if len(evt.Stickers) > 0 {
		b.WriteString("\n\n[stickers:]")
		for _, s := range evt.Stickers {
			b.WriteString("\n" + s.Name + " (" + s.ID + ")")
		}
	}
	if len(evt.Attachments) > 0 {
		b.WriteString("\n\n[attachments:]")
		for _, a := range evt.Attachments {
			b.WriteString("\n" + a.Filename)
		}
	}
	if len(evt.Embeds) > 0 {
		b.WriteString("\n\n[embeds:]")
		for _, em := range evt.Embeds {
			if em.Title != "" {
				b.WriteString("\ntitle: " + em.Title)
			}
			if em.Description != "" {
				b.WriteString("\ndescription: " + em.Description)
			}
		}
	}
	if evt.Activity != nil {
		b.WriteString("\n\n[activity:]")
		b.WriteString("\ntype: " + strconv.Itoa(evt.Activity.Type))
		b.WriteString("\nparty id: " + evt.Activity.PartyID)
	}
	if evt.Poll != nil {
		b.WriteString("\n\n" + ComposePollContent(evt.Poll))
	}

	return strings.TrimSpace(b.String())
}

// ComposePollContent renders a poll's question and answers as scannable text.
func ComposePollContent(p *Poll) string {
	var b strings.Builder
	b.WriteString("[poll:]")
	b.WriteString("\nquestion: \"" + p.Question + "\"")
	b.WriteString("\noptions: ")
	for i, a := range p.Answers {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString("\"" + a + "\"")
	}
	return b.String()
}

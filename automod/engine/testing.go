package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-bot/warden/automod/linkdetect"
)

// TestPlatform is an in-memory Platform recorder for tests. Every mutating
// call is captured; failure modes are switchable per call family.
type TestPlatform struct {
	mu sync.Mutex

	DeletedMessages map[string][]string
	BulkDeleted     map[string][][]string
	DeletedThreads  []string
	DeletedChannels []string

	Timeouts map[string]time.Time
	Bans     map[string]int

	UserNotices    map[string][]string
	ChannelNotices map[string][]string
	AuditLogs      []string

	Lockdowns map[string]time.Time

	Actors   []AuditActor
	ActorErr error
	Adders   map[string]*AuditActor

	AttachmentBodies map[string][]byte

	Slowmodes map[string]int

	RejectBulkDelete bool
	DeleteMessageErr error
}

func NewTestPlatform() *TestPlatform {
	return &TestPlatform{
		DeletedMessages:  make(map[string][]string),
		BulkDeleted:      make(map[string][][]string),
		Timeouts:         make(map[string]time.Time),
		Bans:             make(map[string]int),
		UserNotices:      make(map[string][]string),
		ChannelNotices:   make(map[string][]string),
		Lockdowns:        make(map[string]time.Time),
		Adders:           make(map[string]*AuditActor),
		AttachmentBodies: make(map[string][]byte),
		Slowmodes:        make(map[string]int),
	}
}

func (p *TestPlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DeleteMessageErr != nil {
		return p.DeleteMessageErr
	}
	p.DeletedMessages[channelID] = append(p.DeletedMessages[channelID], messageID)
	return nil
}

func (p *TestPlatform) BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RejectBulkDelete {
		return ErrForbidden
	}
	p.BulkDeleted[channelID] = append(p.BulkDeleted[channelID], messageIDs)
	return nil
}

func (p *TestPlatform) DeleteThread(ctx context.Context, threadID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DeletedThreads = append(p.DeletedThreads, threadID)
	return nil
}

func (p *TestPlatform) DeleteChannel(ctx context.Context, channelID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DeletedChannels = append(p.DeletedChannels, channelID)
	return nil
}

func (p *TestPlatform) TimeoutUser(ctx context.Context, guildID, userID string, until time.Time, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Timeouts[userID] = until
	return nil
}

func (p *TestPlatform) BanUser(ctx context.Context, guildID, userID string, deleteMessageSeconds int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Bans[userID] = deleteMessageSeconds
	return nil
}

func (p *TestPlatform) SendUserNotice(ctx context.Context, userID, title, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.UserNotices[userID] = append(p.UserNotices[userID], title+"\n"+body)
	return nil
}

func (p *TestPlatform) SendChannelNotice(ctx context.Context, channelID, userID, title, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ChannelNotices[channelID] = append(p.ChannelNotices[channelID], title+"\n"+body)
	return nil
}

func (p *TestPlatform) SendAuditLog(ctx context.Context, title, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AuditLogs = append(p.AuditLogs, title+"\n"+body)
	return nil
}

func (p *TestPlatform) SetGuildLockdown(ctx context.Context, guildID string, until time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Lockdowns[guildID] = until
	return nil
}

func (p *TestPlatform) ChannelDeleteActors(ctx context.Context, guildID, channelID string) ([]AuditActor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Actors, p.ActorErr
}

func (p *TestPlatform) BotAdder(ctx context.Context, guildID, botID string) (*AuditActor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Adders[botID], nil
}

func (p *TestPlatform) ReadAttachment(ctx context.Context, url string, limit int64) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	body, ok := p.AttachmentBodies[url]
	if !ok {
		return nil, ErrNotFound
	}
	if int64(len(body)) > limit {
		body = body[:limit]
	}
	return body, nil
}

func (p *TestPlatform) SlowmodeDelay(channelID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.Slowmodes[channelID]
	return d, ok
}

func (p *TestPlatform) SetSlowmodeDelay(ctx context.Context, channelID string, seconds int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Slowmodes[channelID] = seconds
	return nil
}

// Snapshot helpers keep test assertions race-free.

func (p *TestPlatform) MessageDeleteCount(channelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.DeletedMessages[channelID])
}

func (p *TestPlatform) AuditLogCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.AuditLogs)
}

// TestInviteAPI is a canned invite lookup for tests.
type TestInviteAPI struct {
	Invites map[string]*linkdetect.InviteInfo
	Err     error
}

func (a *TestInviteAPI) LookupInvite(ctx context.Context, code string) (*linkdetect.InviteInfo, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	info, ok := a.Invites[code]
	if !ok {
		return nil, linkdetect.ErrInviteNotFound
	}
	return info, nil
}

// NewTestEngine builds an engine against the recorder platform with all
// fire-and-forget side effects made synchronous, so tests can assert right
// after a handler returns.
func NewTestEngine(platform *TestPlatform, inviteAPI linkdetect.InviteAPI) *Engine {
	if inviteAPI == nil {
		inviteAPI = &TestInviteAPI{}
	}
	logger := slog.Default()
	eng := New(logger, DefaultConfig("guild1"), platform, inviteAPI)
	eng.Escalator.spawn = func(fn func()) { fn() }
	return eng
}

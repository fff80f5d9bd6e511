package linkdetect

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-bot/warden/automod/cachestore"
)

type fakeInviteAPI struct {
	invites map[string]*InviteInfo
	err     error
	calls   int
}

func (f *fakeInviteAPI) LookupInvite(ctx context.Context, code string) (*InviteInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if info, ok := f.invites[code]; ok {
		return info, nil
	}
	return nil, ErrInviteNotFound
}

func testResolver(api *fakeInviteAPI) *InviteResolver {
	cache := cachestore.NewMemCacheStore(100, 20*time.Minute)
	return NewInviteResolver(api, cache, slog.Default())
}

func TestExtractCandidates(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"join Xk2mP9qR now", []string{"Xk2mP9qR"}},
		{"plain words only here", nil},
		{"numbers 123456789 only", nil},
		{"deadbeefdeadbeef0123", nil},
		{"released 2024-01-31 yesterday", nil},
		{"a-b-c-d-spam", nil},
		{"minecraft2 and privet123 chatter", nil},
		{"Xk2mP9qR and xk2mp9qr again", []string{"Xk2mP9qR"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractCandidates(tc.raw), "raw: %q", tc.raw)
	}
}

func TestExtractCandidatesCapped(t *testing.T) {
	raw := "aa1bb1 cc2dd2 ee3ff3 gg4hh4 ii5jj5 kk6ll6 mm7nn7"
	got := ExtractCandidates(raw)
	assert.Len(t, got, 5)
}

func TestCheckTextForeignInvite(t *testing.T) {
	api := &fakeInviteAPI{invites: map[string]*InviteInfo{
		"Xk2mP9qR": {Code: "Xk2mP9qR", GuildID: "999", GuildName: "Evil Server", MemberCount: 42},
	}}
	r := testResolver(api)

	res, ok := r.CheckText(context.Background(), "join Xk2mP9qR today", "111")
	require.True(t, ok)
	assert.Equal(t, "999", res.GuildID)
	assert.Equal(t, "Evil Server", res.GuildName)
	assert.False(t, res.FromCache)
}

func TestCheckTextHomeGuildSkipped(t *testing.T) {
	api := &fakeInviteAPI{invites: map[string]*InviteInfo{
		"Xk2mP9qR": {Code: "Xk2mP9qR", GuildID: "111", GuildName: "Home"},
	}}
	r := testResolver(api)

	_, ok := r.CheckText(context.Background(), "join Xk2mP9qR today", "111")
	assert.False(t, ok)
}

func TestResolveMemoizesValid(t *testing.T) {
	api := &fakeInviteAPI{invites: map[string]*InviteInfo{
		"Xk2mP9qR": {Code: "Xk2mP9qR", GuildID: "999"},
	}}
	r := testResolver(api)
	ctx := context.Background()

	res, ok := r.CheckText(ctx, "Xk2mP9qR", "111")
	require.True(t, ok)
	assert.False(t, res.FromCache)
	assert.Equal(t, 1, api.calls)

	res, ok = r.CheckText(ctx, "Xk2mP9qR", "111")
	require.True(t, ok)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, api.calls)
}

func TestResolveMemoizesInvalid(t *testing.T) {
	api := &fakeInviteAPI{invites: map[string]*InviteInfo{}}
	r := testResolver(api)
	ctx := context.Background()

	_, ok := r.CheckText(ctx, "Xk2mP9qR", "111")
	assert.False(t, ok)
	assert.Equal(t, 1, api.calls)

	// invalid outcome is memoized too, no second API hit
	_, ok = r.CheckText(ctx, "Xk2mP9qR", "111")
	assert.False(t, ok)
	assert.Equal(t, 1, api.calls)
}

func TestResolveTransientErrorNotCached(t *testing.T) {
	api := &fakeInviteAPI{err: errors.New("rate limited")}
	r := testResolver(api)
	ctx := context.Background()

	_, ok := r.CheckText(ctx, "Xk2mP9qR", "111")
	assert.False(t, ok)

	// once the API recovers the same code resolves
	api.err = nil
	api.invites = map[string]*InviteInfo{"Xk2mP9qR": {Code: "Xk2mP9qR", GuildID: "999"}}
	res, ok := r.CheckText(ctx, "Xk2mP9qR", "111")
	require.True(t, ok)
	assert.Equal(t, "999", res.GuildID)
	assert.Equal(t, 2, api.calls)
}

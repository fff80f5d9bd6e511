package linkdetect

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/warden-bot/warden/automod/cachestore"
)

const maxRedirectHops = 5

// RedirectResolver follows a URL's redirect chain and reports the final
// destination, so shortener-cloaked invites get checked against the same
// patterns as literal ones. Outcomes are memoized per URL; transient
// transport errors are never cached.
type RedirectResolver struct {
	Client *http.Client
	Cache  cachestore.CacheStore
	Logger *slog.Logger
}

// NewRedirectResolver builds a resolver with retrying transport (5xx and
// 429 with backoff) and a bounded hop count.
func NewRedirectResolver(cache cachestore.CacheStore, logger *slog.Logger) *RedirectResolver {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	client := retryClient.StandardClient()
	client.Timeout = 10 * time.Second
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirectHops {
			return http.ErrUseLastResponse
		}
		return nil
	}
	return &RedirectResolver{Client: client, Cache: cache, Logger: logger}
}

// FinalURL resolves rawURL to the last URL in its redirect chain. ok is
// false when resolution failed and nothing should be concluded.
func (r *RedirectResolver) FinalURL(ctx context.Context, rawURL string) (string, bool) {
	if cached, err := r.Cache.Get(ctx, "redirect", rawURL); err == nil && cached != "" {
		return cached, true
	}

	final, ok := r.follow(ctx, http.MethodHead, rawURL)
	if !ok {
		// some hosts reject HEAD outright
		final, ok = r.follow(ctx, http.MethodGet, rawURL)
	}
	if !ok {
		return "", false
	}

	if err := r.Cache.Set(ctx, "redirect", rawURL, final); err != nil {
		r.Logger.Warn("caching redirect outcome failed", "url", rawURL, "err", err)
	}
	return final, true
}

func (r *RedirectResolver) follow(ctx context.Context, method, rawURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return "", false
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		r.Logger.Debug("redirect resolution failed", "url", rawURL, "err", err)
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", false
	}
	return resp.Request.URL.String(), true
}

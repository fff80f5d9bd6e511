// Package flood detects message flooding by new members: repeated or
// near-identical messages inside a per-user rolling window, including the
// alternating pattern where a spammer rotates between a few texts to dodge
// naive duplicate checks.
package flood

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/warden-bot/warden/automod/keyedlock"
)

const (
	maxCachedMessages = 60
	guaranteedWindow  = 15
	// the guaranteed check looks a bit past the window so spacing a few
	// unrelated messages between repeats does not reset it
	guaranteedSlack = 20

	alternatingWindow = 60
	fuzzyThreshold    = 80
	minClusters       = 2
	minClusterSize    = 15

	windowTTL      = 20 * time.Minute
	trackedMembers = 20000
)

// Record is one cached message in a user's window.
type Record struct {
	ID        string
	ChannelID string
	Content   string
}

// Result describes a detected flood. Records holds the full window at
// detection time so the caller can purge everything the user posted.
type Result struct {
	Records     []Record
	Content     string
	Alternating bool
}

// Detector keeps a bounded per-user message window and clusters it by
// exact-then-fuzzy similarity on every new message.
type Detector struct {
	Logger *slog.Logger
	locks  *keyedlock.Manager
	window *expirable.LRU[string, []Record]
}

func NewDetector(logger *slog.Logger, locks *keyedlock.Manager) *Detector {
	return &Detector{
		Logger: logger,
		locks:  locks,
		window: expirable.NewLRU[string, []Record](trackedMembers, nil, windowTTL),
	}
}

// Check appends rec to userID's window (replacing any earlier record with
// the same message ID, which covers edits) and reports whether the window
// now constitutes a flood. The user's window is dropped once a flood fires.
func (d *Detector) Check(userID string, rec Record) (*Result, bool) {
	release := d.locks.Acquire(userID)
	defer release()

	msgs, _ := d.window.Get(userID)
	if len(msgs) > maxCachedMessages {
		msgs = msgs[len(msgs)-maxCachedMessages:]
	}
	if strings.TrimSpace(rec.Content) != "" {
		out := make([]Record, 0, len(msgs)+1)
		for _, m := range msgs {
			if m.ID != rec.ID {
				out = append(out, m)
			}
		}
		msgs = append(out, rec)
		// Add refreshes the TTL, so an active window never expires mid-burst
		d.window.Add(userID, msgs)
	}

	start := len(msgs) - (guaranteedWindow + guaranteedSlack)
	if start < 0 {
		start = 0
	}
	recent := msgs[start:]
	if len(recent) >= guaranteedWindow {
		for _, cl := range clusterRecords(recent) {
			if cl.count >= guaranteedWindow {
				d.window.Remove(userID)
				return &Result{Records: msgs, Content: rec.Content}, true
			}
		}
	}

	alt := msgs
	if len(alt) > alternatingWindow {
		alt = alt[len(alt)-alternatingWindow:]
	}
	big := 0
	for _, cl := range clusterRecords(alt) {
		if cl.count >= minClusterSize {
			big++
		}
	}
	if big >= minClusters {
		d.window.Remove(userID)
		return &Result{Records: msgs, Content: rec.Content, Alternating: true}, true
	}

	return nil, false
}

// Reset drops a user's window, e.g. after the user was removed.
func (d *Detector) Reset(userID string) {
	release := d.locks.Acquire(userID)
	defer release()
	d.window.Remove(userID)
}

type cluster struct {
	prototype string
	count     int
}

// clusterRecords groups records by similarity to the first member of each
// cluster. Exact comparison runs before the fuzzy one; empty contents are
// skipped.
func clusterRecords(records []Record) []*cluster {
	var clusters []*cluster
	for _, m := range records {
		cur := strings.TrimSpace(m.Content)
		if cur == "" {
			continue
		}
		placed := false
		for _, cl := range clusters {
			if cur == cl.prototype || fuzzy.Ratio(cur, cl.prototype) >= fuzzyThreshold {
				cl.count++
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{prototype: cur, count: 1})
		}
	}
	return clusters
}

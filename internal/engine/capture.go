package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/ppiankov/egresswatch/internal/blacklist"
	"github.com/ppiankov/egresswatch/internal/session"
	"github.com/ppiankov/egresswatch/internal/whitelist"
)

// FeedConfig configures a FeedCapture.
type FeedConfig struct {
	Blacklist    *blacklist.Blacklist
	PollInterval time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// FeedCapture classifies sessions read from JSONL connection feeds.
// Records sharing a protocol and 5-tuple fold into one session.
type FeedCapture struct {
	cfg FeedConfig

	mu        sync.Mutex
	started   bool
	tailers   []*tailer
	sessions  []session.Session
	index     map[string]int
	drained   int
	whitelist *whitelist.Set
	skipped   int
}

// NewFeedCapture creates a capture with the built-in whitelist and the given
// blacklist (built-in when nil).
func NewFeedCapture(cfg FeedConfig) *FeedCapture {
	if cfg.Blacklist == nil {
		cfg.Blacklist = blacklist.NewDefault()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &FeedCapture{
		cfg:       cfg,
		index:     make(map[string]int),
		whitelist: whitelist.Default(),
	}
}

// Start reads what the feeds already hold and keeps following them until ctx
// is cancelled.
func (c *FeedCapture) Start(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return errors.New("engine: no feed sources configured")
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("engine: capture already started")
	}
	for _, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("engine: resolve %q: %w", src, err)
		}
		c.tailers = append(c.tailers, &tailer{path: abs})
	}
	c.started = true
	c.mu.Unlock()

	w, err := newFeedWatcher(sources, c.cfg.PollInterval)
	if err != nil {
		return err
	}

	c.refresh()
	go w.Run(ctx, c.refresh, func(err error) {
		c.cfg.Logger.Warn("feed watcher error", "error", err)
	})
	return nil
}

// refresh pulls new lines from every feed.
func (c *FeedCapture) refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
}

func (c *FeedCapture) refreshLocked() {
	for _, t := range c.tailers {
		lines, err := t.read()
		if err != nil {
			c.cfg.Logger.Warn("feed read failed", "path", t.path, "error", err)
			continue
		}
		for _, line := range lines {
			rec, err := ParseRecord(line)
			if err != nil {
				c.skipped++
				c.cfg.Logger.Debug("skipping feed line", "path", t.path, "error", err)
				continue
			}
			c.ingestLocked(rec)
		}
	}
}

// Ingest folds records into the session table directly.
func (c *FeedCapture) Ingest(records ...ConnectionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		c.ingestLocked(r)
	}
}

func (c *FeedCapture) ingestLocked(r ConnectionRecord) {
	at := r.Time(c.cfg.Now().UTC())
	key := r.Key()
	if pos, ok := c.index[key]; ok {
		s := &c.sessions[pos]
		s.Connections++
		if at.After(s.LastSeen) {
			s.LastSeen = at
		}
		if !s.HasDomain() && r.Domain != "" && r.Domain != "unknown" {
			s.Domain = r.Domain
		}
		return
	}
	c.index[key] = len(c.sessions)
	c.sessions = append(c.sessions, r.toSession(at))
}

// Skipped returns the number of feed lines that could not be parsed.
func (c *FeedCapture) Skipped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipped
}

// Sessions catches up with the feeds and returns observed sessions.
func (c *FeedCapture) Sessions(incremental bool) []session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()

	if !incremental {
		return session.Clone(c.sessions)
	}
	fresh := session.Clone(c.sessions[c.drained:])
	c.drained = len(c.sessions)
	return fresh
}

// SetCustomWhitelist replaces the built-in whitelist with a custom document.
func (c *FeedCapture) SetCustomWhitelist(doc string) error {
	parsed, err := whitelist.Parse([]byte(doc))
	if err != nil {
		return err
	}
	set, err := whitelist.FromDocument(parsed)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.whitelist = set
	c.mu.Unlock()
	return nil
}

// WhitelistConformance reports whether every observed session is allowed.
func (c *FeedCapture) WhitelistConformance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if !c.whitelist.Matches(s) {
			return false
		}
	}
	return true
}

// WhitelistExceptions returns observed sessions the whitelist does not allow.
func (c *FeedCapture) WhitelistExceptions() []session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []session.Session
	for _, s := range c.sessions {
		if !c.whitelist.Matches(s) {
			out = append(out, s)
		}
	}
	return session.Clone(out)
}

// BlacklistedSessions returns observed sessions matching the blacklist.
func (c *FeedCapture) BlacklistedSessions() []session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []session.Session
	for _, s := range c.sessions {
		if blocked, reason := c.cfg.Blacklist.IsBlocked(s); blocked {
			s.Reason = reason
			out = append(out, s)
		}
	}
	return session.Clone(out)
}

// CreateCustomWhitelist renders a fresh document from observed sessions.
func (c *FeedCapture) CreateCustomWhitelist() (string, error) {
	c.mu.Lock()
	doc := whitelist.Create(c.sessions, c.cfg.Now())
	c.mu.Unlock()
	return doc.JSON()
}

// AugmentCustomWhitelist merges observed sessions into the active custom
// document, or into an empty one when only the built-in list is active.
func (c *FeedCapture) AugmentCustomWhitelist() (string, int, error) {
	c.mu.Lock()
	var base whitelist.Document
	if doc := c.whitelist.Document(); doc != nil {
		base = *doc
	}
	merged, added := whitelist.Augment(base, c.sessions, c.cfg.Now())
	c.mu.Unlock()

	out, err := merged.JSON()
	if err != nil {
		return "", 0, err
	}
	return out, added, nil
}

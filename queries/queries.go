// Package queries supplies search terms for search activities from the
// daily trending searches feed.
package queries

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/rewardrunner/config"
	"github.com/use-agent/rewardrunner/models"
	"golang.org/x/net/html"
)

// maxFeedBytes caps the feed body.
const maxFeedBytes = 2 << 20

// Source fetches trending queries and hands them out in rotation. The feed
// is cached for RefreshInterval. It is safe for concurrent use.
type Source struct {
	cfg    config.QueriesConfig
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	terms   []string
	fetched time.Time
	next    int
}

// New creates a Source that fetches through proxy when set.
func New(cfg config.QueriesConfig, proxy string) (*Source, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 6 * time.Hour
	}
	client, err := newChromeClient(proxy, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Source{cfg: cfg, client: client, now: time.Now}, nil
}

// Query returns the next trending term, falling back to the activity's
// title when the feed is unavailable.
func (s *Source) Query(ctx context.Context, a models.Activity) string {
	terms, err := s.Trending(ctx)
	if err != nil || len(terms) == 0 {
		if err != nil {
			slog.Warn("queries: trending feed unavailable, using activity title",
				"offer_id", a.OfferID, "error", err)
		}
		return strings.TrimSpace(a.Title)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	term := terms[s.next%len(terms)]
	s.next++
	return term
}

// Trending returns the cached terms, refetching when they are stale.
func (s *Source) Trending(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if len(s.terms) > 0 && s.now().Sub(s.fetched) < s.cfg.RefreshInterval {
		terms := s.terms
		s.mu.Unlock()
		return terms, nil
	}
	s.mu.Unlock()

	terms, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.terms = terms
	s.fetched = s.now()
	s.next = 0
	s.mu.Unlock()

	slog.Debug("queries: trending feed refreshed", "terms", len(terms))
	return terms, nil
}

func (s *Source) feedURL() string {
	if s.cfg.Geo == "" {
		return s.cfg.TrendsURL
	}
	sep := "?"
	if strings.Contains(s.cfg.TrendsURL, "?") {
		sep = "&"
	}
	return s.cfg.TrendsURL + sep + "geo=" + url.QueryEscape(s.cfg.Geo)
}

func (s *Source) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("queries: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "application/rss+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("queries: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("queries: HTTP %d for %s", resp.StatusCode, req.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("queries: read body: %w", err)
	}

	terms := itemTitles(string(body))
	if len(terms) == 0 {
		return nil, fmt.Errorf("queries: feed had no items")
	}
	return terms, nil
}

// itemTitles returns the distinct <title> texts of the feed's <item>
// elements, in order. The channel title is skipped.
func itemTitles(feed string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(feed))
	seen := make(map[string]struct{})
	var out []string
	inItem, inTitle := false, false

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken:
			switch tn, _ := tokenizer.TagName(); string(tn) {
			case "item":
				inItem = true
			case "title":
				inTitle = inItem
			}
		case html.EndTagToken:
			switch tn, _ := tokenizer.TagName(); string(tn) {
			case "item":
				inItem = false
			case "title":
				inTitle = false
			}
		case html.TextToken:
			// Titles tokenize as raw text, so CDATA wrappers arrive verbatim.
			if inTitle {
				text := string(tokenizer.Text())
				text = strings.TrimPrefix(strings.TrimSpace(text), "<![CDATA[")
				text = strings.TrimSuffix(text, "]]>")
				add(text)
			}
		}
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeBrowser is an in-memory TabProvider. Tabs are listed in creation order.
type fakeBrowser struct {
	mu      sync.Mutex
	tabs    []*fakeTab
	nextID  int
	present map[string]bool   // selectors that attach on any tab
	opens   map[string]string // selector -> url of the tab a click opens
	newErr  error
	navErr  error // NewTab opens the tab, then fails its navigation
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		present: make(map[string]bool),
		opens:   make(map[string]string),
	}
}

func (b *fakeBrowser) Tabs(ctx context.Context) ([]Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Tab, 0, len(b.tabs))
	for _, t := range b.tabs {
		if !t.Closed() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (b *fakeBrowser) NewTab(ctx context.Context, url string) (Tab, error) {
	if b.newErr != nil {
		return nil, b.newErr
	}
	if b.navErr != nil {
		return b.open("about:blank"), b.navErr
	}
	return b.open(url), nil
}

func (b *fakeBrowser) open(url string) *fakeTab {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	t := &fakeTab{browser: b, id: fmt.Sprintf("tab-%d", b.nextID), url: url}
	b.tabs = append(b.tabs, t)
	return t
}

func (b *fakeBrowser) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.tabs {
		if !t.Closed() {
			n++
		}
	}
	return n
}

type fakeTab struct {
	browser *fakeBrowser

	mu          sync.Mutex
	id          string
	url         string
	closed      bool
	navErr      error
	navigations int
	clicks      []string
}

func (t *fakeTab) ID() string { return t.id }

func (t *fakeTab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *fakeTab) Navigate(ctx context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.navigations++
	if t.navErr != nil {
		return t.navErr
	}
	t.url = url
	return nil
}

func (t *fakeTab) WaitStable(ctx context.Context) error { return nil }

func (t *fakeTab) WaitSelector(ctx context.Context, selector string) error {
	t.browser.mu.Lock()
	ok := t.browser.present[selector]
	t.browser.mu.Unlock()
	if ok {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (t *fakeTab) Has(ctx context.Context, selector string) (bool, error) {
	t.browser.mu.Lock()
	defer t.browser.mu.Unlock()
	return t.browser.present[selector], nil
}

func (t *fakeTab) Click(ctx context.Context, selector string) error {
	t.mu.Lock()
	t.clicks = append(t.clicks, selector)
	t.mu.Unlock()

	t.browser.mu.Lock()
	url, opens := t.browser.opens[selector]
	t.browser.mu.Unlock()
	if opens {
		t.browser.open(url)
	}
	return nil
}

func (t *fakeTab) Type(ctx context.Context, selector, text string) error { return nil }

func (t *fakeTab) Eval(ctx context.Context, js string) (string, error) { return "", nil }

func (t *fakeTab) HTML(ctx context.Context) (string, error) { return "<html></html>", nil }

func (t *fakeTab) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("already closed")
	}
	t.closed = true
	return nil
}

// memJobs is an in-memory JobStore.
type memJobs struct {
	mu   sync.Mutex
	done map[string]bool
}

func newMemJobs() *memJobs { return &memJobs{done: make(map[string]bool)} }

func (m *memJobs) IsDone(ctx context.Context, account, day, offerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[account+"|"+day+"|"+offerID], nil
}

func (m *memJobs) MarkDone(ctx context.Context, account, day, offerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[account+"|"+day+"|"+offerID] = true
	return nil
}

// memQuarantine is an in-memory QuarantineStore shared across runners.
type memQuarantine struct {
	mu       sync.Mutex
	accounts map[string]map[string]QuarantineEntry
}

func newMemQuarantine() *memQuarantine {
	return &memQuarantine{accounts: make(map[string]map[string]QuarantineEntry)}
}

func (m *memQuarantine) LoadQuarantine(ctx context.Context, account string) (map[string]QuarantineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]QuarantineEntry, len(m.accounts[account]))
	for k, e := range m.accounts[account] {
		out[k] = e
	}
	return out, nil
}

func (m *memQuarantine) SaveQuarantine(ctx context.Context, account string, entries map[string]QuarantineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[string]QuarantineEntry, len(entries))
	for k, e := range entries {
		saved[k] = e
	}
	m.accounts[account] = saved
	return nil
}

func (m *memQuarantine) entry(account, key string) (QuarantineEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.accounts[account][key]
	return e, ok
}

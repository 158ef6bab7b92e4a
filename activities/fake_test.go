package activities

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

// scriptTab is a scripted engine.Tab. Selectors in present attach
// immediately; anything else blocks until the wait's deadline.
type scriptTab struct {
	mu         sync.Mutex
	url        string
	present    map[string]bool
	evals      map[string]string
	clicks     []string
	typed      []string
	navigated  []string
	onClick    func(t *scriptTab, selector string)
	onNavigate func(t *scriptTab, url string)
}

func newScriptTab(url string, present ...string) *scriptTab {
	t := &scriptTab{
		url:     url,
		present: make(map[string]bool),
		evals:   make(map[string]string),
	}
	for _, s := range present {
		t.present[s] = true
	}
	return t
}

// show marks selectors present. Callers from hooks already hold t.mu.
func (t *scriptTab) show(selectors ...string) {
	for _, s := range selectors {
		t.present[s] = true
	}
}

func (t *scriptTab) ID() string { return "script" }

func (t *scriptTab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *scriptTab) Navigate(ctx context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.url = url
	t.navigated = append(t.navigated, url)
	if t.onNavigate != nil {
		t.onNavigate(t, url)
	}
	return nil
}

func (t *scriptTab) WaitStable(ctx context.Context) error { return nil }

func (t *scriptTab) WaitSelector(ctx context.Context, selector string) error {
	if ok, _ := t.Has(ctx, selector); ok {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (t *scriptTab) Has(ctx context.Context, selector string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.present[selector], nil
}

func (t *scriptTab) Click(ctx context.Context, selector string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clicks = append(t.clicks, selector)
	if t.onClick != nil {
		t.onClick(t, selector)
	}
	return nil
}

func (t *scriptTab) Type(ctx context.Context, selector, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typed = append(t.typed, text)
	return nil
}

func (t *scriptTab) Eval(ctx context.Context, js string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evals[js], nil
}

func (t *scriptTab) HTML(ctx context.Context) (string, error) { return "", nil }
func (t *scriptTab) Closed() bool                             { return false }
func (t *scriptTab) Close() error                             { return nil }

func (t *scriptTab) clicked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.clicks...)
}

// newTestRegistry returns a registry with no pacing and short element waits.
func newTestRegistry(queries QuerySource) *Registry {
	return NewRegistry(Config{ElementTimeout: 10 * time.Millisecond},
		engine.NewThrottle(engine.ThrottleConfig{}), queries)
}

type staticQueries string

func (s staticQueries) Query(ctx context.Context, _ models.Activity) string { return string(s) }

package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/rewardrunner/models"
	"github.com/ysmood/gson"
)

// infoTimeout bounds the target info lookup behind URL.
const infoTimeout = 2 * time.Second

// extraHeaders are sent with every request from tabs this package opens.
var extraHeaders = map[string]string{
	"Accept-Language": "en-US,en;q=0.9",
}

// tab adapts a rod page to engine.Tab. Every call binds the caller's
// context to the page so deadlines reach the CDP layer.
type tab struct {
	page   *rod.Page
	closed atomic.Bool

	routerMu sync.Mutex
	router   *rod.HijackRouter
}

func newTab(page *rod.Page, router *rod.HijackRouter) *tab {
	return &tab{page: page, router: router}
}

func (t *tab) ID() string { return string(t.page.TargetID) }

func (t *tab) URL() string {
	info, err := t.page.Timeout(infoTimeout).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (t *tab) Navigate(ctx context.Context, url string) error {
	if err := t.page.Context(ctx).Navigate(url); err != nil {
		return categorizeError(err, "navigation to "+url+" failed")
	}
	return nil
}

func (t *tab) WaitStable(ctx context.Context) error {
	return t.page.Context(ctx).WaitDOMStable(300*time.Millisecond, 0.1)
}

func (t *tab) WaitSelector(ctx context.Context, selector string) error {
	return t.page.Context(ctx).WaitElementsMoreThan(selector, 0)
}

func (t *tab) Has(ctx context.Context, selector string) (bool, error) {
	ok, _, err := t.page.Context(ctx).Has(selector)
	return ok, err
}

func (t *tab) Click(ctx context.Context, selector string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return categorizeError(err, "element "+selector+" not found")
	}
	if err := el.ScrollIntoView(); err != nil {
		return categorizeError(err, "failed to scroll to "+selector)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (t *tab) Type(ctx context.Context, selector, text string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return categorizeError(err, "element "+selector+" not found")
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

// Eval runs js and returns its value as a string. Non-string values are
// formatted, so numbers and booleans round trip through strconv.
func (t *tab) Eval(ctx context.Context, js string) (string, error) {
	res, err := t.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	if res.Value.Nil() {
		return "", nil
	}
	return res.Value.String(), nil
}

func (t *tab) HTML(ctx context.Context) (string, error) {
	html, err := t.page.Context(ctx).HTML()
	if err != nil {
		return "", categorizeError(err, "failed to extract page HTML")
	}
	return html, nil
}

func (t *tab) Closed() bool { return t.closed.Load() }

func (t *tab) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.stopRouter()
	return t.page.Close()
}

func (t *tab) markClosed() {
	t.closed.Store(true)
	t.stopRouter()
}

func (t *tab) stopRouter() {
	t.routerMu.Lock()
	defer t.routerMu.Unlock()
	if t.router != nil {
		_ = t.router.Stop()
		t.router = nil
	}
}

func injectStealth(page *rod.Page) error {
	_, err := page.EvalOnNewDocument(stealth.JS)
	return err
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError maps rod errors onto RunErrors so the runner can decide
// whether to retry.
func categorizeError(err error, msg string) error {
	var re *models.RunError
	var notFound *rod.ElementNotFoundError
	switch {
	case errors.As(err, &re):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewRunError(models.ErrCodeTimeout, msg, err)
	case errors.As(err, &notFound):
		return models.NewRunError(models.ErrCodeSelectorNotFound, msg, err)
	default:
		return models.NewRunError(models.ErrCodeNavigation, msg, err)
	}
}

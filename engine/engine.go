package engine

import (
	"context"

	"github.com/use-agent/rewardrunner/models"
)

// Tab is a single browser tab the runner drives. Implementations bind every
// call to the supplied context so timeouts propagate into the driver.
type Tab interface {
	// ID returns a stable identifier for the tab (the CDP target id).
	ID() string

	// URL returns the current location, or "" if it cannot be read.
	URL() string

	Navigate(ctx context.Context, url string) error

	// WaitStable waits until the DOM stops changing.
	WaitStable(ctx context.Context) error

	// WaitSelector blocks until an element matching selector is attached.
	WaitSelector(ctx context.Context, selector string) error

	Has(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Eval(ctx context.Context, js string) (string, error)
	HTML(ctx context.Context) (string, error)

	Closed() bool
	Close() error
}

// TabProvider opens and lists the tabs of one browser context.
type TabProvider interface {
	Tabs(ctx context.Context) ([]Tab, error)
	NewTab(ctx context.Context, url string) (Tab, error)
}

// Handler executes one kind of activity on the tab the activity opened.
type Handler interface {
	Handle(ctx context.Context, tab Tab, a models.Activity) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, tab Tab, a models.Activity) error

func (f HandlerFunc) Handle(ctx context.Context, tab Tab, a models.Activity) error {
	return f(ctx, tab, a)
}

// Handlers maps each activity kind to its handler.
type Handlers map[models.Kind]Handler

// JobStore persists which activities were completed per account and day.
type JobStore interface {
	IsDone(ctx context.Context, account, day, offerID string) (bool, error)
	MarkDone(ctx context.Context, account, day, offerID string) error
}

// QuarantineStore keeps quarantine entries per account between process runs.
type QuarantineStore interface {
	LoadQuarantine(ctx context.Context, account string) (map[string]QuarantineEntry, error)

	// SaveQuarantine replaces the account's saved entries.
	SaveQuarantine(ctx context.Context, account string, entries map[string]QuarantineEntry) error
}

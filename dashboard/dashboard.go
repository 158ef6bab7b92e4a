// Package dashboard reads the rewards dashboard state embedded in the
// dashboard page and flattens it into the ordered activity list the runner
// consumes.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

// stateMarker precedes the dashboard JSON in the page's inline script.
const stateMarker = "var dashboard ="

// dailySetKeyLayout is the key format of DailySetPromotions.
const dailySetKeyLayout = "01/02/2006"

// stateJS reads the dashboard global when the inline script is not found.
const stateJS = `() => window.dashboard ? JSON.stringify(window.dashboard) : ''`

// ErrNoState is returned when the page carries no dashboard state, which
// usually means the session is signed out.
var ErrNoState = errors.New("dashboard: no dashboard state on page")

// Reader loads the dashboard through a tab.
type Reader struct {
	URL     string
	Timeout time.Duration
}

// NewReader creates a Reader for the dashboard at url.
func NewReader(url string, timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reader{URL: url, Timeout: timeout}
}

// Read navigates tab to the dashboard and decodes its state.
func (r *Reader) Read(ctx context.Context, tab engine.Tab) (*models.Dashboard, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if !strings.HasPrefix(tab.URL(), r.URL) {
		if err := tab.Navigate(ctx, r.URL); err != nil {
			return nil, fmt.Errorf("dashboard: open %s: %w", r.URL, err)
		}
	}
	if err := tab.WaitStable(ctx); err != nil {
		slog.Debug("dashboard: DOM did not settle, reading current DOM", "error", err)
	}

	html, err := tab.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: read page: %w", err)
	}

	d, err := Parse(html)
	if errors.Is(err, ErrNoState) {
		raw, evalErr := tab.Eval(ctx, stateJS)
		if evalErr != nil || raw == "" {
			return nil, err
		}
		return decode(raw)
	}
	return d, err
}

// Parse extracts the dashboard state from page HTML.
func Parse(html string) (*models.Dashboard, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("dashboard: parse html: %w", err)
	}

	var raw string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, stateMarker)
		if idx < 0 {
			return true
		}
		raw = text[idx+len(stateMarker):]
		return false
	})
	if raw == "" {
		return nil, ErrNoState
	}
	return decode(raw)
}

// decode reads the first JSON value in raw. Trailing script text after the
// object is ignored.
func decode(raw string) (*models.Dashboard, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	var d models.Dashboard
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("dashboard: decode state: %w", err)
	}
	return &d, nil
}

// Collect returns the activities to attempt on day, in dashboard order:
// that day's daily set, then more promotions, then the children of
// unfinished punch cards.
func Collect(d *models.Dashboard, day time.Time) []models.Activity {
	if d == nil {
		return nil
	}
	var out []models.Activity
	out = append(out, d.DailySetPromotions[day.Format(dailySetKeyLayout)]...)
	out = append(out, d.MorePromotions...)
	for _, pc := range d.PunchCards {
		if pc.ParentPromotion == nil || pc.ParentPromotion.Complete {
			continue
		}
		out = append(out, pc.ChildPromotions...)
	}
	return out
}

package activities

import (
	"context"
	"log/slog"
	"strings"

	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

const (
	searchBox    = "#sb_form_q"
	searchButton = "#search_icon"
)

// submitSearchJS submits the search form directly, returning "ok" when a form
// was found.
const submitSearchJS = `() => {
	const form = document.querySelector('#sb_form');
	if (!form) return '';
	form.submit();
	return 'ok';
}`

// urlReward earns its points by visiting the page; the handler only has to
// keep it open for a while.
func (r *Registry) urlReward(ctx context.Context, tab engine.Tab, a models.Activity) error {
	r.settle(ctx, tab)
	return r.dwell(ctx)
}

// searchOnBing runs the search the activity asks for.
func (r *Registry) searchOnBing(ctx context.Context, tab engine.Tab, a models.Activity) error {
	query := r.query(ctx, a)
	if query == "" {
		return models.NewRunError(models.ErrCodeInvalidInput,
			"no search query for activity "+a.Key(), nil)
	}

	ok, err := r.waitFor(ctx, tab, searchBox)
	if err != nil {
		return err
	}
	if !ok {
		slog.Debug("activities: search box missing, opening search page", "url", tab.URL())
		if err := tab.Navigate(ctx, r.cfg.SearchURL); err != nil {
			return models.NewRunError(models.ErrCodeNavigation, "failed to open search page", err)
		}
		if ok, err = r.waitFor(ctx, tab, searchBox); err != nil {
			return err
		} else if !ok {
			return notFound(searchBox)
		}
	}

	if err := r.click(ctx, tab, searchBox); err != nil {
		return err
	}
	if err := r.pause(ctx); err != nil {
		return err
	}
	if err := tab.Type(ctx, searchBox, query); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return models.NewRunError(models.ErrCodeHandler, "failed to type search query", err)
	}
	if err := r.pause(ctx); err != nil {
		return err
	}

	if r.evalString(ctx, tab, submitSearchJS) != "ok" {
		if err := r.click(ctx, tab, searchButton); err != nil {
			return err
		}
	}
	r.settle(ctx, tab)

	slog.Debug("activities: search submitted", "offer_id", a.OfferID, "query", query)
	return r.dwell(ctx)
}

// query picks the search terms: the activity's own query first, then the
// configured source, then the title.
func (r *Registry) query(ctx context.Context, a models.Activity) string {
	if q := a.SearchQuery(); q != "" && q != a.Title {
		return q
	}
	if r.queries != nil {
		if q := strings.TrimSpace(r.queries.Query(ctx, a)); q != "" {
			return q
		}
	}
	return strings.TrimSpace(a.Title)
}

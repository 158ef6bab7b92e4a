package activities

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

// pause waits for a throttled delay from the action window.
func (r *Registry) pause(ctx context.Context) error {
	return r.throttle.WaitRange(ctx, r.cfg.ActionDelayMin, r.cfg.ActionDelayMax)
}

// dwell keeps the current page open for a throttled dwell time.
func (r *Registry) dwell(ctx context.Context) error {
	return r.throttle.WaitRange(ctx, r.cfg.DwellMin, r.cfg.DwellMax)
}

// waitFor waits up to ElementTimeout for selector. It reports false when the
// element never attached; the error is non-nil only when ctx itself ended.
func (r *Registry) waitFor(ctx context.Context, tab engine.Tab, selector string) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ElementTimeout)
	defer cancel()

	if err := tab.WaitSelector(waitCtx, selector); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		slog.Debug("activities: element did not attach", "selector", selector, "error", err)
		return false, nil
	}
	return true, nil
}

// click pauses, then clicks selector with a bounded deadline.
func (r *Registry) click(ctx context.Context, tab engine.Tab, selector string) error {
	if err := r.pause(ctx); err != nil {
		return err
	}
	clickCtx, cancel := context.WithTimeout(ctx, r.cfg.ElementTimeout)
	defer cancel()

	if err := tab.Click(clickCtx, selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return models.NewRunError(models.ErrCodeHandler,
			fmt.Sprintf("click on %q failed", selector), err)
	}
	return nil
}

// settle waits for the DOM to stop changing, bounded by ElementTimeout.
// A page that never settles is used as is.
func (r *Registry) settle(ctx context.Context, tab engine.Tab) {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ElementTimeout)
	defer cancel()
	if err := tab.WaitStable(waitCtx); err != nil {
		slog.Debug("activities: DOM did not settle, proceeding", "error", err)
	}
}

// evalString evaluates js and returns its result, or "" on failure.
func (r *Registry) evalString(ctx context.Context, tab engine.Tab, js string) string {
	evalCtx, cancel := context.WithTimeout(ctx, r.cfg.ElementTimeout)
	defer cancel()
	out, err := tab.Eval(evalCtx, js)
	if err != nil {
		slog.Debug("activities: eval failed", "error", err)
		return ""
	}
	return strings.TrimSpace(out)
}

// evalInt evaluates js and parses an integer result, returning def when the
// script fails or yields something else.
func (r *Registry) evalInt(ctx context.Context, tab engine.Tab, js string, def int) int {
	n, err := strconv.Atoi(r.evalString(ctx, tab, js))
	if err != nil {
		return def
	}
	return n
}

// has reports whether selector currently matches, treating errors as absent.
func has(ctx context.Context, tab engine.Tab, selector string) bool {
	ok, err := tab.Has(ctx, selector)
	return err == nil && ok
}

func notFound(selector string) error {
	return models.NewRunError(models.ErrCodeSelectorNotFound,
		fmt.Sprintf("element %q did not appear", selector), nil)
}

package activities

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

const (
	pollOption     = "#btoption%d"
	abcOption      = "#questionOptionChoice%d%d"
	abcNext        = "#nextQuestionbtn%d"
	abcOptionCount = 3
)

// abcQuestionCountJS reads the "n of m" counter above the first question.
const abcQuestionCountJS = `() => {
	const el = document.querySelector('#QuestionPane0 .wk_paddingBtm, #QuestionPane0 > div:nth-child(2)');
	if (!el) return '';
	const nums = (el.textContent.match(/\d+/g) || []).map(Number);
	return nums.length ? String(Math.max(...nums)) : '';
}`

// poll answers a two-option poll. Any answer earns the points.
func (r *Registry) poll(ctx context.Context, tab engine.Tab, a models.Activity) error {
	first := fmt.Sprintf(pollOption, 0)
	ok, err := r.waitFor(ctx, tab, first)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(first)
	}

	choice := fmt.Sprintf(pollOption, rand.IntN(2))
	if err := r.click(ctx, tab, choice); err != nil {
		return err
	}
	r.settle(ctx, tab)
	return r.pause(ctx)
}

// abc walks a multiple-choice question set, answering each question and
// moving to the next. The answers are not graded.
func (r *Registry) abc(ctx context.Context, tab engine.Tab, a models.Activity) error {
	first := fmt.Sprintf(abcOption, 0, 0)
	ok, err := r.waitFor(ctx, tab, first)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(first)
	}

	questions := r.evalInt(ctx, tab, abcQuestionCountJS, r.cfg.MaxQuestions)
	if questions < 1 || questions > r.cfg.MaxQuestions {
		questions = r.cfg.MaxQuestions
	}

	for q := 0; q < questions; q++ {
		option := fmt.Sprintf(abcOption, q, rand.IntN(abcOptionCount))
		if !has(ctx, tab, option) {
			if q == 0 {
				return notFound(option)
			}
			slog.Debug("activities: no more abc questions", "answered", q)
			break
		}
		if err := r.click(ctx, tab, option); err != nil {
			return err
		}
		next := fmt.Sprintf(abcNext, q)
		if ok, err := r.waitFor(ctx, tab, next); err != nil {
			return err
		} else if ok {
			if err := r.click(ctx, tab, next); err != nil {
				return err
			}
		}
		r.settle(ctx, tab)
	}
	return r.pause(ctx)
}

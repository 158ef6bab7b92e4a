package activities

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

const (
	quizStart     = "#rqStartQuiz"
	quizQuestion  = "#currentQuestionContainer"
	quizComplete  = "#quizCompleteContainer"
	quizOption    = "#rqAnswerOption%d"
	thisOrThatLen = 10
)

// quizStateJS reports the quiz render info as "max|options|current|done".
const quizStateJS = `() => {
	const info = (window._w && window._w.rewardsQuizRenderInfo) || null;
	if (!info) return '';
	return [info.maxQuestions || 0, info.numberOfOptions || 0,
		info.currentQuestionNumber || 0, info.isCompleted ? 1 : 0].join('|');
}`

// correctOptionsJS lists the ids of options marked correct that have not
// been chosen yet. Used by multi-select quizzes.
const correctOptionsJS = `() => Array.from(document.querySelectorAll('[id^="rqAnswerOption"]'))
	.filter(el => el.getAttribute('iscorrectoption') === 'True' && !el.classList.contains('optionDisable'))
	.map(el => el.id).join(',')`

// matchingOptionJS returns the index of the option whose data-option equals
// the quiz's current answer, or -1.
const matchingOptionJS = `() => {
	const info = (window._w && window._w.rewardsQuizRenderInfo) || {};
	const opts = Array.from(document.querySelectorAll('[id^="rqAnswerOption"]'));
	return String(opts.findIndex(el => el.getAttribute('data-option') === String(info.correctAnswer)));
}`

type quizState struct {
	maxQuestions int
	options      int
	current      int
	done         bool
}

func parseQuizState(s string) (quizState, bool) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return quizState{}, false
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return quizState{}, false
		}
		n[i] = v
	}
	return quizState{maxQuestions: n[0], options: n[1], current: n[2], done: n[3] == 1}, true
}

// quiz answers a multi-question quiz until the completion marker shows or
// the question budget runs out.
func (r *Registry) quiz(ctx context.Context, tab engine.Tab, a models.Activity) error {
	started, err := r.startQuiz(ctx, tab)
	if err != nil || !started {
		return err
	}

	budget := r.cfg.MaxQuestions
	if st, ok := parseQuizState(r.evalString(ctx, tab, quizStateJS)); ok && st.maxQuestions > 0 {
		budget = st.maxQuestions
	}

	for q := 0; q < budget; q++ {
		st, _ := parseQuizState(r.evalString(ctx, tab, quizStateJS))
		if st.done || has(ctx, tab, quizComplete) {
			return nil
		}

		if st.options == 8 {
			if err := r.answerAll(ctx, tab); err != nil {
				return err
			}
		} else if err := r.answerOne(ctx, tab, st.options); err != nil {
			return err
		}
		r.settle(ctx, tab)
	}

	if !has(ctx, tab, quizComplete) {
		slog.Debug("activities: quiz budget used without completion marker", "offer_id", a.OfferID)
	}
	return nil
}

// thisOrThat answers the fixed set of rounds of a two-option quiz.
func (r *Registry) thisOrThat(ctx context.Context, tab engine.Tab, a models.Activity) error {
	started, err := r.startQuiz(ctx, tab)
	if err != nil || !started {
		return err
	}

	for round := 0; round < thisOrThatLen; round++ {
		if has(ctx, tab, quizComplete) {
			return nil
		}
		if err := r.answerOne(ctx, tab, 2); err != nil {
			return err
		}
		r.settle(ctx, tab)
	}
	return nil
}

// startQuiz clicks the start button when present and waits for the first
// question. It reports false with a nil error when the quiz is already over.
func (r *Registry) startQuiz(ctx context.Context, tab engine.Tab) (bool, error) {
	if ok, err := r.waitFor(ctx, tab, quizStart); err != nil {
		return false, err
	} else if ok {
		if err := r.click(ctx, tab, quizStart); err != nil {
			return false, err
		}
	}

	ok, err := r.waitFor(ctx, tab, quizQuestion)
	if err != nil {
		return false, err
	}
	if !ok {
		if has(ctx, tab, quizComplete) {
			return false, nil
		}
		return false, notFound(quizQuestion)
	}
	return true, nil
}

// answerAll clicks every option marked correct.
func (r *Registry) answerAll(ctx context.Context, tab engine.Tab) error {
	ids := r.evalString(ctx, tab, correctOptionsJS)
	if ids == "" {
		return r.answerOne(ctx, tab, 8)
	}
	for _, id := range strings.Split(ids, ",") {
		if err := r.click(ctx, tab, "#"+id); err != nil {
			return err
		}
		r.settle(ctx, tab)
	}
	return nil
}

// answerOne clicks the option matching the current answer, falling back to a
// random option among the first n.
func (r *Registry) answerOne(ctx context.Context, tab engine.Tab, n int) error {
	idx := r.evalInt(ctx, tab, matchingOptionJS, -1)
	if idx < 0 {
		if n < 1 {
			n = 4
		}
		idx = rand.IntN(n)
	}

	option := fmt.Sprintf(quizOption, idx)
	if ok, err := r.waitFor(ctx, tab, option); err != nil {
		return err
	} else if !ok {
		return notFound(option)
	}
	return r.click(ctx, tab, option)
}

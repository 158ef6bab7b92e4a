package activities

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/rewardrunner/models"
)

func TestRegistry_CoversSupportedKinds(t *testing.T) {
	handlers := newTestRegistry(nil).Handlers()
	for _, k := range []models.Kind{
		models.KindURLReward, models.KindSearchOnBing, models.KindPoll,
		models.KindABC, models.KindThisOrThat, models.KindQuiz,
	} {
		assert.Contains(t, handlers, k)
	}
	assert.NotContains(t, handlers, models.KindUnsupported)
}

func TestURLReward(t *testing.T) {
	tab := newScriptTab("https://www.example.com/offer")
	err := newTestRegistry(nil).urlReward(context.Background(), tab, models.Activity{OfferID: "o"})
	require.NoError(t, err)
	assert.Empty(t, tab.clicked())
}

func TestSearchOnBing_UsesQueryFromDestination(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/search?q=weather", searchBox)
	tab.evals[submitSearchJS] = "ok"

	a := models.Activity{
		OfferID:        "explore",
		Title:          "Check the weather",
		DestinationURL: "https://www.bing.com/search?q=weather+today",
	}
	require.NoError(t, newTestRegistry(staticQueries("trending")).searchOnBing(context.Background(), tab, a))

	assert.Equal(t, []string{"weather today"}, tab.typed)
	assert.Equal(t, []string{searchBox}, tab.clicked(), "form submitted without the button")
}

func TestSearchOnBing_FallsBackToQuerySourceAndButton(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/", searchBox, searchButton)

	a := models.Activity{OfferID: "explore", Title: "Explore"}
	require.NoError(t, newTestRegistry(staticQueries("  harvest moon  ")).searchOnBing(context.Background(), tab, a))

	assert.Equal(t, []string{"harvest moon"}, tab.typed)
	assert.Equal(t, []string{searchBox, searchButton}, tab.clicked())
}

func TestSearchOnBing_OpensSearchPageWhenBoxMissing(t *testing.T) {
	tab := newScriptTab("https://www.example.com/landing", searchButton)
	tab.onNavigate = func(t *scriptTab, url string) { t.show(searchBox) }

	a := models.Activity{OfferID: "explore", Title: "Moon phases"}
	require.NoError(t, newTestRegistry(nil).searchOnBing(context.Background(), tab, a))

	assert.Equal(t, []string{DefaultConfig().SearchURL}, tab.navigated)
	assert.Equal(t, []string{"Moon phases"}, tab.typed)
}

func TestSearchOnBing_NoQuery(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/", searchBox)
	err := newTestRegistry(nil).searchOnBing(context.Background(), tab, models.Activity{OfferID: "x"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
}

func TestPoll(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/search?q=poll", "#btoption0", "#btoption1")
	require.NoError(t, newTestRegistry(nil).poll(context.Background(), tab, models.Activity{}))

	clicks := tab.clicked()
	require.Len(t, clicks, 1)
	assert.Contains(t, []string{"#btoption0", "#btoption1"}, clicks[0])
}

func TestPoll_MissingOptions(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/")
	err := newTestRegistry(nil).poll(context.Background(), tab, models.Activity{})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeSelectorNotFound, models.CodeOf(err))
	assert.True(t, models.IsTransient(err))
}

func TestABC_AnswersEveryQuestion(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/search?q=abc")
	for q := 0; q < 3; q++ {
		for o := 0; o < abcOptionCount; o++ {
			tab.show(fmt.Sprintf(abcOption, q, o))
		}
		tab.show(fmt.Sprintf(abcNext, q))
	}
	tab.evals[abcQuestionCountJS] = "3"

	require.NoError(t, newTestRegistry(nil).abc(context.Background(), tab, models.Activity{}))

	clicks := tab.clicked()
	require.Len(t, clicks, 6)
	for q := 0; q < 3; q++ {
		assert.Regexp(t, fmt.Sprintf(`^#questionOptionChoice%d[0-2]$`, q), clicks[2*q])
		assert.Equal(t, fmt.Sprintf(abcNext, q), clicks[2*q+1])
	}
}

func TestABC_StopsWhenQuestionsRunOut(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/search?q=abc")
	for o := 0; o < abcOptionCount; o++ {
		tab.show(fmt.Sprintf(abcOption, 0, o))
	}
	// No counter: the handler falls back to MaxQuestions and stops at the
	// first missing question.
	require.NoError(t, newTestRegistry(nil).abc(context.Background(), tab, models.Activity{}))
	assert.Len(t, tab.clicked(), 1)
}

func TestQuiz_AnswersUntilComplete(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/search?q=quiz", quizStart)
	tab.evals[quizStateJS] = "5|4|1|0"
	tab.evals[matchingOptionJS] = "2"
	answers := 0
	tab.onClick = func(t *scriptTab, sel string) {
		switch sel {
		case quizStart:
			t.show(quizQuestion, "#rqAnswerOption0", "#rqAnswerOption1", "#rqAnswerOption2", "#rqAnswerOption3")
		case "#rqAnswerOption2":
			answers++
			if answers == 2 {
				t.show(quizComplete)
			}
		}
	}

	require.NoError(t, newTestRegistry(nil).quiz(context.Background(), tab, models.Activity{}))
	assert.Equal(t, []string{quizStart, "#rqAnswerOption2", "#rqAnswerOption2"}, tab.clicked())
}

func TestQuiz_MultiSelectClicksEveryCorrectOption(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/search?q=quiz", quizQuestion)
	tab.evals[quizStateJS] = "1|8|1|0"
	tab.evals[correctOptionsJS] = "rqAnswerOption1,rqAnswerOption5"

	require.NoError(t, newTestRegistry(nil).quiz(context.Background(), tab, models.Activity{}))
	assert.Equal(t, []string{"#rqAnswerOption1", "#rqAnswerOption5"}, tab.clicked())
}

func TestQuiz_AlreadyComplete(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/search?q=quiz", quizComplete)
	require.NoError(t, newTestRegistry(nil).quiz(context.Background(), tab, models.Activity{}))
	assert.Empty(t, tab.clicked())
}

func TestQuiz_QuestionNeverAppears(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/search?q=quiz")
	err := newTestRegistry(nil).quiz(context.Background(), tab, models.Activity{})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeSelectorNotFound, models.CodeOf(err))
}

func TestThisOrThat_AnswersEveryRound(t *testing.T) {
	tab := newScriptTab("https://www.bing.com/search?q=tot", quizQuestion, "#rqAnswerOption0", "#rqAnswerOption1")
	tab.evals[matchingOptionJS] = "-1"

	require.NoError(t, newTestRegistry(nil).thisOrThat(context.Background(), tab, models.Activity{}))

	clicks := tab.clicked()
	require.Len(t, clicks, thisOrThatLen)
	for _, c := range clicks {
		assert.Contains(t, []string{"#rqAnswerOption0", "#rqAnswerOption1"}, c)
	}
}

func TestHandlers_StopOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tab := newScriptTab("https://www.bing.com/")
	err := newTestRegistry(nil).poll(ctx, tab, models.Activity{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseQuizState(t *testing.T) {
	st, ok := parseQuizState("10|8|3|1")
	require.True(t, ok)
	assert.Equal(t, quizState{maxQuestions: 10, options: 8, current: 3, done: true}, st)

	_, ok = parseQuizState("")
	assert.False(t, ok)
	_, ok = parseQuizState("a|b|c|d")
	assert.False(t, ok)
}

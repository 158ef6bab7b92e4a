package models

import (
	"net/url"
	"strings"
)

// Kind classifies an activity so the runner can pick a handler for it.
type Kind string

const (
	KindQuiz         Kind = "quiz"
	KindPoll         Kind = "poll"
	KindThisOrThat   Kind = "this_or_that"
	KindABC          Kind = "abc"
	KindURLReward    Kind = "url_reward"
	KindSearchOnBing Kind = "search_on_bing"
	KindUnsupported  Kind = "unsupported"
)

// Activity is a single promotional item read from the dashboard.
//
// Activities are re-read on every dashboard fetch; completion is tracked
// separately in the job-state store.
type Activity struct {
	OfferID          string            `json:"offerId"`
	Name             string            `json:"name"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	DestinationURL   string            `json:"destinationUrl"`
	PromotionType    string            `json:"promotionType"`
	Complete         bool              `json:"complete"`
	PointProgress    int               `json:"pointProgress"`
	PointProgressMax int               `json:"pointProgressMax"`
	LockedStatus     string            `json:"exclusiveLockedFeatureStatus,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
}

// Kind derives the handler classification for the activity.
func (a Activity) Kind() Kind {
	switch strings.ToLower(a.PromotionType) {
	case "quiz":
		switch a.PointProgressMax {
		case 10:
			if strings.Contains(a.DestinationURL, "PollScenarioId") {
				return KindPoll
			}
			return KindABC
		case 50:
			return KindThisOrThat
		default:
			return KindQuiz
		}
	case "urlreward":
		if strings.Contains(strings.ToLower(a.Name), "exploreonbing") {
			return KindSearchOnBing
		}
		return KindURLReward
	default:
		return KindUnsupported
	}
}

// Pending reports whether the activity still has points to earn.
func (a Activity) Pending() bool {
	return !a.Complete && a.PointProgressMax > 0 && a.LockedStatus != "locked"
}

// Key returns the identifier used for job state and quarantine bookkeeping.
// Activities without an offer id fall back to their name.
func (a Activity) Key() string {
	if a.OfferID != "" {
		return a.OfferID
	}
	return a.Name
}

// SearchQuery extracts the query an explore-on-bing activity expects, reading
// the destination URL's q parameter before falling back to the title.
func (a Activity) SearchQuery() string {
	if u, err := url.Parse(a.DestinationURL); err == nil {
		if q := strings.TrimSpace(u.Query().Get("q")); q != "" {
			return q
		}
	}
	return strings.TrimSpace(a.Title)
}

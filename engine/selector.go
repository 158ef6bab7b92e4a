package engine

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/rewardrunner/models"
)

// pointLinkSuffix narrows a card match to its clickable point link, ignoring
// nested content containers that repeat the same link.
const pointLinkSuffix = ` .pointLink:not(.contentContainer .pointLink)`

// nameFirstActivities are promotions whose offer id does not appear in the
// card markup; they are located by name.
var nameFirstActivities = []string{"membercenter", "exploreonbing"}

// Selectors returns the CSS selectors that may locate the activity's card,
// most specific first. The offer id pattern is preferred; the name pattern
// is tried first when the offer id is absent or the activity is one of the
// name-addressed promotions, and as a fallback otherwise.
func Selectors(a models.Activity) ([]string, error) {
	var byID, byName string
	if a.OfferID != "" {
		byID = cardSelector(a.OfferID)
	}
	if a.Name != "" {
		byName = cardSelector(a.Name)
	}

	var candidates []string
	if byID == "" || nameFirst(a.Name) {
		candidates = []string{byName, byID}
	} else {
		candidates = []string{byID, byName}
	}

	out := make([]string, 0, len(candidates))
	for _, sel := range candidates {
		if sel == "" {
			continue
		}
		if _, err := cascadia.Parse(sel); err != nil {
			continue
		}
		out = append(out, sel)
	}
	if len(out) == 0 {
		return nil, models.NewRunError(models.ErrCodeSelectorNotFound,
			fmt.Sprintf("no usable selector for activity %q", a.Key()), nil)
	}
	return out, nil
}

func cardSelector(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(prefix)
	return `[data-bi-id^="` + escaped + `"]` + pointLinkSuffix
}

func nameFirst(name string) bool {
	lower := strings.ToLower(name)
	for _, n := range nameFirstActivities {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to rod resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// trackerHosts are ad and tracking hosts that rewards and search pages pull
// in and that no activity depends on.
var trackerHosts = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"facebook.net":          {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"clarity.ms":            {},
	"demdex.net":            {},
	"omtrdc.net":            {},
	"adsymptotic.com":       {},
}

// isTrackerHost reports whether host or one of its parent domains is listed.
func isTrackerHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for host != "" {
		if _, ok := trackerHosts[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
	}
	return false
}

// blockedTypes builds the lookup set for the configured resource types.
// Unknown names are ignored. Scripts and documents are never blocked since
// the dashboard and quizzes need them.
func blockedTypes(names []string) map[proto.NetworkResourceType]struct{} {
	out := make(map[proto.NetworkResourceType]struct{}, len(names))
	for _, name := range names {
		if rt, ok := resourceTypes[name]; ok {
			out[rt] = struct{}{}
		}
	}
	return out
}

// shouldBlock decides one request.
func shouldBlock(blocked map[proto.NetworkResourceType]struct{}, blockAds bool, rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := blocked[rt]; ok {
		return true
	}
	if blockAds {
		if u, err := url.Parse(rawURL); err == nil && isTrackerHost(u.Hostname()) {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor on page that fails blocked
// requests. It returns nil when there is nothing to block; otherwise the
// caller stops the returned router when the tab closes.
func setupHijack(page *rod.Page, types []string, blockAds bool) *rod.HijackRouter {
	blocked := blockedTypes(types)
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(blocked, blockAds, h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()
	return router
}

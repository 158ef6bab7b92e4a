package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
)

func TestIsTrackerHost(t *testing.T) {
	cases := map[string]bool{
		"doubleclick.net":          true,
		"stats.g.doubleclick.net":  true,
		"WWW.GOOGLE-ANALYTICS.COM": true,
		"c.clarity.ms.":            true,
		"rewards.bing.com":         false,
		"www.bing.com":             false,
		"notdoubleclick.net":       false,
		"":                         false,
	}
	for host, want := range cases {
		assert.Equal(t, want, isTrackerHost(host), host)
	}
}

func TestShouldBlock(t *testing.T) {
	blocked := blockedTypes([]string{"Font", "Media", "Script", "Bogus"})
	assert.Len(t, blocked, 2, "scripts and unknown names are not blockable")

	assert.True(t, shouldBlock(blocked, false, proto.NetworkResourceTypeFont, "https://www.bing.com/f.woff2"))
	assert.False(t, shouldBlock(blocked, false, proto.NetworkResourceTypeScript, "https://www.bing.com/app.js"))
	assert.True(t, shouldBlock(blocked, true, proto.NetworkResourceTypeScript, "https://www.googletagmanager.com/gtm.js"))
	assert.False(t, shouldBlock(blocked, false, proto.NetworkResourceTypeScript, "https://www.googletagmanager.com/gtm.js"))
	assert.False(t, shouldBlock(nil, true, proto.NetworkResourceTypeDocument, "https://rewards.bing.com/"))
}

func TestToHeadersMap(t *testing.T) {
	h := toHeadersMap(map[string]string{"Accept-Language": "en-US"})
	assert.Equal(t, "en-US", h["Accept-Language"].Str())
}

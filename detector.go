package cfbypass

import (
	"regexp"
	"strings"

	http "github.com/bogdanfinn/fhttp"
)

// ClearanceCookieName is the cookie that proves a challenge was solved.
// Every strategy checks for it before reporting success.
const ClearanceCookieName = "cf_clearance"

// challengeStatusCodes are the only status codes a challenge interstitial
// is ever served on. Anything else is passed through untouched.
var challengeStatusCodes = map[int]bool{
	403: true,
	503: true,
}

// challengeMarkers are body substrings emitted by the challenge page's
// bootstrap script. Any one of them identifies the interstitial.
var challengeMarkers = []string{
	"window._cf_chl_opt",
	"_cf_chl_f_tk",
	"cf-browser-verification",
	"challenges.cloudflare.com",
	"jschl_vc",
	"cf_chl_jschl_tk",
}

// challengeTitleRe matches the interstitial's "please wait" style titles.
var challengeTitleRe = regexp.MustCompile(`(?i)<title>[^<]*(just a moment|please wait|attention required|checking your browser)[^<]*</title>`)

// IsChallenge reports whether a response is an anti-bot challenge
// interstitial rather than a real error from the origin.
//
// It is a pure function with no side effects and is cheap enough to run on
// every non-2xx response: the status gate rejects most responses before any
// body scan happens.
func IsChallenge(statusCode int, header http.Header, body string) bool {
	if !challengeStatusCodes[statusCode] {
		return false
	}

	// Modern challenge responses announce themselves in a header.
	if strings.EqualFold(header.Get("cf-mitigated"), "challenge") {
		return true
	}

	for _, marker := range challengeMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}

	return challengeTitleRe.MatchString(body)
}

// containsClearanceMarker reports whether a Cookie-header style string
// carries the clearance cookie.
func containsClearanceMarker(cookieString string) bool {
	return strings.Contains(cookieString, ClearanceCookieName+"=")
}

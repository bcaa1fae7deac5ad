package extract

import "github.com/andybalholm/cascadia"

// X/Twitter DOM selectors. The site changes its markup often; everything
// that depends on it lives in this file.

// PostSelectors are tried in order; the first one with any match is used
// alone for a scan pass.
var PostSelectors = []string{
	`article[data-testid="tweet"]`,
	`div[data-testid="cellInnerDiv"]`,
	`div[data-testid="tweet"]`,
	`div[role="article"]`,
}

var postMatchers = compileAll(PostSelectors)

var (
	// Heuristic fallback seeds: text with a lang attribute, timestamps and
	// inline post-text markers.
	seedMatcher = cascadia.MustCompile(`div[lang], time, [data-testid="tweetText"]`)

	timeMatcher = cascadia.MustCompile(`time`)
	divMatcher  = cascadia.MustCompile(`div`)
	spanMatcher = cascadia.MustCompile(`span`)
	svgMatcher  = cascadia.MustCompile(`svg`)

	postTextMatcher      = cascadia.MustCompile(`[data-testid="tweetText"]`)
	langTextMatcher      = cascadia.MustCompile(`div[lang]`)
	socialContextMatcher = cascadia.MustCompile(`[data-testid="socialContext"]`)
	permalinkMatcher     = cascadia.MustCompile(`a[href*="/status/"]`)

	likeMatcher       = cascadia.MustCompile(`[data-testid="like"], [data-testid="unlike"]`)
	replyMatcher      = cascadia.MustCompile(`[data-testid="reply"]`)
	retweetMatcher    = cascadia.MustCompile(`[data-testid="retweet"], [data-testid="unretweet"]`)
	countSpanMatcher  = cascadia.MustCompile(`span[data-testid="app-text-transition-container"]`)
	labelledButtonSel = cascadia.MustCompile(`[role="button"][aria-label]`)

	userNameMatcher   = cascadia.MustCompile(`[data-testid="UserName"]`)
	headingMatcher    = cascadia.MustCompile(`h2`)
	bioMatcher        = cascadia.MustCompile(`[data-testid="UserDescription"]`)
	bioAltMatcher     = cascadia.MustCompile(`[data-testid="userBio"]`)
	locationMatcher   = cascadia.MustCompile(`[data-testid="UserLocation"]`)
	headerItemMatcher = cascadia.MustCompile(`[data-testid="UserProfileHeader_Items"] span:nth-child(1)`)
	tabMatcher        = cascadia.MustCompile(`[role="tab"]`)

	followersLinkMatcher = cascadia.MustCompile(`a[href$="/followers"]`)
	followersAnyMatcher  = cascadia.MustCompile(`[href*="/followers"]`)
	followingLinkMatcher = cascadia.MustCompile(`a[href$="/following"]`)
	followingAnyMatcher  = cascadia.MustCompile(`[href*="/following"]`)
)

func compileAll(selectors []string) []cascadia.Selector {
	out := make([]cascadia.Selector, len(selectors))
	for i, s := range selectors {
		out[i] = cascadia.MustCompile(s)
	}
	return out
}

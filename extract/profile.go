package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/botwatch/models"
)

var (
	handlePattern    = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)
	headerCountRegex = regexp.MustCompile(`(?i)([\d.,]+\s*[KMB]?)\s+(posts|tweets)`)
	firstNumberRegex = regexp.MustCompile(`(?i)[\d.,]*\d[KMB]?`)
)

// Top-level routes that look like handles but are not profiles.
var reservedRoutes = map[string]bool{
	"home":          true,
	"explore":       true,
	"notifications": true,
	"messages":      true,
	"search":        true,
	"settings":      true,
	"i":             true,
	"compose":       true,
	"login":         true,
	"logout":        true,
	"signup":        true,
	"tos":           true,
	"privacy":       true,
	"jobs":          true,
	"lists":         true,
	"bookmarks":     true,
	"communities":   true,
	"hashtag":       true,
}

var profileHosts = map[string]bool{
	"twitter.com": true,
	"x.com":       true,
}

// IsProfileURL reports whether raw is the root of a profile page, e.g.
// https://x.com/jack. Status pages, sub-tabs and site routes are rejected.
func IsProfileURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if !profileHosts[normalizeHost(u.Hostname())] {
		return false
	}

	path := strings.Trim(u.Path, "/")
	if path == "" || strings.Contains(path, "/") {
		return false
	}
	return isHandle(path)
}

// HandleFromURL returns the account handle in the first path segment of a
// profile URL, or "" when the URL does not name an account.
func HandleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !profileHosts[normalizeHost(u.Hostname())] {
		return ""
	}
	segment, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !isHandle(segment) {
		return ""
	}
	return segment
}

// ProfileURL builds the canonical profile URL for handle under baseURL.
func ProfileURL(baseURL, handle string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimPrefix(handle, "@")
}

func normalizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return strings.TrimPrefix(host, "mobile.")
}

func isHandle(s string) bool {
	return handlePattern.MatchString(s) && !reservedRoutes[strings.ToLower(s)]
}

// ExtractProfile reads the identity and aggregate counts of the profile
// shown in doc. Posts are left empty. Every attribute degrades to its zero
// value when no strategy finds it; the handle is "" when pageURL does not
// name an account.
func ExtractProfile(doc *goquery.Document, pageURL string) models.ProfileRecord {
	root := doc.Selection
	return models.ProfileRecord{
		Handle:         HandleFromURL(pageURL),
		DisplayName:    FirstOf(root, displayNameStrategies...),
		Bio:            FirstOf(root, bioStrategies...),
		Location:       FirstOf(root, locationStrategies...),
		FollowersCount: FirstOf(root, followersStrategies...),
		FollowingCount: FirstOf(root, followingStrategies...),
		PostCount:      FirstOf(root, postCountStrategies...),
		Posts:          []models.PostRecord{},
	}
}

var displayNameStrategies = []Strategy[string]{
	StrategyFunc[string](func(root *goquery.Selection) (string, bool) {
		return firstWithoutBadge(root.FindMatcher(userNameMatcher).FindMatcher(spanMatcher))
	}),
	StrategyFunc[string](func(root *goquery.Selection) (string, bool) {
		return firstWithoutBadge(root.FindMatcher(headingMatcher))
	}),
}

var bioStrategies = []Strategy[string]{
	matchText(bioMatcher),
	matchText(bioAltMatcher),
}

var locationStrategies = []Strategy[string]{
	matchText(locationMatcher),
	matchText(headerItemMatcher),
}

var followersStrategies = []Strategy[int]{
	linkCount(followersLinkMatcher),
	linkCount(followersAnyMatcher),
}

var followingStrategies = []Strategy[int]{
	linkCount(followingLinkMatcher),
	linkCount(followingAnyMatcher),
}

var postCountStrategies = []Strategy[int]{
	StrategyFunc[int](func(root *goquery.Selection) (int, bool) {
		n := 0
		root.FindMatcher(tabMatcher).EachWithBreak(func(_ int, tab *goquery.Selection) bool {
			text := tab.Text()
			if !strings.Contains(text, "Posts") && !strings.Contains(text, "Tweets") {
				return true
			}
			if m := firstNumberRegex.FindString(text); m != "" {
				n = ParseMetricValue(m)
			}
			return n == 0
		})
		return n, n > 0
	}),
	StrategyFunc[int](func(root *goquery.Selection) (int, bool) {
		n := 0
		root.FindMatcher(divMatcher).EachWithBreak(func(_ int, d *goquery.Selection) bool {
			if d.FindMatcher(divMatcher).Length() > 0 {
				return true
			}
			if m := headerCountRegex.FindStringSubmatch(d.Text()); m != nil {
				n = ParseMetricValue(m[1])
			}
			return n == 0
		})
		return n, n > 0
	}),
}

// matchText returns the trimmed text of the first match of m.
func matchText(m goquery.Matcher) Strategy[string] {
	return StrategyFunc[string](func(root *goquery.Selection) (string, bool) {
		return firstText(root.FindMatcher(m))
	})
}

// linkCount parses the first match of m whose text carries a digit.
func linkCount(m goquery.Matcher) Strategy[int] {
	return StrategyFunc[int](func(root *goquery.Selection) (int, bool) {
		found, n := false, 0
		root.FindMatcher(m).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			text := strings.TrimSpace(a.Text())
			if !hasDigit(text) {
				return true
			}
			found, n = true, ParseMetricValue(text)
			return false
		})
		return n, found
	})
}

// firstWithoutBadge returns the first non-empty text of sel's elements
// that do not contain an svg (verification badges).
func firstWithoutBadge(sel *goquery.Selection) (string, bool) {
	var out string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.FindMatcher(svgMatcher).Length() > 0 {
			return true
		}
		out = strings.TrimSpace(s.Text())
		return out == ""
	})
	return out, out != ""
}

package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/use-agent/botwatch/models"
)

// maxFallbackTextLen bounds the leaf-div text fallback; longer blocks are
// usually whole timelines or bios, not a single post.
const maxFallbackTextLen = 500

const (
	replyMarker    = "Replying to"
	repostPrefix   = "RT @"
	retweetMarker  = "Retweeted"
	repostedMarker = "reposted"
)

var (
	statusIDPattern = regexp.MustCompile(`/status/(\d+)`)

	likeLabelPattern    = regexp.MustCompile(`(?i)(\d+\.?\d*[KMB]?)\s*Like`)
	retweetLabelPattern = regexp.MustCompile(`(?i)(\d+\.?\d*[KMB]?)\s*Retweet`)
	replyLabelPattern   = regexp.MustCompile(`(?i)(\d+\.?\d*[KMB]?)\s*Repl`)
)

// textStrategies resolve the post body. The dedicated text node wins; the
// leaf-div scan covers markup without test ids.
var textStrategies = []Strategy[string]{
	StrategyFunc[string](func(sel *goquery.Selection) (string, bool) {
		return firstText(sel.FindMatcher(postTextMatcher))
	}),
	StrategyFunc[string](func(sel *goquery.Selection) (string, bool) {
		return firstText(sel.FindMatcher(langTextMatcher))
	}),
	StrategyFunc[string](longestLeafText),
}

// ParsePost normalises one candidate element. repost is only used for
// filtering and is not part of the record. ok is false when no text could
// be resolved; the caller drops the candidate.
func ParsePost(sel *goquery.Selection) (post models.PostRecord, repost, ok bool) {
	text := FirstOf(sel, textStrategies...)
	if text == "" {
		return models.PostRecord{}, false, false
	}

	likes, replies, retweets := parseMetrics(sel)
	return models.PostRecord{
		IsReply:      IsReply(sel),
		RetweetCount: retweets,
		ReplyCount:   replies,
		LikeCount:    likes,
		Text:         text,
	}, IsRepost(sel, text), true
}

// IsReply reports whether the element carries a "Replying to" marker.
func IsReply(sel *goquery.Selection) bool {
	return containsMarker(sel, replyMarker)
}

// IsRepost reports whether the element is a repost of another account's
// post. text is the already resolved post text.
func IsRepost(sel *goquery.Selection, text string) bool {
	if strings.HasPrefix(text, repostPrefix) {
		return true
	}
	return containsMarker(sel, retweetMarker) || containsMarker(sel, repostedMarker)
}

// IdentityKey derives the deduplication key of a candidate element: the
// permalink status id when present, else a hash of its text and timestamp,
// else a random token.
func IdentityKey(sel *goquery.Selection) string {
	var id string
	sel.FindMatcher(permalinkMatcher).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m := statusIDPattern.FindStringSubmatch(href); m != nil {
			id = m[1]
			return false
		}
		return true
	})
	if id != "" {
		return id
	}

	text := sel.Text()
	timestamp, _ := sel.FindMatcher(timeMatcher).First().Attr("datetime")
	if text != "" || timestamp != "" {
		sum := sha256.Sum256([]byte(text + timestamp))
		return "pseudo-" + hex.EncodeToString(sum[:8])
	}

	return "element-" + uuid.NewString()
}

// containsMarker looks for marker in the social-context line or any span
// outside the post body.
func containsMarker(sel *goquery.Selection, marker string) bool {
	if strings.Contains(sel.FindMatcher(socialContextMatcher).First().Text(), marker) {
		return true
	}
	found := false
	sel.FindMatcher(spanMatcher).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if inPostBody(s) {
			return true
		}
		if strings.Contains(s.Text(), marker) {
			found = true
			return false
		}
		return true
	})
	return found
}

func inPostBody(s *goquery.Selection) bool {
	return s.ClosestMatcher(postTextMatcher).Length() > 0 ||
		s.ClosestMatcher(langTextMatcher).Length() > 0
}

// parseMetrics reads like/reply/retweet counts from the action bar, falling
// back to the buttons' accessible labels when the bar shows no numbers.
func parseMetrics(sel *goquery.Selection) (likes, replies, retweets int) {
	likes = metricFromContainer(sel, likeMatcher)
	replies = metricFromContainer(sel, replyMatcher)
	retweets = metricFromContainer(sel, retweetMatcher)
	if likes != 0 || replies != 0 || retweets != 0 {
		return likes, replies, retweets
	}

	sel.FindMatcher(labelledButtonSel).Each(func(_ int, b *goquery.Selection) {
		label, _ := b.Attr("aria-label")
		if m := likeLabelPattern.FindStringSubmatch(label); m != nil {
			likes = ParseMetricValue(m[1])
		}
		if m := retweetLabelPattern.FindStringSubmatch(label); m != nil {
			retweets = ParseMetricValue(m[1])
		}
		if m := replyLabelPattern.FindStringSubmatch(label); m != nil {
			replies = ParseMetricValue(m[1])
		}
	})
	return likes, replies, retweets
}

func metricFromContainer(sel *goquery.Selection, m goquery.Matcher) int {
	container := sel.FindMatcher(m).First()
	if container.Length() == 0 {
		return 0
	}

	spans := container.FindMatcher(countSpanMatcher)
	if spans.Length() == 0 {
		spans = container.FindMatcher(spanMatcher)
	}

	value := 0
	spans.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := strings.TrimSpace(s.Text()); hasDigit(t) {
			value = ParseMetricValue(t)
			return false
		}
		return true
	})
	return value
}

func firstText(sel *goquery.Selection) (string, bool) {
	if sel.Length() == 0 {
		return "", false
	}
	t := strings.TrimSpace(sel.First().Text())
	return t, t != ""
}

// longestLeafText picks the longest text among divs without nested divs,
// ignoring blocks of maxFallbackTextLen characters or more. The element
// itself counts when it has no nested div.
func longestLeafText(sel *goquery.Selection) (string, bool) {
	best := ""
	consider := func(s *goquery.Selection) {
		if s.FindMatcher(divMatcher).Length() > 0 {
			return
		}
		t := strings.TrimSpace(s.Text())
		n := utf8.RuneCountInString(t)
		if n > utf8.RuneCountInString(best) && n < maxFallbackTextLen {
			best = t
		}
	}

	consider(sel.First())
	sel.FindMatcher(divMatcher).Each(func(_ int, s *goquery.Selection) {
		consider(s)
	})
	return best, best != ""
}

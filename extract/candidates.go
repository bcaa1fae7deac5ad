package extract

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// maxAncestorLevels caps the upward walk from a heuristic seed.
const maxAncestorLevels = 5

// minNestedDivs is the descendant-div count above which an ancestor is
// taken as a post container.
const minNestedDivs = 5

// StructuralCandidates returns the matches of the first PostSelectors entry
// that matches anything, together with that selector. Selectors are never
// mixed in one result. ok is false when none of them match.
func StructuralCandidates(doc *goquery.Document) (candidates *goquery.Selection, selector string, ok bool) {
	for i, m := range postMatchers {
		sel := doc.FindMatcher(m)
		if sel.Length() > 0 {
			return sel, PostSelectors[i], true
		}
	}
	return nil, "", false
}

// HeuristicCandidates finds post containers without relying on post
// selectors: it seeds from language-tagged text, timestamps and post-text
// markers and walks up at most maxAncestorLevels parents from each seed to
// the first plausible container. Each container appears once, in document
// order of discovery.
func HeuristicCandidates(doc *goquery.Document) *goquery.Selection {
	seen := make(map[*html.Node]struct{})
	var containers []*html.Node

	for _, seed := range doc.FindMatcher(seedMatcher).Nodes {
		n := seed
		for level := 0; level < maxAncestorLevels; level++ {
			n = n.Parent
			if n == nil || n.Type != html.ElementNode {
				break
			}
			if !plausibleContainer(n) {
				continue
			}
			if _, dup := seen[n]; !dup {
				seen[n] = struct{}{}
				containers = append(containers, n)
			}
			break
		}
	}

	return doc.FindNodes(containers...)
}

func plausibleContainer(n *html.Node) bool {
	if attr(n, "role") == "article" {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && timeMatcher.MatchFirst(c) != nil {
			return true
		}
	}
	return countDescendantDivs(n, minNestedDivs+1) > minNestedDivs
}

// countDescendantDivs counts div descendants of n, stopping at limit.
func countDescendantDivs(n *html.Node, limit int) int {
	count := 0
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil && count < limit; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "div" {
				count++
			}
			walk(c)
		}
	}
	walk(n)
	return count
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

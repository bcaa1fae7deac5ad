package extract

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuralCandidates_FirstSelectorWins(t *testing.T) {
	doc := parseHTML(t, `
		<div data-testid="cellInnerDiv"><article data-testid="tweet">a</article></div>
		<div data-testid="cellInnerDiv"><article data-testid="tweet">b</article></div>
		<div data-testid="cellInnerDiv">c</div>`)

	sel, selector, ok := StructuralCandidates(doc)
	require.True(t, ok)
	assert.Equal(t, `article[data-testid="tweet"]`, selector)
	assert.Equal(t, 2, sel.Length())
}

func TestStructuralCandidates_FallsThrough(t *testing.T) {
	doc := parseHTML(t, `<div role="article">a</div><div role="article">b</div>`)

	sel, selector, ok := StructuralCandidates(doc)
	require.True(t, ok)
	assert.Equal(t, `div[role="article"]`, selector)
	assert.Equal(t, 2, sel.Length())

	_, _, ok = StructuralCandidates(parseHTML(t, `<p>nothing</p>`))
	assert.False(t, ok)
}

func TestHeuristicCandidates(t *testing.T) {
	doc := parseHTML(t, `
		<section>
			<div class="post" id="p1">
				<div><div lang="en">first</div></div>
				<time datetime="2024-01-01T00:00:00Z">Jan 1</time>
			</div>
			<div class="post" id="p2">
				<div><div lang="en">second</div></div>
				<time datetime="2024-01-02T00:00:00Z">Jan 2</time>
			</div>
		</section>`)

	sel := HeuristicCandidates(doc)
	ids := sel.Map(func(_ int, s *goquery.Selection) string {
		id, _ := s.Attr("id")
		return id
	})
	assert.Equal(t, []string{"p1", "p2"}, ids, "each container once, seeds deduplicated")
}

func TestHeuristicCandidates_AncestorCap(t *testing.T) {
	doc := parseHTML(t, `
		<div role="article" id="far">
			<div><div><div><div><div><div lang="en">deep</div></div></div></div></div></div>
		</div>`)

	assert.Equal(t, 0, HeuristicCandidates(doc).Length())
}

func TestHeuristicCandidates_ArticleRole(t *testing.T) {
	doc := parseHTML(t, `<div role="article" id="near"><div><div lang="en">x</div></div></div>`)

	sel := HeuristicCandidates(doc)
	require.Equal(t, 1, sel.Length())
	id, _ := sel.Attr("id")
	assert.Equal(t, "near", id)
}

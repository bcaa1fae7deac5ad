package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/botwatch/config"
	"github.com/use-agent/botwatch/models"
)

// fakePage serves a static or scripted document and records scrolls.
type fakePage struct {
	mu      sync.Mutex
	url     string
	html    func(scrolls int) string
	extent  func(scrolls int) int
	scrolls []int
	heights int
	snapErr error
}

func (p *fakePage) URL(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Snapshot(context.Context) (*goquery.Document, error) {
	p.mu.Lock()
	n := len(p.scrolls)
	p.mu.Unlock()
	if p.snapErr != nil {
		return nil, p.snapErr
	}
	return goquery.NewDocumentFromReader(strings.NewReader(p.html(n)))
}

func (p *fakePage) ScrollBy(_ context.Context, dy int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls = append(p.scrolls, dy)
	return nil
}

func (p *fakePage) ScrollHeight(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heights++
	if p.extent == nil {
		return 2000, nil
	}
	return p.extent(len(p.scrolls)), nil
}

type recordingSink struct {
	mu        sync.Mutex
	progress  []int
	completed []Result
	errs      []error
	failWith  error
}

func (s *recordingSink) Progress(accepted, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, accepted)
	return s.failWith
}

func (s *recordingSink) Completed(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, r)
	return s.failWith
}

func (s *recordingSink) Error(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	return s.failWith
}

type postSpec struct {
	id    int
	reply bool
	rt    bool
	empty bool
}

func article(p postSpec) string {
	var b strings.Builder
	b.WriteString(`<article data-testid="tweet">`)
	switch {
	case p.reply:
		b.WriteString(`<div data-testid="socialContext"><span>Replying to @other</span></div>`)
	case p.rt:
		b.WriteString(`<div data-testid="socialContext"><span>jack reposted</span></div>`)
	}
	fmt.Fprintf(&b, `<a href="/jack/status/%d"><time datetime="2024-01-01T00:00:00Z"></time></a>`, p.id)
	if !p.empty {
		fmt.Fprintf(&b, `<div data-testid="tweetText">post number %d</div>`, p.id)
		fmt.Fprintf(&b, `<div data-testid="like"><span>%d</span></div>`, p.id)
	}
	b.WriteString(`</article>`)
	return b.String()
}

func timeline(posts ...postSpec) string {
	var b strings.Builder
	b.WriteString(`<html><body><div data-testid="UserName"><span>Jack</span></div>`)
	b.WriteString(`<a href="/jack/followers">12 Followers</a>`)
	for _, p := range posts {
		b.WriteString(article(p))
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func plainPosts(from, to int) []postSpec {
	var out []postSpec
	for i := from; i <= to; i++ {
		out = append(out, postSpec{id: i})
	}
	return out
}

func staticHTML(s string) func(int) string {
	return func(int) string { return s }
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	l.waits = append(l.waits, d)
	l.mu.Unlock()
	return ctx.Err()
}

func testCollector(t *testing.T) (*Collector, *sleepLog) {
	t.Helper()
	sl := &sleepLog{}
	c := New(config.CollectorConfig{
		InitialScroll:    300,
		InitialSettle:    time.Second,
		RetryScroll:      500,
		RetrySettle:      1500 * time.Millisecond,
		ScrollBase:       600,
		ScrollJitter:     200,
		ScrollSettle:     800 * time.Millisecond,
		CycleDelayBase:   800 * time.Millisecond,
		CycleDelayJitter: 500 * time.Millisecond,
		StuckRecoverAt:   3,
		StuckLimit:       5,
		ProgressEvery:    5,
	}, WithSleep(sl.sleep), WithRand(func(n int) int { return n - 1 }))
	return c, sl
}

func TestRun_TenPostsCompletedWithoutExtraScrolling(t *testing.T) {
	c, sl := testCollector(t)
	page := &fakePage{url: "https://x.com/jack", html: staticHTML(timeline(plainPosts(1, 10)...))}
	sink := &recordingSink{}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 10, Handle: "jack"}, sink)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Profile.Posts, 10)
	assert.Equal(t, "post number 1", res.Profile.Posts[0].Text)
	assert.Equal(t, "post number 10", res.Profile.Posts[9].Text)
	assert.Equal(t, 10, res.Profile.Posts[9].LikeCount)
	assert.Equal(t, "jack", res.Profile.Handle)
	assert.Equal(t, "Jack", res.Profile.DisplayName)
	assert.Equal(t, 12, res.Profile.FollowersCount)

	assert.Equal(t, []int{300}, page.scrolls, "only the initial scroll")
	assert.Equal(t, 0, page.heights)
	assert.Equal(t, []time.Duration{time.Second}, sl.waits)

	assert.Equal(t, []int{5, 10}, sink.progress)
	assert.Len(t, sink.completed, 1)
	assert.Empty(t, sink.errs)
}

func TestRun_ThreePostsStuck(t *testing.T) {
	c, _ := testCollector(t)
	page := &fakePage{url: "https://x.com/jack", html: staticHTML(timeline(plainPosts(1, 3)...))}
	sink := &recordingSink{}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 10}, sink)
	require.NoError(t, err)

	assert.Equal(t, StatusStuck, res.Status)
	assert.Len(t, res.Profile.Posts, 3)
	// One measurement records the extent, five more observe no growth.
	assert.Equal(t, 6, page.heights)
	assert.Equal(t, []int{300, 799, 799, 799, 799, 799}, page.scrolls)
	assert.Len(t, sink.completed, 1)
	assert.Empty(t, sink.progress)
}

func TestRun_StuckCounterResetsOnGrowth(t *testing.T) {
	c, _ := testCollector(t)
	page := &fakePage{
		url:  "https://x.com/jack",
		html: staticHTML(timeline(plainPosts(1, 2)...)),
		// grows once after the third scroll, then never again
		extent: func(scrolls int) int {
			if scrolls >= 3 {
				return 3000
			}
			return 2000
		},
	}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 50}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, StatusStuck, res.Status)
	// 2000 recorded, one stuck observation, growth to 3000, then five stuck.
	assert.Equal(t, 8, page.heights)
}

func TestRun_ScrollingLoadsMorePosts(t *testing.T) {
	c, sl := testCollector(t)
	page := &fakePage{
		url: "https://x.com/jack",
		html: func(scrolls int) string {
			// each scroll beyond the initial one reveals five more posts
			visible := 5 * scrolls
			return timeline(plainPosts(1, visible)...)
		},
		extent: func(scrolls int) int { return 1000 * scrolls },
	}
	sink := &recordingSink{}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 12}, sink)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Profile.Posts, 12)
	for i, p := range res.Profile.Posts {
		assert.Equal(t, fmt.Sprintf("post number %d", i+1), p.Text)
	}
	assert.Equal(t, []int{5, 10}, sink.progress)
	assert.Contains(t, sl.waits, 800*time.Millisecond+499*time.Millisecond, "jittered cycle delay")
}

func TestRun_ReplyAndRepostFilters(t *testing.T) {
	posts := []postSpec{
		{id: 1}, {id: 2, reply: true}, {id: 3, rt: true}, {id: 4}, {id: 5, reply: true},
	}

	tests := []struct {
		name    string
		opts    Options
		wantIDs []string
	}{
		{"exclude both", Options{TargetCount: 5}, []string{"1", "4"}},
		{"replies only", Options{TargetCount: 5, IncludeReplies: true}, []string{"1", "2", "4", "5"}},
		{"reposts only", Options{TargetCount: 5, IncludeRetweets: true}, []string{"1", "3", "4"}},
		{"include both", Options{TargetCount: 5, IncludeReplies: true, IncludeRetweets: true}, []string{"1", "2", "3", "4", "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := testCollector(t)
			page := &fakePage{url: "https://x.com/jack", html: staticHTML(timeline(posts...))}

			res, err := c.Run(context.Background(), page, tt.opts, &recordingSink{})
			require.NoError(t, err)

			var got []string
			for _, p := range res.Profile.Posts {
				got = append(got, strings.TrimPrefix(p.Text, "post number "))
				if !tt.opts.IncludeReplies {
					assert.False(t, p.IsReply)
				}
			}
			assert.Equal(t, tt.wantIDs, got)
		})
	}
}

func TestRun_NotProfilePage(t *testing.T) {
	c, _ := testCollector(t)
	page := &fakePage{url: "https://x.com/jack/status/1", html: staticHTML(timeline(plainPosts(1, 3)...))}
	sink := &recordingSink{}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 3}, sink)
	require.Error(t, err)

	assert.Equal(t, models.ErrCodeNotProfile, models.CodeOf(err))
	assert.Equal(t, StatusAborted, res.Status)
	assert.Empty(t, page.scrolls, "no scrolling before the precondition holds")
	assert.Len(t, sink.errs, 1)
	assert.Empty(t, sink.completed)
}

func TestRun_NoPostsAborts(t *testing.T) {
	c, sl := testCollector(t)
	page := &fakePage{url: "https://x.com/jack", html: staticHTML(`<html><body><p>empty</p></body></html>`)}
	sink := &recordingSink{}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 3, Handle: "jack"}, sink)
	require.Error(t, err)

	assert.Equal(t, models.ErrCodeNoPosts, models.CodeOf(err))
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, []int{300, 500}, page.scrolls)
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond}, sl.waits)
	assert.Len(t, sink.errs, 1)
}

func TestRun_PostsAppearAfterSecondScroll(t *testing.T) {
	c, _ := testCollector(t)
	page := &fakePage{
		url: "https://x.com/jack",
		html: func(scrolls int) string {
			if scrolls < 2 {
				return timeline()
			}
			return timeline(plainPosts(1, 4)...)
		},
	}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 4}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, res.Profile.Posts, 4)
}

func TestRun_EmptyTextIsRetried(t *testing.T) {
	c, _ := testCollector(t)
	page := &fakePage{
		url: "https://x.com/jack",
		html: func(scrolls int) string {
			// post 2 renders its text only after the first cycle
			return timeline(postSpec{id: 1}, postSpec{id: 2, empty: scrolls < 2})
		},
		extent: func(scrolls int) int { return 1000 * scrolls },
	}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 2}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, res.Profile.Posts, 2)
}

func TestRun_HeuristicFallback(t *testing.T) {
	c, _ := testCollector(t)
	markup := `<html><body>
		<div id="a"><div><div lang="en">first heuristic post</div></div><time datetime="2024-01-01T00:00:00Z"></time></div>
		<div id="b"><div><div lang="en">second heuristic post</div></div><time datetime="2024-01-02T00:00:00Z"></time></div>
	</body></html>`
	page := &fakePage{url: "https://x.com/jack", html: staticHTML(markup)}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 2}, &recordingSink{})
	require.NoError(t, err)
	require.Len(t, res.Profile.Posts, 2)
	assert.Equal(t, "first heuristic post", res.Profile.Posts[0].Text)
}

func TestRun_StuckRecoveryHeuristicPass(t *testing.T) {
	c, _ := testCollector(t)
	// the fourth post has no post markup and is only reachable by the
	// heuristic pass; structural selectors keep matching the first three
	late := `<div id="late"><div><div lang="en">late heuristic post</div></div><time datetime="2024-02-01T00:00:00Z"></time></div>`
	markup := strings.Replace(timeline(plainPosts(1, 3)...), "</body>", late+"</body>", 1)
	page := &fakePage{url: "https://x.com/jack", html: staticHTML(markup)}
	sink := &recordingSink{}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 4}, sink)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Profile.Posts, 4)
	assert.Equal(t, "post number 3", res.Profile.Posts[2].Text)
	assert.Equal(t, "late heuristic post", res.Profile.Posts[3].Text)
	// one measurement records the extent, the third unchanged one recovers
	assert.Equal(t, 4, page.heights)
	assert.Equal(t, []int{300, 799, 799, 799}, page.scrolls)
	assert.Len(t, sink.completed, 1)
}

func TestRun_InvalidTarget(t *testing.T) {
	for _, target := range []int{0, -3} {
		c, _ := testCollector(t)
		page := &fakePage{url: "https://x.com/jack", html: staticHTML(timeline(plainPosts(1, 3)...))}
		sink := &recordingSink{}

		res, err := c.Run(context.Background(), page, Options{TargetCount: target}, sink)
		require.Error(t, err)
		assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err), "target %d", target)
		assert.Equal(t, StatusAborted, res.Status)
		assert.Empty(t, page.scrolls)
		assert.Len(t, sink.errs, 1)
	}
}

func TestRun_SinkFailuresAreIgnored(t *testing.T) {
	c, _ := testCollector(t)
	page := &fakePage{url: "https://x.com/jack", html: staticHTML(timeline(plainPosts(1, 5)...))}
	sink := &recordingSink{failWith: errors.New("consumer gone")}

	res, err := c.Run(context.Background(), page, Options{TargetCount: 5}, sink)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []int{5}, sink.progress)
}

func TestRun_Canceled(t *testing.T) {
	c := New(config.CollectorConfig{InitialScroll: 300, InitialSettle: time.Hour})
	page := &fakePage{url: "https://x.com/jack", html: staticHTML(timeline(plainPosts(1, 3)...))}
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Run(ctx, page, Options{TargetCount: 3}, sink)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeCanceled, models.CodeOf(err))
	assert.Equal(t, StatusAborted, res.Status)
	assert.Len(t, sink.errs, 1)
}

func TestRun_SnapshotFailure(t *testing.T) {
	c, _ := testCollector(t)
	page := &fakePage{url: "https://x.com/jack", snapErr: errors.New("target closed")}

	_, err := c.Run(context.Background(), page, Options{TargetCount: 3}, &recordingSink{})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeBrowserCrash, models.CodeOf(err))
}

func TestScanDocument_Idempotent(t *testing.T) {
	c, _ := testCollector(t)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(timeline(plainPosts(1, 4)...)))
	require.NoError(t, err)

	r := &run{
		c:      c,
		opts:   Options{TargetCount: 100},
		sink:   &recordingSink{},
		seen:   make(map[string]struct{}),
		logger: c.logger,
	}
	r.scanDocument(doc)
	require.Len(t, r.posts, 4)

	r.scanDocument(doc)
	assert.Len(t, r.posts, 4, "second pass over the same snapshot accepts nothing")
}

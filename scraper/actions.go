package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
)

// livePage adapts a navigated rod page to collector.Page. Every call is
// bound to the caller's context.
type livePage struct {
	page *rod.Page
}

func (p *livePage) URL(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => window.location.href`)
	if err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return res.Value.Str(), nil
}

// Snapshot serialises the current DOM and parses it for read-only queries.
func (p *livePage) Snapshot(ctx context.Context) (*goquery.Document, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return doc, nil
}

func (p *livePage) ScrollBy(ctx context.Context, dy int) error {
	if _, err := p.page.Context(ctx).Eval(`(dy) => window.scrollBy(0, dy)`, dy); err != nil {
		return fmt.Errorf("scroll by %d: %w", dy, err)
	}
	return nil
}

func (p *livePage) ScrollHeight(ctx context.Context) (int, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.documentElement.scrollHeight`)
	if err != nil {
		return 0, fmt.Errorf("read scroll height: %w", err)
	}
	return res.Value.Int(), nil
}

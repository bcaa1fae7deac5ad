package extract

import (
	"log/slog"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is one way of pulling a value of type T out of a DOM subtree.
// Implementations report ok=false when they found nothing usable.
type Strategy[T any] interface {
	TryExtract(sel *goquery.Selection) (T, bool)
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc[T any] func(sel *goquery.Selection) (T, bool)

// TryExtract calls f(sel).
func (f StrategyFunc[T]) TryExtract(sel *goquery.Selection) (T, bool) {
	return f(sel)
}

// FirstOf runs the strategies in order and returns the first successful
// value. A strategy that panics counts as a miss, so FirstOf always returns
// (zero value on total failure).
func FirstOf[T any](sel *goquery.Selection, strategies ...Strategy[T]) T {
	for i, s := range strategies {
		if v, ok := tryOne(sel, s, i); ok {
			return v
		}
	}
	var zero T
	return zero
}

func tryOne[T any](sel *goquery.Selection, s Strategy[T], idx int) (v T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("extraction strategy panicked", "strategy", idx, "panic", r)
			var zero T
			v, ok = zero, false
		}
	}()
	if sel == nil || len(sel.Nodes) == 0 {
		return v, false
	}
	return s.TryExtract(sel)
}

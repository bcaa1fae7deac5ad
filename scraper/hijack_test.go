package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTrackerHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"analytics.twitter.com", true},
		{"static.ads-twitter.com", true},
		{"pagead2.googlesyndication.com", true},
		{"Stats.G.DoubleClick.net", true},
		{"x.com", false},
		{"abs.twimg.com", false},
		{"api.x.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, isTrackerHost(tt.host))
		})
	}
}

package extract

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMetricValue(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1.2K", 1200},
		{"3M", 3000000},
		{"", 0},
		{"42", 42},
		{"abc", 0},
		{"  7  ", 7},
		{"1.5k", 1500},
		{"2b", 2000000000},
		{"1,234", 1234},
		{"12,345 Followers", 12345},
		{"4.5K Followers", 4500},
		{".5K", 500},
		{"0", 0},
		{"K", 0},
		{"1.25K", 1250},
		{"9.99M", 9990000},
		{"10000000000B", math.MaxInt},
		{"99999999999999999999", math.MaxInt},
		{strings.Repeat("9", 400), math.MaxInt},
	}
	for _, tt := range tests {
		name := tt.in
		if len(name) > 24 {
			name = name[:24]
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMetricValue(tt.in))
		})
	}
}

func TestHasDigit(t *testing.T) {
	assert.True(t, hasDigit("Posts 12"))
	assert.False(t, hasDigit("Posts"))
	assert.False(t, hasDigit(""))
}

package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"ascii exact", "abcd", 1},
		{"ascii rounds up", "abcde", 2},
		{"hangul", "안녕하세요", 2},
		{"mixed", "hello 세계", 3},
		{"long ascii", strings.Repeat("a", 400), 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EstimateTokens(tc.text))
		})
	}
}

func TestEstimateTokensWeighsLocalScriptHigher(t *testing.T) {
	assert.Greater(t, EstimateTokens(strings.Repeat("가", 100)), EstimateTokens(strings.Repeat("a", 100)))
}

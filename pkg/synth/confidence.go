package synth

import (
	"math"
	"strings"
)

var hedges = []string{
	"i don't know",
	"i do not know",
	"not sure",
	"does not contain",
	"do not contain",
	"doesn't contain",
	"don't contain",
	"couldn't find",
	"could not find",
	"cannot find",
	"no information",
	"not enough information",
}

// Confidence scores an answer from the best relevance score, the number of
// retrieved entries n against the requested k, and the answer text:
//
//	top * (0.6 + 0.4*min(n/k, 1)) * hedge * length
//
// top is clamped to [0, 1]; hedge is 0.8 when the answer hedges, length is
// 0.9 for answers under 20 characters. It is 0 when nothing was retrieved
// or top is not a number.
func Confidence(top float64, n, k int, answer string) float64 {
	if n <= 0 || math.IsNaN(top) {
		return 0
	}
	top = min(max(top, 0), 1)

	coverage := 1.0
	if k > 0 && n < k {
		coverage = float64(n) / float64(k)
	}
	c := top * (0.6 + 0.4*coverage)

	if hedging(answer) {
		c *= 0.8
	}
	if len([]rune(strings.TrimSpace(answer))) < 20 {
		c *= 0.9
	}
	return c
}

func hedging(answer string) bool {
	a := strings.ToLower(strings.ReplaceAll(answer, "’", "'"))
	for _, h := range hedges {
		if strings.Contains(a, h) {
			return true
		}
	}
	return false
}

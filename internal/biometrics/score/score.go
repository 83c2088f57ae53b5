// Package score computes the humanity score of an uploaded STR profile.
package score

import (
	"math"
	"math/rand/v2"
	"strings"
)

const (
	// fullCreditLines is the marker count at which the data component of the
	// score saturates.
	fullCreditLines = 25
	dataCeiling     = 0.8
	floor           = 0.5
	ceiling         = 1.0
)

// Calculator derives a humanity score from raw profile bytes. The random
// component is injected so tests can pin it.
type Calculator struct {
	randFloat func() float64
}

// New returns a calculator backed by the default random source.
func New() *Calculator {
	return &Calculator{randFloat: rand.Float64}
}

// NewWithRand returns a calculator using the provided source for the random
// component. randFloat must return values in [0, 1).
func NewWithRand(randFloat func() float64) *Calculator {
	return &Calculator{randFloat: randFloat}
}

// Humanity scores the payload. Each well-formed marker line contributes up to
// a 0.8 data component (saturating at 25 lines); a random component in
// [0.1, 0.2) is added on top, and the result is clamped to [0.5, 1.0] and
// rounded to three decimals.
func (c *Calculator) Humanity(payload []byte) float64 {
	valid := CountValidLines(payload)

	data := math.Min(dataCeiling, float64(valid)/fullCreditLines)
	noise := 0.1 + c.randFloat()*0.1

	score := data + noise
	score = math.Max(floor, math.Min(ceiling, score))
	return math.Round(score*1000) / 1000
}

// CountValidLines counts marker lines in the payload. A valid line is
// non-comment (no leading '#') and carries both a marker separator (':') and
// an allele separator (',').
func CountValidLines(payload []byte) int {
	count := 0
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, ":") && strings.Contains(line, ",") {
			count++
		}
	}
	return count
}

package segment

import (
	"math"
	"unicode"
)

const (
	latinWeight = 1.5
	cjkWeight   = 2.0
	punctWeight = 0.5
)

// Weight is the reading cost of a sentence: Latin word characters count
// 1.5 each (a single gap between words counts as one character), CJK
// characters 2 and punctuation 0.5. The result is never below 1.
func Weight(sentence string) float64 {
	runes := []rune(sentence)
	w := 0.0
	for i, r := range runes {
		switch {
		case isCJK(r):
			w += cjkWeight
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			w += latinWeight
		case unicode.IsSpace(r):
			if i > 0 && i+1 < len(runes) && !unicode.IsSpace(runes[i-1]) {
				w += latinWeight
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			w += punctWeight
		}
	}
	return math.Max(w, 1)
}

// Distribute splits span milliseconds among sentences in proportion to
// their weights. Each share is clamped to [minDur, maxDur]; time added or
// removed by the clamp (and rounding) is carried into the next sentence and
// the last sentence absorbs the remainder, so the shares always sum to span.
// When span cannot give every sentence minDur the clamp is waived and the
// split is purely proportional (each share at least 1ms).
//
// It returns nil when span is shorter than one millisecond per sentence.
func Distribute(span int64, weights []float64, minDur, maxDur int64) []int64 {
	n := int64(len(weights))
	if n == 0 || span < n {
		return nil
	}
	if n == 1 {
		return []int64{span}
	}

	total := 0.0
	for _, w := range weights {
		total += w
	}

	lo, hi := minDur, maxDur
	if span < n*minDur {
		lo, hi = 1, span
	}

	shares := make([]int64, n)
	var used int64
	carry := 0.0
	for i := int64(0); i < n-1; i++ {
		rest := n - 1 - i
		remaining := span - used

		raw := float64(span)*weights[i]/total + carry
		d := int64(math.Floor(raw + 1e-9))

		upper := hi
		if feasible := remaining - rest*lo; upper > feasible {
			upper = feasible
		}
		if d > upper {
			d = upper
		}
		if d < lo {
			d = lo
		}

		carry = raw - float64(d)
		shares[i] = d
		used += d
	}
	shares[n-1] = span - used
	return shares
}

// internal/game/verify.go
//
// Answer verification and scoring for sentence puzzles.
// The checks run as a pipeline and stop at the first failure:
//
//  1. Exact match against the canonical sentence text.
//  2. Word multiset equality (reports missing/extra words on failure).
//  3. Ending check: last word, and second-to-last when both have ≥2 words.
//  4. Position similarity: fraction of words in their canonical slot.
//  5. Sequence similarity: LCS length over sentence length.
//
// A non-exact answer passes when position ≥ 0.95, sequence ≥ 0.90, and the
// ending check held. Evaluate is pure; it knows nothing about attempts or
// hints, so the score is computed separately from the attempt/hint counters.

package game

import (
	"fmt"
	"sort"
	"strings"
)

const (
	passPositionThreshold = 0.95
	passSequenceThreshold = 0.90
)

// Feedback is the outcome of evaluating one submitted answer.
type Feedback struct {
	Passed             bool
	ExactMatch         bool
	Message            string
	PositionSimilarity float64
	SequenceSimilarity float64
	Missing            []string
	Extra              []string
}

// Evaluate runs the verification pipeline for a submitted answer against
// the canonical sentence.
func Evaluate(canonicalText string, canonical []string, answer string) Feedback {
	if strings.TrimSpace(answer) == strings.TrimSpace(canonicalText) {
		return Feedback{
			Passed:             true,
			ExactMatch:         true,
			Message:            "Perfect! You matched the sentence exactly.",
			PositionSimilarity: 1.0,
			SequenceSimilarity: 1.0,
		}
	}

	submitted := strings.Fields(answer)

	missing, extra := multisetDiff(canonical, submitted)
	if len(missing) > 0 || len(extra) > 0 {
		msg := "Some words are wrong."
		if len(missing) > 0 {
			msg += " Missing: " + strings.Join(missing, ", ") + "."
		}
		if len(extra) > 0 {
			msg += " Extra: " + strings.Join(extra, ", ") + "."
		}
		return Feedback{Message: msg, Missing: missing, Extra: extra}
	}

	if !endingMatches(canonical, submitted) {
		return Feedback{
			Message: "The ending of the sentence is off. Check the order of the last words.",
		}
	}

	// Multiset equality guarantees equal lengths from here on.
	pos := positionSimilarity(canonical, submitted)
	seq := sequenceSimilarity(canonical, submitted)

	if pos >= passPositionThreshold && seq >= passSequenceThreshold {
		return Feedback{
			Passed:             true,
			Message:            fmt.Sprintf("Correct! (position %.0f%%, order %.0f%%)", pos*100, seq*100),
			PositionSimilarity: pos,
			SequenceSimilarity: seq,
		}
	}

	msg := fmt.Sprintf("Check the word order again. (order match: %.0f%%)", seq*100)
	if pos < passPositionThreshold {
		msg = fmt.Sprintf("The word positions are quite different. (position match: %.0f%%)", pos*100)
	}
	return Feedback{
		Message:            msg,
		PositionSimilarity: pos,
		SequenceSimilarity: seq,
	}
}

// ComputeScore applies the penalty formula for a passed attempt:
// 100 minus 10 per hint, 5 per attempt beyond the first, and up to 20
// for positional drift, clamped at 0.
func ComputeScore(attempts, hintsUsed int, positionSimilarity float64) int {
	hintPenalty := hintsUsed * 10
	attemptPenalty := (attempts - 1) * 5
	if attemptPenalty < 0 {
		attemptPenalty = 0
	}
	positionPenalty := int((1.0 - positionSimilarity) * 20)
	score := 100 - hintPenalty - attemptPenalty - positionPenalty
	if score < 0 {
		score = 0
	}
	return score
}

// multisetDiff compares word multisets and returns the words missing from
// the submission and the extra words it contains, each sorted for stable
// feedback.
func multisetDiff(canonical, submitted []string) (missing, extra []string) {
	counts := make(map[string]int, len(canonical))
	for _, w := range canonical {
		counts[w]++
	}
	for _, w := range submitted {
		counts[w]--
	}
	for w, c := range counts {
		for ; c > 0; c-- {
			missing = append(missing, w)
		}
		for ; c < 0; c++ {
			extra = append(extra, w)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

// endingMatches checks the last word, and the second-to-last word when
// both lists have at least two words.
func endingMatches(canonical, submitted []string) bool {
	if len(canonical) == 0 || len(submitted) == 0 {
		return false
	}
	if canonical[len(canonical)-1] != submitted[len(submitted)-1] {
		return false
	}
	if len(canonical) >= 2 && len(submitted) >= 2 {
		if canonical[len(canonical)-2] != submitted[len(submitted)-2] {
			return false
		}
	}
	return true
}

// positionSimilarity is the fraction of indices holding the canonical word.
func positionSimilarity(canonical, submitted []string) float64 {
	if len(canonical) != len(submitted) || len(canonical) == 0 {
		return 0
	}
	correct := 0
	for i, w := range canonical {
		if submitted[i] == w {
			correct++
		}
	}
	return float64(correct) / float64(len(canonical))
}

// sequenceSimilarity is LCS length over sentence length. It is always
// ≥ positionSimilarity for equal-length lists, since every positionally
// matching index is itself a common-subsequence element.
func sequenceSimilarity(canonical, submitted []string) float64 {
	if len(canonical) != len(submitted) || len(canonical) == 0 {
		return 0
	}
	return float64(lcsLength(canonical, submitted)) / float64(len(canonical))
}

// lcsLength computes the longest common subsequence length with the
// standard (m+1)×(n+1) dynamic-programming table.
func lcsLength(a, b []string) int {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	return dp[m][n]
}

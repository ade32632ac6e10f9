package service

import (
	"sort"
	"strings"
	"unicode"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// Default consensus policy values.
const (
	DefaultApprovalThreshold = 0.6
	DefaultMaxRounds         = 3
)

// ConsensusPolicy decides when a deliberation has converged.
// The policy is process-level configuration shared by all sessions.
type ConsensusPolicy struct {
	ApprovalThreshold float64
	MaxRounds         int
}

// DefaultConsensusPolicy returns the default 60% / 3 rounds policy.
func DefaultConsensusPolicy() ConsensusPolicy {
	return ConsensusPolicy{
		ApprovalThreshold: DefaultApprovalThreshold,
		MaxRounds:         DefaultMaxRounds,
	}
}

// Normalized returns a copy with non-positive fields replaced by defaults.
func (p ConsensusPolicy) Normalized() ConsensusPolicy {
	if p.ApprovalThreshold <= 0 || p.ApprovalThreshold > 1 {
		p.ApprovalThreshold = DefaultApprovalThreshold
	}
	if p.MaxRounds <= 0 {
		p.MaxRounds = DefaultMaxRounds
	}
	return p
}

// ApprovalRate returns the fraction of approving votes. No votes yields 0.
func ApprovalRate(votes []core.Vote) float64 {
	if len(votes) == 0 {
		return 0
	}
	approved := 0
	for _, v := range votes {
		if v.Approved {
			approved++
		}
	}
	return float64(approved) / float64(len(votes))
}

// ShouldFinalize reports whether the session should produce its final
// document after round roundNumber: either approvalRate reached the
// threshold or the round cap was hit.
func (p ConsensusPolicy) ShouldFinalize(approvalRate float64, roundNumber int) bool {
	p = p.Normalized()
	return approvalRate >= p.ApprovalThreshold || roundNumber >= p.MaxRounds
}

// Decision is the outcome of evaluating a completed round.
type Decision struct {
	Round        int     `json:"round"`
	ApprovalRate float64 `json:"approval_rate"`
	Approved     int     `json:"approved"`
	Total        int     `json:"total"`
	Finalize     bool    `json:"finalize"`
	RoundCapHit  bool    `json:"round_cap_hit"`
	Agreement    float64 `json:"agreement"`
}

// Evaluate builds the full decision for a completed round, including the
// pairwise agreement between the persona syntheses.
func (p ConsensusPolicy) Evaluate(round core.Round) Decision {
	p = p.Normalized()
	rate := ApprovalRate(round.Votes)
	approved := 0
	for _, v := range round.Votes {
		if v.Approved {
			approved++
		}
	}
	return Decision{
		Round:        round.Number,
		ApprovalRate: rate,
		Approved:     approved,
		Total:        len(round.Votes),
		Finalize:     p.ShouldFinalize(rate, round.Number),
		RoundCapHit:  rate < p.ApprovalThreshold && round.Number >= p.MaxRounds,
		Agreement:    SynthesisAgreement(round.Syntheses),
	}
}

// SynthesisAgreement returns the average pairwise Jaccard similarity of the
// key points, risks and recommendations across syntheses. Fewer than two
// syntheses count as full agreement.
func SynthesisAgreement(syntheses []core.Synthesis) float64 {
	if len(syntheses) < 2 {
		return 1.0
	}
	scores := make([]float64, 0)
	for i := 0; i < len(syntheses); i++ {
		for j := i + 1; j < len(syntheses); j++ {
			a, b := syntheses[i], syntheses[j]
			pair := average([]float64{
				JaccardSimilarity(normalizeSet(a.KeyPoints), normalizeSet(b.KeyPoints)),
				JaccardSimilarity(normalizeSet(a.Risks), normalizeSet(b.Risks)),
				JaccardSimilarity(normalizeSet(a.Recommendations), normalizeSet(b.Recommendations)),
			})
			scores = append(scores, pair)
		}
	}
	return average(scores)
}

// SharedPoints returns the normalized key points every synthesis mentions.
func SharedPoints(syntheses []core.Synthesis) []string {
	if len(syntheses) == 0 {
		return nil
	}
	sets := make([][]string, len(syntheses))
	for i, s := range syntheses {
		sets[i] = normalizeSet(s.KeyPoints)
	}
	return intersectAll(sets)
}

// JaccardSimilarity calculates Jaccard index: |A ∩ B| / |A ∪ B|
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	for item := range setA {
		if setB[item] {
			intersection++
		}
	}

	union := len(setA)
	for item := range setB {
		if !setA[item] {
			union++
		}
	}

	if union == 0 {
		return 1.0
	}

	return float64(intersection) / float64(union)
}

func normalizeSet(items []string) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		normalized := NormalizeText(item)
		if normalized != "" {
			result = append(result, normalized)
		}
	}
	return result
}

// NormalizeText lowercases text and collapses punctuation into single spaces.
func NormalizeText(text string) string {
	text = strings.ToLower(text)

	var builder strings.Builder
	prevSpace := true
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			builder.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			builder.WriteRune(' ')
			prevSpace = true
		}
	}

	return strings.TrimSpace(builder.String())
}

func toSet(items []string) map[string]bool {
	result := make(map[string]bool)
	for _, item := range items {
		result[item] = true
	}
	return result
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func intersectAll(sets [][]string) []string {
	if len(sets) == 0 {
		return nil
	}

	result := toSet(sets[0])
	for i := 1; i < len(sets); i++ {
		nextSet := toSet(sets[i])
		for item := range result {
			if !nextSet[item] {
				delete(result, item)
			}
		}
	}

	items := make([]string, 0, len(result))
	for item := range result {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

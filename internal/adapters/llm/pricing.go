// Package llm provides the model backends the router dispatches to.
package llm

import "github.com/hugo-lorenzo-mato/quorum-spec/internal/core"

// Pricing is the per-1k-token price of a provider in USD.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Cost returns the price of a call with the given token usage.
func (p Pricing) Cost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)/1000*p.InputPer1K + float64(tokensOut)/1000*p.OutputPer1K
}

const defaultMaxTokens = core.DefaultMaxTokens

func maxTokens(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}

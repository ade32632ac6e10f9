package service

import (
	"math"
	"testing"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

func votes(approvals ...bool) []core.Vote {
	out := make([]core.Vote, 0, len(approvals))
	for i, a := range approvals {
		out = append(out, core.Vote{PersonaID: string(rune('a' + i)), Approved: a})
	}
	return out
}

func TestApprovalRate(t *testing.T) {
	tests := []struct {
		name  string
		votes []core.Vote
		want  float64
	}{
		{"no votes", nil, 0},
		{"all approve", votes(true, true), 1},
		{"none approve", votes(false, false, false), 0},
		{"three of five", votes(true, true, true, false, false), 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApprovalRate(tt.votes); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ApprovalRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldFinalize(t *testing.T) {
	p := DefaultConsensusPolicy()

	tests := []struct {
		name  string
		rate  float64
		round int
		want  bool
	}{
		{"exactly at threshold", ApprovalRate(votes(true, true, true, false, false)), 1, true},
		{"just below threshold", 0.59, 2, false},
		{"below threshold early round", ApprovalRate(votes(true, false, false, false, false)), 1, false},
		{"below threshold at cap", 0, 3, true},
		{"past cap", 0, 4, true},
		{"unanimous", 1, 1, true},
		{"no votes round two", ApprovalRate(nil), 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldFinalize(tt.rate, tt.round); got != tt.want {
				t.Errorf("ShouldFinalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsensusPolicy_Normalized(t *testing.T) {
	p := ConsensusPolicy{}.Normalized()
	if p.ApprovalThreshold != DefaultApprovalThreshold || p.MaxRounds != DefaultMaxRounds {
		t.Errorf("Normalized() = %+v, want defaults", p)
	}

	custom := ConsensusPolicy{ApprovalThreshold: 0.8, MaxRounds: 5}.Normalized()
	if custom.ApprovalThreshold != 0.8 || custom.MaxRounds != 5 {
		t.Errorf("Normalized() changed explicit values: %+v", custom)
	}
}

func TestConsensusPolicy_Evaluate(t *testing.T) {
	p := ConsensusPolicy{ApprovalThreshold: 0.75, MaxRounds: 2}

	round := core.Round{Number: 2, Votes: votes(true, false)}
	d := p.Evaluate(round)
	if !d.Finalize || !d.RoundCapHit {
		t.Errorf("expected finalize via round cap, got %+v", d)
	}
	if d.Approved != 1 || d.Total != 2 {
		t.Errorf("counts = %d/%d, want 1/2", d.Approved, d.Total)
	}

	round = core.Round{Number: 1, Votes: votes(true, true, true, false)}
	d = p.Evaluate(round)
	if !d.Finalize || d.RoundCapHit {
		t.Errorf("expected finalize via approval, got %+v", d)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 1},
		{"disjoint", []string{"a"}, []string{"b"}, 0},
		{"overlap", []string{"a", "b", "c"}, []string{"b", "c", "d"}, 0.5},
		{"both empty", nil, nil, 1},
		{"one empty", nil, []string{"a"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JaccardSimilarity(tt.a, tt.b); got != tt.want {
				t.Errorf("JaccardSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello, World!", "hello world"},
		{"  multiple   spaces  ", "multiple spaces"},
		{"Use-Postgres", "use postgres"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSynthesisAgreement(t *testing.T) {
	if got := SynthesisAgreement(nil); got != 1 {
		t.Errorf("SynthesisAgreement(nil) = %v, want 1", got)
	}

	same := []core.Synthesis{
		{PersonaID: "a", KeyPoints: []string{"Offline first"}, Risks: []string{"Sync conflicts"}},
		{PersonaID: "b", KeyPoints: []string{"offline-first"}, Risks: []string{"sync conflicts."}},
	}
	if got := SynthesisAgreement(same); got != 1 {
		t.Errorf("SynthesisAgreement(same) = %v, want 1", got)
	}

	different := []core.Synthesis{
		{PersonaID: "a", KeyPoints: []string{"x"}, Risks: []string{"y"}, Recommendations: []string{"z"}},
		{PersonaID: "b", KeyPoints: []string{"p"}, Risks: []string{"q"}, Recommendations: []string{"r"}},
	}
	if got := SynthesisAgreement(different); got != 0 {
		t.Errorf("SynthesisAgreement(different) = %v, want 0", got)
	}
}

func TestSharedPoints(t *testing.T) {
	syn := []core.Synthesis{
		{KeyPoints: []string{"Mobile app", "Web dashboard"}},
		{KeyPoints: []string{"mobile app", "CLI"}},
	}
	got := SharedPoints(syn)
	if len(got) != 1 || got[0] != "mobile app" {
		t.Errorf("SharedPoints() = %v, want [mobile app]", got)
	}
	if SharedPoints(nil) != nil {
		t.Error("SharedPoints(nil) should be nil")
	}
}

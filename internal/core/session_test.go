package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundClone_DoesNotShareSlices(t *testing.T) {
	now := time.Now()
	orig := NewRound(1, "focus on mobile", now)
	orig.Questions = []Question{{ID: "q1", Text: "who?"}}
	orig.Syntheses = []Synthesis{{PersonaID: "pm", KeyPoints: []string{"a"}}}
	orig.ReviewResult = &ReviewResult{Score: 80, Issues: []ReviewIssue{{Severity: SeverityMinor}}}
	orig.Votes = []Vote{{PersonaID: "pm", Approved: true}}
	orig.CompletedAt = &now

	clone := orig.Clone()
	clone.Questions[0].Text = "changed"
	clone.Syntheses[0].KeyPoints[0] = "changed"
	clone.ReviewResult.Issues[0].Severity = SeverityCritical
	clone.Votes[0].Approved = false

	assert.Equal(t, "who?", orig.Questions[0].Text)
	assert.Equal(t, "a", orig.Syntheses[0].KeyPoints[0])
	assert.Equal(t, SeverityMinor, orig.ReviewResult.Issues[0].Severity)
	assert.True(t, orig.Votes[0].Approved)
	require.NotNil(t, clone.CompletedAt)
	assert.NotSame(t, orig.CompletedAt, clone.CompletedAt)
}

func TestRoundClone_PreservesNil(t *testing.T) {
	r := NewRound(2, "", time.Now())
	c := r.Clone()
	assert.Nil(t, c.Syntheses)
	assert.Nil(t, c.Votes)
	assert.Nil(t, c.ReviewResult)
	assert.Equal(t, RoundInProgress, c.Status)
	assert.Equal(t, StageQuestions, c.Stage)
}

func TestSessionState_CurrentRound(t *testing.T) {
	var nilState *SessionState
	assert.Nil(t, nilState.CurrentRound())

	s := &SessionState{}
	assert.Nil(t, s.CurrentRound())

	s.Rounds = []Round{{Number: 1}, {Number: 2}}
	require.NotNil(t, s.CurrentRound())
	assert.Equal(t, 2, s.CurrentRound().Number)
}

func TestSessionState_EnabledPersonas(t *testing.T) {
	s := &SessionState{Personas: []PersonaConfig{
		{ID: "a", Enabled: true},
		{ID: "b", Enabled: false},
		{ID: "c", Enabled: true},
	}}
	got := s.EnabledPersonas()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestReviewResult_CountBySeverity(t *testing.T) {
	r := &ReviewResult{Issues: []ReviewIssue{
		{Severity: SeverityCritical},
		{Severity: SeverityMinor},
		{Severity: SeverityCritical},
	}}
	assert.Equal(t, 2, r.CountBySeverity(SeverityCritical))
	assert.Equal(t, 0, r.CountBySeverity(SeverityMajor))
}

func TestPersonaDisplayName(t *testing.T) {
	assert.Equal(t, "Architect", PersonaConfig{ID: "arch", Name: "Architect"}.DisplayName())
	assert.Equal(t, "arch", PersonaConfig{ID: "arch"}.DisplayName())
}

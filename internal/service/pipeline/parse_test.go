package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/testutil"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "Here you go:\n```json\n{\"a\":1}\n```\nthanks", `{"a":1}`, true},
		{"fenced without language", "```\n{\"a\":2}\n```", `{"a":2}`, true},
		{"embedded in prose", `The answer is {"a":{"b":"}"}} as requested.`, `{"a":{"b":"}"}}`, true},
		{"skips invalid first object", `{not json} then {"a":3}`, `{"a":3}`, true},
		{"empty", "   ", "", false},
		{"no object", "just words", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQuestions(t *testing.T) {
	personas := testutil.NewTestPersonas(2)

	qs, err := parseQuestions(`{"questions":[
		{"text":" Who pays? ","persona":"p2"},
		{"text":""},
		{"text":"What platforms?","persona":"ghost"},
		{"text":"Third"}]}`, 2, personas)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, core.Question{ID: "q1", Text: "Who pays?", Persona: "p2"}, qs[0])
	assert.Equal(t, core.Question{ID: "q2", Text: "What platforms?"}, qs[1])

	_, err = parseQuestions(`{"questions":[]}`, 5, personas)
	assert.True(t, core.IsCode(err, core.CodeEmptyStageOutput))

	_, err = parseQuestions("no json here", 5, personas)
	assert.True(t, core.IsCode(err, core.CodeParseFailed))
}

func TestParseResolutions_FillsMissing(t *testing.T) {
	challenges := []core.Challenge{{ID: "c1", Text: "a"}, {ID: "c2", Text: "b"}}

	res, err := parseResolutions(`{"resolutions":[
		{"challenge_id":"c2","resolution":"Dropped.","outcome":"REJECTED"},
		{"challenge_id":"c2","resolution":"duplicate","outcome":"accepted"},
		{"challenge_id":"c9","resolution":"unknown","outcome":"accepted"}]}`, challenges)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "c2", res[0].ChallengeID)
	assert.Equal(t, OutcomeRejected, res[0].Outcome)
	assert.Equal(t, "c1", res[1].ChallengeID)
	assert.Equal(t, OutcomeOpen, res[1].Outcome)
}

func TestParseSynthesis(t *testing.T) {
	s, err := parseSynthesis("p1", `{"content":"Plan","key_points":["a"," ",""],"risks":["r"]}`)
	require.NoError(t, err)
	assert.Equal(t, "Plan", s.Content)
	assert.Equal(t, []string{"a"}, s.KeyPoints)
	assert.Equal(t, []string{"r"}, s.Risks)

	s, err = parseSynthesis("p1", "Free-form prose only.")
	require.NoError(t, err)
	assert.Equal(t, "Free-form prose only.", s.Content)
	assert.Nil(t, s.KeyPoints)

	_, err = parseSynthesis("p1", "  ")
	assert.True(t, core.IsCode(err, core.CodeEmptyStageOutput))
}

func TestParseReview(t *testing.T) {
	personas := testutil.NewTestPersonas(2)

	rr, err := parseReview(`{"score":140,"summary":"ok","issues":[
		{"severity":"High","description":"No auth","persona_id":"p1"},
		{"severity":"medium","description":"Vague","persona_id":"zz"},
		{"severity":"nit","description":""}]}`, personas)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rr.Score)
	require.Len(t, rr.Issues, 2)
	assert.Equal(t, core.SeverityCritical, rr.Issues[0].Severity)
	assert.Equal(t, "p1", rr.Issues[0].PersonaID)
	assert.Equal(t, core.SeverityMajor, rr.Issues[1].Severity)
	assert.Empty(t, rr.Issues[1].PersonaID)
	assert.False(t, rr.Passed, "critical issue must fail the review")

	rr, err = parseReview(`{"score":75,"issues":[{"severity":"minor","description":"x"}]}`, personas)
	require.NoError(t, err)
	assert.True(t, rr.Passed)

	rr, err = parseReview(`{"score":69}`, personas)
	require.NoError(t, err)
	assert.False(t, rr.Passed)
}

func TestParseVote(t *testing.T) {
	approved, reasoning, conf, err := parseVote("```json\n{\"approved\":true,\"reasoning\":\" fine \",\"confidence\":1.7}\n```")
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, "fine", reasoning)
	require.NotNil(t, conf)
	assert.Equal(t, 1.0, *conf)

	_, _, conf, err = parseVote(`{"approved":false}`)
	require.NoError(t, err)
	assert.Nil(t, conf)

	_, _, _, err = parseVote(`{"reasoning":"undecided"}`)
	assert.True(t, core.IsCode(err, core.CodeParseFailed))
}

func TestParseSpec(t *testing.T) {
	doc, stack, err := parseSpec("# Spec\n\nBody text.\n\n```json\n{\"tech_stack\":[{\"name\":\"Postgres\",\"category\":\"database\"},{\"name\":\"\"}]}\n```\n")
	require.NoError(t, err)
	assert.Equal(t, "# Spec\n\nBody text.", doc)
	require.Len(t, stack, 1)
	assert.Equal(t, "Postgres", stack[0].Name)

	doc, stack, err = parseSpec("# Spec\n\n```json\n{\"other\":1}\n```")
	require.NoError(t, err)
	assert.Contains(t, doc, `"other"`)
	assert.Nil(t, stack)

	_, _, err = parseSpec("")
	assert.True(t, core.IsCode(err, core.CodeEmptyStageOutput))
}

package dryrun

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

func generate(t *testing.T, b *Backend, prompt string) string {
	t.Helper()
	resp, err := b.Generate(context.Background(), core.GenerationRequest{Prompt: prompt, Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "dryrun/m", resp.ModelUsed)
	return resp.Text
}

func TestBackend_StageAnswersAreJSON(t *testing.T) {
	b := New()
	for _, heading := range []string{
		"# Round 1: clarifying questions",
		"# Round 1: challenges",
		"# Round 1: resolve the debate",
		"# Round 1: your synthesis",
		"# Round 1: review",
		"# Round 1: vote",
	} {
		t.Run(heading, func(t *testing.T) {
			var v map[string]interface{}
			assert.NoError(t, json.Unmarshal([]byte(generate(t, b, heading+"\n\nbody")), &v))
		})
	}
	assert.EqualValues(t, 6, b.Calls())
}

func TestBackend_VotesFollowApprovalRound(t *testing.T) {
	b := New(WithApprovalFrom(2))
	assert.Contains(t, generate(t, b, "# Round 1: vote"), `"approved":false`)
	assert.Contains(t, generate(t, b, "# Round 2: vote"), `"approved":true`)
}

func TestBackend_SpecDocument(t *testing.T) {
	text := generate(t, New(), "# Write the specification\n\n...")
	assert.Contains(t, text, "# Product Specification")
	assert.Contains(t, text, "tech_stack")
}

func TestBackend_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Generate(ctx, core.GenerationRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchTool_Execute(t *testing.T) {
	tool := NewSearchTool("")
	assert.Equal(t, "web_search", tool.Name())

	out, err := tool.Execute(context.Background(), map[string]interface{}{"query": "habit apps", "max_results": float64(2)})
	require.NoError(t, err)
	data := out.Data.(map[string]interface{})
	assert.Equal(t, "habit apps", data["query"])
	assert.Len(t, data["results"], 2)
}

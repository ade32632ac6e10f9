package testutil_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/testutil"
)

func TestMockBackend_Generate(t *testing.T) {
	mock := testutil.NewMockBackend("openai")
	assert.Equal(t, "openai", mock.Name())

	resp, err := mock.Generate(context.Background(), core.GenerationRequest{
		Prompt: "test prompt",
		Model:  "gpt-4o",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Mock response")
	assert.Equal(t, "openai/gpt-4o", resp.ModelUsed)
	assert.Equal(t, 1, mock.CallCount("Generate"))
}

func TestMockBackend_Overrides(t *testing.T) {
	resp, err := testutil.NewMockBackend("x").WithResponse("custom response").
		Generate(context.Background(), core.GenerationRequest{Prompt: "test"})
	require.NoError(t, err)
	assert.Equal(t, "custom response", resp.Text)

	boom := errors.New("boom")
	_, err = testutil.NewMockBackend("x").WithError(boom).
		Generate(context.Background(), core.GenerationRequest{Prompt: "test"})
	assert.ErrorIs(t, err, boom)
}

func TestMockBackend_RequestsAndReset(t *testing.T) {
	mock := testutil.NewMockBackend("x")
	_, _ = mock.Generate(context.Background(), core.GenerationRequest{Role: "review"})
	_, _ = mock.Generate(context.Background(), core.GenerationRequest{Role: "voting"})

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "voting", reqs[1].Role)

	mock.Reset()
	assert.Zero(t, mock.CallCount("Generate"))
}

func TestMockTool_Execute(t *testing.T) {
	tool := testutil.NewMockTool("web_search")

	out, err := tool.Execute(context.Background(), map[string]interface{}{"query": "fitness"})
	require.NoError(t, err)
	assert.Equal(t, "web_search", out.Source)
	assert.Equal(t, 1, tool.CallCount())
	assert.Equal(t, "fitness", tool.LastParams()["query"])
}

func TestMockRepository_SaveLoadDelete(t *testing.T) {
	repo := testutil.NewMockRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &core.Snapshot{
		SessionID:    "s1",
		SessionState: testutil.NewTestSession(),
		Timestamp:    time.Now(),
	}))

	got, err := repo.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Build a fitness app", list[0].Idea)

	require.NoError(t, repo.Delete(ctx, "s1"))
	_, err = repo.Load(ctx, "s1")
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestMockRepository_WithSaveError(t *testing.T) {
	repo := testutil.NewMockRepository().WithSaveError(testutil.ErrTest)
	assert.Error(t, repo.Save(context.Background(), &core.Snapshot{SessionID: "x"}))
	assert.Equal(t, 1, repo.SaveCount())
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := testutil.NewFakeClock(start)
	clock.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), clock.Now())
}

func TestNewCompletedRound(t *testing.T) {
	r := testutil.NewCompletedRound(2, true, false)
	assert.Equal(t, 2, r.Number)
	assert.Equal(t, core.RoundComplete, r.Status)
	assert.Len(t, r.Votes, 2)
}

func TestTempFile(t *testing.T) {
	dir := testutil.TempDir(t)
	path := testutil.TempFile(t, dir, "nested/personas.yaml", "- id: a\n")
	assert.FileExists(t, path)
}

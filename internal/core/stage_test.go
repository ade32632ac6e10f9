package core

import "testing"

func TestStageOrder(t *testing.T) {
	tests := []struct {
		stage Stage
		want  int
	}{
		{StageQuestions, 0},
		{StageResearch, 1},
		{StageChallenge, 2},
		{StageSynthesis, 3},
		{StageReview, 4},
		{StageVoting, 5},
		{StageSpec, 6},
		{Stage("bogus"), -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			if got := StageOrder(tt.stage); got != tt.want {
				t.Errorf("StageOrder(%q) = %d, want %d", tt.stage, got, tt.want)
			}
		})
	}
}

func TestNextStage(t *testing.T) {
	tests := []struct {
		stage Stage
		want  Stage
	}{
		{StageQuestions, StageResearch},
		{StageReview, StageVoting},
		{StageVoting, ""},
		{StageSpec, ""},
	}

	for _, tt := range tests {
		if got := NextStage(tt.stage); got != tt.want {
			t.Errorf("NextStage(%q) = %q, want %q", tt.stage, got, tt.want)
		}
	}
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("synthesis")
	if err != nil || st != StageSynthesis {
		t.Fatalf("ParseStage(synthesis) = %q, %v", st, err)
	}
	if _, err := ParseStage("nope"); err == nil {
		t.Fatal("expected error for invalid stage")
	}
}

func TestRoundStagesExcludeSpec(t *testing.T) {
	for _, st := range RoundStages() {
		if st == StageSpec {
			t.Fatal("spec stage must not be part of a round")
		}
	}
	if len(AllStages()) != len(RoundStages())+1 {
		t.Fatal("AllStages should add exactly the spec stage")
	}
}

func TestStageDescription(t *testing.T) {
	for _, st := range AllStages() {
		if st.Description() == "Unknown stage" {
			t.Errorf("stage %q has no description", st)
		}
	}
}

package core

import "fmt"

// Stage represents one step of a deliberation round.
type Stage string

const (
	// StageQuestions generates clarifying and research questions for the idea.
	StageQuestions Stage = "questions"

	// StageResearch dispatches one research tool call per question.
	StageResearch Stage = "research"

	// StageChallenge raises contrarian challenges against the findings and
	// resolves the resulting debates.
	StageChallenge Stage = "challenge"

	// StageSynthesis asks every enabled persona for its synthesis.
	StageSynthesis Stage = "synthesis"

	// StageReview scores the syntheses and flags issues by severity.
	StageReview Stage = "review"

	// StageVoting collects one vote per enabled persona.
	StageVoting Stage = "voting"

	// StageSpec generates the final specification document. It only runs
	// once the consensus engine decides to finalize.
	StageSpec Stage = "spec"
)

// RoundStages returns the stages every round runs, in execution order.
func RoundStages() []Stage {
	return []Stage{StageQuestions, StageResearch, StageChallenge, StageSynthesis, StageReview, StageVoting}
}

// AllStages returns every stage including the final spec stage.
func AllStages() []Stage {
	return append(RoundStages(), StageSpec)
}

// StageOrder returns the numeric order of a stage (0-indexed).
func StageOrder(s Stage) int {
	for i, st := range AllStages() {
		if st == s {
			return i
		}
	}
	return -1
}

// NextStage returns the stage following s within a round.
// Returns empty string after voting, where the consensus decision takes over.
func NextStage(s Stage) Stage {
	stages := RoundStages()
	for i, st := range stages {
		if st == s && i+1 < len(stages) {
			return stages[i+1]
		}
	}
	return ""
}

// ValidStage checks if a stage string is valid.
func ValidStage(s Stage) bool {
	return StageOrder(s) >= 0
}

// ParseStage converts a string to a Stage with validation.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !ValidStage(st) {
		return "", fmt.Errorf("invalid stage: %s", s)
	}
	return st, nil
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// Description returns a human-readable description of the stage.
func (s Stage) Description() string {
	switch s {
	case StageQuestions:
		return "Generate clarifying and research questions"
	case StageResearch:
		return "Research the questions with external tools"
	case StageChallenge:
		return "Challenge the findings and resolve debates"
	case StageSynthesis:
		return "Synthesize findings per persona"
	case StageReview:
		return "Review and score the syntheses"
	case StageVoting:
		return "Vote on whether the idea is ready"
	case StageSpec:
		return "Generate the specification document"
	default:
		return "Unknown stage"
	}
}

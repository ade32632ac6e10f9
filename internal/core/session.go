package core

import (
	"time"
)

// PersonaConfig describes a simulated expert taking part in the deliberation.
// The roster is an open table keyed by ID; personas can be added at runtime.
type PersonaConfig struct {
	ID             string  `json:"id" yaml:"id" validate:"required,max=64"`
	Name           string  `json:"name,omitempty" yaml:"name"`
	PromptTemplate string  `json:"prompt_template" yaml:"prompt_template" validate:"required"`
	Temperature    float64 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	Enabled        bool    `json:"enabled" yaml:"enabled"`
}

// DisplayName returns the persona name, falling back to its ID.
func (p PersonaConfig) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// RoundStatus is the lifecycle state of a round.
type RoundStatus string

const (
	RoundInProgress RoundStatus = "in-progress"
	RoundComplete   RoundStatus = "complete"
	// RoundPaused is accepted from persisted snapshots and treated like an
	// in-progress round when the session is resumed.
	RoundPaused RoundStatus = "paused"
)

// SessionStatus is the lifecycle state of a whole session.
type SessionStatus string

const (
	SessionIdle     SessionStatus = "idle"
	SessionRunning  SessionStatus = "running"
	SessionPaused   SessionStatus = "paused"
	SessionComplete SessionStatus = "complete"
	SessionFailed   SessionStatus = "failed"
)

// Question is a clarifying or research question produced by the questions stage.
type Question struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Persona string `json:"persona,omitempty"`
}

// ResearchResult pairs a question with the tool result that answered it.
type ResearchResult struct {
	QuestionID string     `json:"question_id"`
	Question   string     `json:"question"`
	Tool       string     `json:"tool"`
	Result     ToolResult `json:"result"`
}

// Challenge is a contrarian objection raised against the research findings.
type Challenge struct {
	ID     string `json:"id"`
	Target string `json:"target,omitempty"`
	Text   string `json:"text"`
}

// ChallengeResponse is one persona's answer to the round's challenges.
type ChallengeResponse struct {
	PersonaID string `json:"persona_id"`
	Response  string `json:"response"`
}

// DebateResolution records how a challenge was settled.
type DebateResolution struct {
	ChallengeID string `json:"challenge_id"`
	Resolution  string `json:"resolution"`
	Outcome     string `json:"outcome,omitempty"`
}

// Synthesis is one persona's consolidated view of the round.
type Synthesis struct {
	PersonaID       string   `json:"persona_id"`
	Content         string   `json:"content"`
	KeyPoints       []string `json:"key_points,omitempty"`
	Risks           []string `json:"risks,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Severity ranks review issues.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// ReviewIssue is a problem found by the review stage.
type ReviewIssue struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	PersonaID   string   `json:"persona_id,omitempty"`
}

// ReviewResult is the output of the review stage.
type ReviewResult struct {
	Score   float64       `json:"score"`
	Issues  []ReviewIssue `json:"issues,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Passed  bool          `json:"passed"`
}

// CountBySeverity returns how many issues carry the given severity.
func (r *ReviewResult) CountBySeverity(sev Severity) int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == sev {
			n++
		}
	}
	return n
}

// Vote is a persona's verdict for a round. Votes are immutable once created.
type Vote struct {
	PersonaID  string    `json:"persona_id"`
	Approved   bool      `json:"approved"`
	Reasoning  string    `json:"reasoning"`
	Confidence *float64  `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Round is one full pass through the pipeline stages.
type Round struct {
	Number             int                 `json:"number"`
	Stage              Stage               `json:"stage"`
	Questions          []Question          `json:"questions,omitempty"`
	ResearchResults    []ResearchResult    `json:"research_results,omitempty"`
	Challenges         []Challenge         `json:"challenges,omitempty"`
	ChallengeResponses []ChallengeResponse `json:"challenge_responses,omitempty"`
	DebateResolutions  []DebateResolution  `json:"debate_resolutions,omitempty"`
	Syntheses          []Synthesis         `json:"syntheses,omitempty"`
	ReviewResult       *ReviewResult       `json:"review_result,omitempty"`
	Votes              []Vote              `json:"votes,omitempty"`
	Status             RoundStatus         `json:"status"`
	UserComment        string              `json:"user_comment,omitempty"`
	StartedAt          time.Time           `json:"started_at"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
}

// NewRound creates an in-progress round positioned at the first stage.
func NewRound(number int, comment string, now time.Time) Round {
	return Round{
		Number:      number,
		Stage:       StageQuestions,
		Status:      RoundInProgress,
		UserComment: comment,
		StartedAt:   now,
	}
}

// Clone returns a deep copy of the round so the copy can be published to
// readers without sharing backing arrays with the writer.
func (r Round) Clone() Round {
	out := r
	out.Questions = cloneSlice(r.Questions)
	out.ResearchResults = cloneSlice(r.ResearchResults)
	out.Challenges = cloneSlice(r.Challenges)
	out.ChallengeResponses = cloneSlice(r.ChallengeResponses)
	out.DebateResolutions = cloneSlice(r.DebateResolutions)
	out.Syntheses = make([]Synthesis, len(r.Syntheses))
	for i, s := range r.Syntheses {
		s.KeyPoints = cloneSlice(s.KeyPoints)
		s.Risks = cloneSlice(s.Risks)
		s.Recommendations = cloneSlice(s.Recommendations)
		out.Syntheses[i] = s
	}
	if r.Syntheses == nil {
		out.Syntheses = nil
	}
	if r.ReviewResult != nil {
		rr := *r.ReviewResult
		rr.Issues = cloneSlice(r.ReviewResult.Issues)
		out.ReviewResult = &rr
	}
	out.Votes = cloneSlice(r.Votes)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// PendingResume is the checkpoint a paused session continues from.
type PendingResume struct {
	Idea        string `json:"idea"`
	NextRound   int    `json:"next_round"`
	UserComment string `json:"user_comment,omitempty"`
}

// HistoryEntry is one record in the append-only session event log.
type HistoryEntry struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Round     int                    `json:"round,omitempty"`
	Stage     Stage                  `json:"stage,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// History entry types.
const (
	HistorySessionStarted   = "session_started"
	HistoryRoundStarted     = "round_started"
	HistoryStageStarted     = "stage_started"
	HistoryStageCompleted   = "stage_completed"
	HistoryStageFailed      = "stage_failed"
	HistoryRoundCompleted   = "round_completed"
	HistoryConsensus        = "consensus"
	HistorySessionPaused    = "session_paused"
	HistorySessionResumed   = "session_resumed"
	HistoryUserComment      = "user_comment"
	HistorySessionCompleted = "session_completed"
	HistoryCheckpointDrop   = "resume_checkpoint_discarded"
	HistoryWarning          = "warning"
)

// DialogueEntry is a first-person line in the deliberation transcript.
type DialogueEntry struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind"`
	Round     int       `json:"round,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Dialogue speakers and kinds that are not persona IDs.
const (
	SpeakerUser      = "user"
	SpeakerModerator = "moderator"

	DialogueQuestion   = "question"
	DialogueChallenge  = "challenge"
	DialogueResponse   = "response"
	DialogueResolution = "resolution"
	DialogueSynthesis  = "synthesis"
	DialogueReview     = "review"
	DialogueVote       = "vote"
	DialogueComment    = "comment"
)

// TechStackItem is one entry of the derived technology stack.
type TechStackItem struct {
	Category  string `json:"category"`
	Name      string `json:"name"`
	Rationale string `json:"rationale,omitempty"`
}

// SessionState is the full state of one deliberation run.
// Invariant: CurrentRoundIndex == len(Rounds)-1, and PendingResume is non-nil
// only while the session is paused after a round that fell below threshold.
type SessionState struct {
	SessionID         string          `json:"session_id"`
	Idea              string          `json:"idea,omitempty"`
	Status            SessionStatus   `json:"status"`
	Rounds            []Round         `json:"rounds"`
	CurrentRoundIndex int             `json:"current_round_index"`
	IsPaused          bool            `json:"is_paused"`
	PendingResume     *PendingResume  `json:"pending_resume"`
	History           []HistoryEntry  `json:"history"`
	Dialogue          []DialogueEntry `json:"-"`
	GeneratedDocument string          `json:"generated_document,omitempty"`
	TechStack         []TechStackItem `json:"tech_stack,omitempty"`
	Personas          []PersonaConfig `json:"personas,omitempty"`
}

// CurrentRound returns the last round, or nil when no round exists.
func (s *SessionState) CurrentRound() *Round {
	if s == nil || len(s.Rounds) == 0 {
		return nil
	}
	return &s.Rounds[len(s.Rounds)-1]
}

// EnabledPersonas returns the personas taking part in the run.
func (s *SessionState) EnabledPersonas() []PersonaConfig {
	out := make([]PersonaConfig, 0, len(s.Personas))
	for _, p := range s.Personas {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot is the persisted form of a session. DialogueEntries live beside
// the session state rather than inside it.
type Snapshot struct {
	Version           int             `json:"version"`
	SessionID         string          `json:"session_id"`
	GeneratedDocument string          `json:"generated_document,omitempty"`
	DialogueEntries   []DialogueEntry `json:"dialogue_entries,omitempty"`
	SessionState      *SessionState   `json:"session_state"`
	Timestamp         time.Time       `json:"timestamp"`
}

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// SessionSummary is a lightweight listing entry for persisted sessions.
type SessionSummary struct {
	SessionID  string        `json:"session_id"`
	Idea       string        `json:"idea"`
	Status     SessionStatus `json:"status"`
	Rounds     int           `json:"rounds"`
	UpdatedAt  time.Time     `json:"updated_at"`
	SnapshotAt time.Time     `json:"snapshot_at,omitempty"`
	// Stale sessions are past the staleness window: listed, but not
	// readable or resumable.
	Stale      bool          `json:"stale,omitempty"`
}

// ToolMetadata is attached to every tool result.
type ToolMetadata struct {
	Duration time.Duration `json:"duration"`
	Cost     float64       `json:"cost"`
	Source   string        `json:"source"`
}

// ToolResult is produced once per tool invocation and never mutated afterwards.
type ToolResult struct {
	Success  bool         `json:"success"`
	Data     interface{}  `json:"data,omitempty"`
	Error    string       `json:"error,omitempty"`
	Metadata ToolMetadata `json:"metadata"`
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

package events

import "time"

// Event type constants for session events.
const (
	TypeSessionStarted   = "session_started"
	TypeRoundStarted     = "round_started"
	TypeStageStarted     = "stage_started"
	TypeStageCompleted   = "stage_completed"
	TypeStageFailed      = "stage_failed"
	TypeRoundCompleted   = "round_completed"
	TypeSessionPaused    = "session_paused"
	TypeSessionResumed   = "session_resumed"
	TypeUserComment      = "user_comment"
	TypeSessionCompleted = "session_completed"
	TypeSessionFailed    = "session_failed"
)

// SessionStartedEvent is emitted when a new session begins.
type SessionStartedEvent struct {
	BaseEvent
	Idea     string   `json:"idea"`
	Personas []string `json:"personas"`
}

// NewSessionStartedEvent creates a session started event.
func NewSessionStartedEvent(sessionID, idea string, personas []string) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent: NewBaseEvent(TypeSessionStarted, sessionID),
		Idea:      idea,
		Personas:  personas,
	}
}

// RoundStartedEvent is emitted when a round is created or re-entered.
type RoundStartedEvent struct {
	BaseEvent
	Round   int    `json:"round"`
	Comment string `json:"comment,omitempty"`
}

// NewRoundStartedEvent creates a round started event.
func NewRoundStartedEvent(sessionID string, round int, comment string) RoundStartedEvent {
	return RoundStartedEvent{
		BaseEvent: NewBaseEvent(TypeRoundStarted, sessionID),
		Round:     round,
		Comment:   comment,
	}
}

// StageEvent covers stage start, completion and failure.
type StageEvent struct {
	BaseEvent
	Round    int                    `json:"round"`
	Stage    string                 `json:"stage"`
	Duration time.Duration          `json:"duration,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// NewStageStartedEvent creates a stage started event.
func NewStageStartedEvent(sessionID string, round int, stage string) StageEvent {
	return StageEvent{BaseEvent: NewBaseEvent(TypeStageStarted, sessionID), Round: round, Stage: stage}
}

// NewStageCompletedEvent creates a stage completed event.
func NewStageCompletedEvent(sessionID string, round int, stage string, d time.Duration, data map[string]interface{}) StageEvent {
	return StageEvent{
		BaseEvent: NewBaseEvent(TypeStageCompleted, sessionID),
		Round:     round,
		Stage:     stage,
		Duration:  d,
		Data:      data,
	}
}

// NewStageFailedEvent creates a stage failed event.
func NewStageFailedEvent(sessionID string, round int, stage string, d time.Duration, err error) StageEvent {
	e := StageEvent{
		BaseEvent: NewBaseEvent(TypeStageFailed, sessionID),
		Round:     round,
		Stage:     stage,
		Duration:  d,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// RoundCompletedEvent carries the consensus decision for a sealed round.
type RoundCompletedEvent struct {
	BaseEvent
	Round        int     `json:"round"`
	ApprovalRate float64 `json:"approval_rate"`
	Approved     int     `json:"approved"`
	Total        int     `json:"total"`
	Finalize     bool    `json:"finalize"`
}

// NewRoundCompletedEvent creates a round completed event.
func NewRoundCompletedEvent(sessionID string, round int, rate float64, approved, total int, finalize bool) RoundCompletedEvent {
	return RoundCompletedEvent{
		BaseEvent:    NewBaseEvent(TypeRoundCompleted, sessionID),
		Round:        round,
		ApprovalRate: rate,
		Approved:     approved,
		Total:        total,
		Finalize:     finalize,
	}
}

// SessionPausedEvent is emitted when a pause is requested and again when the
// session stops at a checkpoint.
type SessionPausedEvent struct {
	BaseEvent
	NextRound int `json:"next_round,omitempty"`
}

// NewSessionPausedEvent creates a session paused event.
func NewSessionPausedEvent(sessionID string, nextRound int) SessionPausedEvent {
	return SessionPausedEvent{BaseEvent: NewBaseEvent(TypeSessionPaused, sessionID), NextRound: nextRound}
}

// SessionResumedEvent is emitted when a paused session continues.
type SessionResumedEvent struct {
	BaseEvent
	Round   int    `json:"round"`
	Comment string `json:"comment,omitempty"`
}

// NewSessionResumedEvent creates a session resumed event.
func NewSessionResumedEvent(sessionID string, round int, comment string) SessionResumedEvent {
	return SessionResumedEvent{
		BaseEvent: NewBaseEvent(TypeSessionResumed, sessionID),
		Round:     round,
		Comment:   comment,
	}
}

// UserCommentEvent is emitted when the user adds guidance to a session.
type UserCommentEvent struct {
	BaseEvent
	Comment string `json:"comment"`
}

// NewUserCommentEvent creates a user comment event.
func NewUserCommentEvent(sessionID, comment string) UserCommentEvent {
	return UserCommentEvent{BaseEvent: NewBaseEvent(TypeUserComment, sessionID), Comment: comment}
}

// SessionCompletedEvent is emitted once the specification is generated.
type SessionCompletedEvent struct {
	BaseEvent
	Rounds        int `json:"rounds"`
	DocumentBytes int `json:"document_bytes"`
	TechStack     int `json:"tech_stack"`
}

// NewSessionCompletedEvent creates a session completed event.
func NewSessionCompletedEvent(sessionID string, rounds, docBytes, techStack int) SessionCompletedEvent {
	return SessionCompletedEvent{
		BaseEvent:     NewBaseEvent(TypeSessionCompleted, sessionID),
		Rounds:        rounds,
		DocumentBytes: docBytes,
		TechStack:     techStack,
	}
}

// SessionFailedEvent is emitted when a run halts with an error.
type SessionFailedEvent struct {
	BaseEvent
	Round   int    `json:"round"`
	Stage   string `json:"stage,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// NewSessionFailedEvent creates a session failed event.
func NewSessionFailedEvent(sessionID string, round int, stage, title, message string) SessionFailedEvent {
	return SessionFailedEvent{
		BaseEvent: NewBaseEvent(TypeSessionFailed, sessionID),
		Round:     round,
		Stage:     stage,
		Title:     title,
		Message:   message,
	}
}

package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation     ErrorCategory = "validation"      // Bad tool params, malformed persona config
	ErrCatRateLimit      ErrorCategory = "rate_limit"      // Provider throttled the request
	ErrCatOutage         ErrorCategory = "outage"          // Provider unavailable or timing out
	ErrCatInvalidRequest ErrorCategory = "invalid_request" // Provider rejected the request
	ErrCatTool           ErrorCategory = "tool"            // Tool execution failed
	ErrCatStage          ErrorCategory = "stage"           // Unrecoverable stage failure
	ErrCatState          ErrorCategory = "state"           // Session state conflict
	ErrCatTimeout        ErrorCategory = "timeout"         // Operation timed out
	ErrCatNotFound       ErrorCategory = "not_found"       // Resource not found
	ErrCatInternal       ErrorCategory = "internal"        // Unexpected internal error
	ErrCatUnknown        ErrorCategory = "unknown"         // Unclassified provider failure
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error. Validation errors are never retried.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      CodeRateLimited,
		Message:   message,
		Retryable: true,
	}
}

// ErrOutage creates a provider outage error.
func ErrOutage(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatOutage,
		Code:      CodeProviderOutage,
		Message:   message,
		Retryable: true,
	}
}

// ErrInvalidRequest creates an error for requests every provider rejected.
func ErrInvalidRequest(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatInvalidRequest,
		Code:      CodeInvalidRequest,
		Message:   message,
		Retryable: false,
	}
}

// ErrUnknownProvider creates an error for unclassified provider failures.
func ErrUnknownProvider(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatUnknown,
		Code:      CodeProviderFailed,
		Message:   message,
		Retryable: false,
	}
}

// ErrToolExecution creates a tool execution error.
func ErrToolExecution(tool, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTool,
		Code:      CodeToolFailed,
		Message:   message,
		Retryable: false,
		Details:   map[string]interface{}{"tool": tool},
	}
}

// ErrStageFailure creates an error that halts the current round.
func ErrStageFailure(stage Stage, round int, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatStage,
		Code:      CodeStageFailed,
		Message:   fmt.Sprintf("stage %s failed in round %d", stage, round),
		Retryable: true,
		Cause:     cause,
		Details: map[string]interface{}{
			"stage": string(stage),
			"round": round,
		},
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category. A stage failure reports the
// category of its cause when the cause is itself a domain error, so a rate
// limit hit during synthesis still surfaces as a rate limit.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if !errors.As(err, &domErr) {
		return ErrCatInternal
	}
	if domErr.Category == ErrCatStage && domErr.Cause != nil {
		var inner *DomainError
		if errors.As(domErr.Cause, &inner) {
			return inner.Category
		}
	}
	return domErr.Category
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsCode reports whether the outermost domain error in err's chain has code.
func IsCode(err error, code string) bool {
	var domErr *DomainError
	return errors.As(err, &domErr) && domErr.Code == code
}

// UserMessage converts an error into the title/message pair shown to users.
func UserMessage(err error) (title, message string) {
	if err == nil {
		return "", ""
	}

	round := 0
	var domErr *DomainError
	if errors.As(err, &domErr) && domErr.Details != nil {
		if r, ok := domErr.Details["round"].(int); ok {
			round = r
		}
	}
	resumeHint := "Run the session again to retry."
	if round > 0 {
		resumeHint = fmt.Sprintf("Resume the session to retry round %d.", round)
	}

	switch GetCategory(err) {
	case ErrCatRateLimit:
		return "Rate limit reached",
			"Every configured model provider is rate limiting requests. Wait a minute before retrying. " + resumeHint
	case ErrCatOutage:
		return "Model providers unavailable",
			"No configured provider could serve the request. Check provider status and credentials. " + resumeHint
	case ErrCatInvalidRequest:
		return "Request rejected",
			"The model providers rejected the request as invalid: " + rootMessage(err)
	case ErrCatValidation:
		return "Invalid input", rootMessage(err)
	case ErrCatState:
		return "Session conflict", rootMessage(err)
	case ErrCatTimeout:
		return "Timed out", rootMessage(err) + " " + resumeHint
	default:
		return "Pipeline stage failed", err.Error() + " " + resumeHint
	}
}

// rootMessage returns the innermost domain error message, or the error text.
func rootMessage(err error) string {
	msg := err.Error()
	cur := err
	for cur != nil {
		var domErr *DomainError
		if !errors.As(cur, &domErr) {
			break
		}
		msg = domErr.Message
		cur = domErr.Cause
	}
	return msg
}

// Predefined error codes
const (
	CodeRateLimited      = "RATE_LIMITED"
	CodeProviderOutage   = "PROVIDER_OUTAGE"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeProviderFailed   = "PROVIDER_FAILED"
	CodeToolFailed       = "TOOL_FAILED"
	CodeStageFailed      = "STAGE_FAILED"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeAmbiguousSession = "AMBIGUOUS_SESSION"
	CodeRunInProgress    = "RUN_IN_PROGRESS"
	CodeInvalidRound     = "INVALID_ROUND"
	CodeStaleSnapshot    = "STALE_SNAPSHOT"
	CodeStateCorrupted   = "STATE_CORRUPTED"
	CodeSessionComplete  = "SESSION_COMPLETE"
	CodeEmptyIdea        = "EMPTY_IDEA"
	CodeIdeaTooLong      = "IDEA_TOO_LONG"
	CodeNoPersonas       = "NO_PERSONAS"
	CodeInvalidPersona   = "INVALID_PERSONA"
	CodeParseFailed      = "PARSE_FAILED"
	CodeEmptyStageOutput = "EMPTY_STAGE_OUTPUT"
	CodeInvalidConfig    = "INVALID_CONFIG"
	CodeMissingParam     = "MISSING_PARAM"
	CodeInvalidParam     = "INVALID_PARAM"
)

// MaxIdeaLength is the maximum accepted idea length in bytes.
const MaxIdeaLength = 20000

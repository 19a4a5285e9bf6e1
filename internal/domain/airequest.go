package domain

import "time"

// AIOutcome is the terminal result of a single classifier call.
type AIOutcome string

const (
	AIOutcomeSuccess AIOutcome = "success"
	AIOutcomeError   AIOutcome = "error"
)

// AIRequest is the immutable audit record of one external model call. It is
// written once at call time and later consulted for key-rotation diagnostics
// and cost accounting.
type AIRequest struct {
	ID              string
	Stage           string
	Model           string
	KeyLabel        string
	DocumentCount   int
	PromptChars     int
	ResponseChars   int
	EstimatedTokens int
	Outcome         AIOutcome
	Error           string
	Latency         time.Duration
	CreatedAt       time.Time
}

package domain

import "github.com/google/uuid"

// Chat roles for conversation turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversation history entry.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage holds per-request usage metrics. Token counts are code-point
// estimates, not tokenizer-accurate counts.
type Usage struct {
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	LatencyMs        int64  `json:"latencyMs"`
	TraceID          string `json:"traceId"`
	Characters       int    `json:"characters"`
}

// NewUsage creates usage metrics with a fresh trace id.
func NewUsage(promptTokens, completionTokens int, latencyMs int64, characters int) Usage {
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		LatencyMs:        latencyMs,
		TraceID:          uuid.NewString(),
		Characters:       characters,
	}
}

// Result is a completed chat answer.
type Result struct {
	Answer    string `json:"answer"`
	SessionID string `json:"sessionId"`
	Usage     Usage  `json:"usage"`
}

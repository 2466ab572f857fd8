package agent

import "time"

// Generation statuses.
const (
	GenerationStatusCompleted = "completed"
	GenerationStatusFailed    = "failed"
)

// Generation records one LLM response received for a context: token usage,
// timing, finish reason and the raw request/response payloads for audit.
// A context may have 0..N generations (one per turn in a tool-calling loop).
type Generation struct {
	ID                string         `json:"id" db:"id"`
	ContextID         string         `json:"context_id" db:"context_id"`
	ResponseMessageID *string        `json:"response_message_id,omitempty" db:"response_message_id"`
	ProviderID        string         `json:"provider_id,omitempty" db:"provider_id"`
	Model             string         `json:"model,omitempty" db:"model"`
	FinishReason      string         `json:"finish_reason,omitempty" db:"finish_reason"`
	InputTokens       int            `json:"input_tokens" db:"input_tokens"`
	OutputTokens      int            `json:"output_tokens" db:"output_tokens"`
	TotalTokens       int            `json:"total_tokens" db:"total_tokens"`
	CachedTokens      *int           `json:"cached_tokens,omitempty" db:"cached_tokens"`
	ReasoningTokens   *int           `json:"reasoning_tokens,omitempty" db:"reasoning_tokens"`
	DurationMS        *int           `json:"duration_ms,omitempty" db:"duration_ms"`
	RawRequest        map[string]any `json:"raw_request,omitempty" db:"raw_request"`
	RawResponse       map[string]any `json:"raw_response,omitempty" db:"raw_response"`
	ProviderDetails   map[string]any `json:"provider_details,omitempty" db:"provider_details"`
	Status            string         `json:"status" db:"status"`
	ErrorMessage      string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// ResponseMessage is the assistant message carried by an LLM response.
type ResponseMessage struct {
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Usage carries the token and timing counters reported by the provider.
type Usage struct {
	InputTokens     int            `json:"input_tokens"`
	OutputTokens    int            `json:"output_tokens"`
	TotalTokens     int            `json:"total_tokens"`
	CachedTokens    *int           `json:"cached_tokens,omitempty"`
	ReasoningTokens *int           `json:"reasoning_tokens,omitempty"`
	DurationMS      *int           `json:"duration_ms,omitempty"`
	ProviderDetails map[string]any `json:"provider_details,omitempty"`
}

// LLMResponse is the provider-agnostic shape of a generation result. The LLM
// client itself lives outside the engine; callers adapt their provider's
// response into this value before recording it.
type LLMResponse struct {
	ID           string           `json:"id"`
	Model        string           `json:"model"`
	FinishReason string           `json:"finish_reason"`
	Message      *ResponseMessage `json:"message,omitempty"`
	Usage        *Usage           `json:"usage,omitempty"`
	RawRequest   map[string]any   `json:"raw_request,omitempty"`
	RawResponse  map[string]any   `json:"raw_response,omitempty"`
}

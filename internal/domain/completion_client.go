package domain

import "context"

// ChatMessage is one OpenAI-style message in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionUsage carries the token meters of one completion call.
type CompletionUsage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// CompletionResult is the first-choice text of a completion plus its usage
// and billed cost, lifted out of the gateway's transaction envelope.
type CompletionResult struct {
	Text  string
	Model string
	Usage CompletionUsage
	Cost  float64
}

// CompletionClient sends chat-completion requests to the remote language
// model behind the gateway.
type CompletionClient interface {
	Complete(ctx context.Context, messages []ChatMessage, maxTokens int) (*CompletionResult, error)
	Model() string
}

package schema

// The typed request shapes below exist only to carry `validate` struct
// tags for the validated provider routes; they are decode targets
// for the schema pass, not shared with the forwarder, which still relays
// the original raw bytes untouched.

// openAIChatRequest is POST /v1/chat/completions.
type openAIChatRequest struct {
	Model       string          `json:"model" validate:"required"`
	Messages    []openAIMessage `json:"messages" validate:"required,dive"`
	MaxTokens   *float64        `json:"max_tokens" validate:"omitempty,min=1,max=4096"`
	Temperature *float64        `json:"temperature" validate:"omitempty,min=0,max=2"`
	TopP        *float64        `json:"top_p" validate:"omitempty,min=0,max=1"`
	Stream      *bool           `json:"stream"`
	Functions   []any           `json:"functions"`
	Tools       []any           `json:"tools"`
}

type openAIMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant tool function"`
	Content any    `json:"content"`
}

// anthropicMessagesRequest is POST /v1/messages.
type anthropicMessagesRequest struct {
	Model       string             `json:"model" validate:"required"`
	Messages    []anthropicMessage `json:"messages" validate:"required,dive"`
	MaxTokens   *float64           `json:"max_tokens" validate:"required,min=1,max=4096"`
	Temperature *float64           `json:"temperature" validate:"omitempty,min=0,max=1"`
	TopP        *float64           `json:"top_p" validate:"omitempty,min=0,max=1"`
	TopK        *float64           `json:"top_k" validate:"omitempty,min=0"`
	Stream      *bool              `json:"stream"`
	System      string             `json:"system"`
}

type anthropicMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content any    `json:"content"`
}

// geminiGenerateContentRequest is POST
// /v1beta/models/:model/generateContent.
type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents" validate:"required,dive"`
	Tools            []any                   `json:"tools"`
	SafetySettings   []any                   `json:"safetySettings"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig" validate:"omitempty"`
}

type geminiContent struct {
	Role  string      `json:"role" validate:"omitempty,oneof=user model"`
	Parts []geminiPart `json:"parts" validate:"required,min=1,dive"`
}

type geminiPart struct {
	Text string `json:"text"`
	// Other part shapes (inlineData, functionCall, functionResponse) pass
	// through unvalidated; only role and part presence are checked at
	// this level.
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature" validate:"omitempty,min=0,max=1"`
	TopP            *float64 `json:"topP" validate:"omitempty,min=0,max=1"`
	TopK            *float64 `json:"topK" validate:"omitempty,min=1"`
	CandidateCount  *int     `json:"candidateCount" validate:"omitempty,min=1,max=8"`
	MaxOutputTokens *int     `json:"maxOutputTokens" validate:"omitempty,min=1,max=8192"`
}

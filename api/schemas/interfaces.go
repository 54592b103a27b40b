// api/schemas/interfaces.go
package schemas

import "context"

// ModelTier allows for selecting a model based on a preference for speed
// versus capability.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// ImagePart is an inline image attached to a generation request.
type ImagePart struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// GenerationOptions controls the sampling behaviour of a single request.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// GenerationRequest encapsulates a complete request to the model: system and
// user prompts, optional screenshots, the desired tier and sampling options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Images       []ImagePart       `json:"-"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a multimodal
// model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close releases any resources held by the client.
	Close() error
}

package schemas

import (
	"context"
	"encoding/json"
)

// -- Generation Interfaces --

// Task names the kind of work requested from a GenerativeClient.
type Task string

const (
	TaskIdentifyElements Task = "identify-elements"
	TaskMapStateID       Task = "map-state-id"
	TaskGenerateXPaths   Task = "generate-xpaths"
	TaskRepairXPaths     Task = "repair-xpaths"
)

// StateInput is the per-state material attached to a generation call.
type StateInput struct {
	StateID    string `json:"stateId"`
	Title      string `json:"title"`
	Screenshot string `json:"-"`
	PageSource string `json:"pageSource,omitempty"`
}

// GenerationContext is the payload of one generation call. Which fields are
// populated depends on the Task.
type GenerationContext struct {
	PageID   string `json:"pageId,omitempty"`
	PageName string `json:"pageName,omitempty"`
	Platform string `json:"platform"`
	StateID  string `json:"stateId,omitempty"`
	Attempt  int    `json:"attempt"`

	States   []StateInput         `json:"states,omitempty"`
	Elements []Element            `json:"elements,omitempty"`
	Locators []ElementWithLocator `json:"locators,omitempty"`

	// PageSource and Screenshot describe the single state a synthesis or
	// repair call targets.
	PageSource string `json:"pageSource,omitempty"`
	Screenshot string `json:"-"`
}

// RawModelOutput is what a GenerativeClient returns. Data carries output the
// client already decoded; otherwise Text must be parsed as JSON.
type RawModelOutput struct {
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// GenerativeClient is the only capability the orchestrators need from an AI
// backend. Errors are treated as transient unless wrapped as permanent.
type GenerativeClient interface {
	Generate(ctx context.Context, task Task, gc GenerationContext) (RawModelOutput, error)
}

// DiagnosticSink receives write-only diagnostic records. Implementations must
// not block the caller for long and must tolerate concurrent use.
type DiagnosticSink interface {
	Record(label string, data any)
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Record(string, any) {}

// -- LLM Interfaces --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls sampling and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// ImagePart is an inline image sent alongside a prompt.
type ImagePart struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, any screenshots, the desired model tier, and
// generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Images       []ImagePart       `json:"images,omitempty"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

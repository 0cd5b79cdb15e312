package ai

import (
	"context"
	"errors"
	"strings"
)

// ImageOptions is the subset of generation options that affects the
// produced image. Dedup keys are built from exactly these fields.
type ImageOptions struct {
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Model   string `json:"model,omitempty"`
	Style   string `json:"style,omitempty"`
}

// ImageData is one generated image, base64 encoded.
type ImageData struct {
	B64JSON string `json:"b64_json"`
}

// ImageResult mirrors the provider response shape.
type ImageResult struct {
	Data []ImageData `json:"data"`
}

// CallOptions steers text calls. Schema, when set, is embedded in the
// instruction so the model answers with a matching JSON object.
type CallOptions struct {
	Model  string         `json:"model,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

// Client is the AI generation collaborator.
type Client interface {
	// Name identifies the provider/model pair, for logs.
	Name() string
	// ImageGen produces an image for the prompt. The result always
	// carries at least one entry on success.
	ImageGen(ctx context.Context, prompt string, opts *ImageOptions) (*ImageResult, error)
	// CallAI asks the model for a text (usually JSON) answer.
	CallAI(ctx context.Context, prompt string, opts *CallOptions) (string, error)
	// Close releases provider resources.
	Close() error
}

// ErrEmptyResponse marks a provider reply that carried no usable
// payload.
var ErrEmptyResponse = errors.New("ai: empty response from model")

// IsModerationError reports whether the provider refused the prompt on
// content-policy grounds. Providers embed the reason as a code inside
// the error payload, so detection is by substring.
func IsModerationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "moderation_blocked") ||
		strings.Contains(msg, "content_policy_violation") ||
		strings.Contains(msg, "safety")
}

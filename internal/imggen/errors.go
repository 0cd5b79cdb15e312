package imggen

import (
	"errors"
	"fmt"

	"imggen/internal/ai"
)

var (
	// ErrMissingInput: neither a prompt nor a document id was supplied.
	ErrMissingInput = errors.New("imggen: prompt or document id is required")
	// ErrDocumentNotFound: the store has no such record, or the record
	// has no readable image attachment.
	ErrDocumentNotFound = errors.New("imggen: document not found")
)

// GenerationError wraps a rejection from the AI client or a response
// that lacked the expected image payload.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	if e == nil || e.Err == nil {
		return "imggen: generation failed"
	}
	if e.Moderated() {
		return fmt.Sprintf("imggen: generation blocked by content moderation: %v", e.Err)
	}
	return fmt.Sprintf("imggen: generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Moderated reports whether the provider refused the prompt on
// content-policy grounds.
func (e *GenerationError) Moderated() bool {
	if e == nil {
		return false
	}
	return ai.IsModerationError(e.Err)
}

// Package vibes asks the model to rewrite an HTML fragment. It is the
// server-side half of the page-injection helper: callers hand over the
// current markup and an instruction, and get replacement markup (plus
// an optional script) back.
package vibes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"imggen/internal/ai"
)

// RewriteRequest carries the instruction and the fragment to rewrite.
type RewriteRequest struct {
	Prompt string `json:"prompt"`
	HTML   string `json:"html"`
}

// RewriteResult is the model's answer. HTML is always present; Script
// and Explanation are optional.
type RewriteResult struct {
	HTML        string `json:"html"`
	Script      string `json:"script,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// responseSchema constrains the model to the JSON object Rewrite parses.
var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"html":        map[string]any{"type": "string"},
		"script":      map[string]any{"type": "string"},
		"explanation": map[string]any{"type": "string"},
	},
	"required": []string{"html"},
}

// Rewrite sends the fragment and instruction to the model and parses
// the rewritten markup out of its reply.
func Rewrite(ctx context.Context, client ai.Client, req RewriteRequest) (*RewriteResult, error) {
	if client == nil {
		return nil, fmt.Errorf("vibes: ai client is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("vibes: prompt is required")
	}

	raw, err := client.CallAI(ctx, buildPrompt(prompt, req.HTML), &ai.CallOptions{
		Schema: responseSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("vibes: model call failed: %w", err)
	}
	result, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func buildPrompt(instruction, html string) string {
	var b strings.Builder
	b.WriteString("Rewrite the HTML fragment below according to the instruction.\n")
	b.WriteString("Respond with a single JSON object with keys \"html\" (required), ")
	b.WriteString("\"script\" and \"explanation\" (optional). Do not wrap the JSON in markdown.\n\n")
	b.WriteString("Instruction: ")
	b.WriteString(instruction)
	if strings.TrimSpace(html) != "" {
		b.WriteString("\n\nCurrent fragment:\n")
		b.WriteString(html)
	}
	return b.String()
}

// parseResponse tolerates the usual model quirks: markdown code fences
// around the JSON and prose before or after the object.
func parseResponse(raw string) (*RewriteResult, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("vibes: no JSON object in model response")
	}
	var result RewriteResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("vibes: malformed model response: %w", err)
	}
	if strings.TrimSpace(result.HTML) == "" {
		return nil, fmt.Errorf("vibes: model response is missing html")
	}
	return &result, nil
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

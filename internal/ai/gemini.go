package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli        *genai.Client
	imageModel string
	textModel  string
	rl         *rpsLimiter
}

type GeminiConfig struct {
	APIKey     string
	ImageModel string
	TextModel  string
	// RPS <= 0 disables the limiter.
	RPS   float64
	Burst int
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	imageModel := strings.TrimSpace(cfg.ImageModel)
	if imageModel == "" {
		imageModel = "imagen-3.0-generate-002"
	}
	textModel := strings.TrimSpace(cfg.TextModel)
	if textModel == "" {
		textModel = "gemini-2.0-flash"
	}
	return &GeminiClient{
		cli:        cli,
		imageModel: imageModel,
		textModel:  textModel,
		rl:         newRPSLimiter(cfg.RPS, cfg.Burst),
	}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.imageModel }

func (g *GeminiClient) Close() error {
	if g != nil && g.rl != nil {
		g.rl.Stop()
	}
	return nil
}

// ImageGen generates one image and returns it base64 encoded.
func (g *GeminiClient) ImageGen(ctx context.Context, prompt string, opts *ImageOptions) (*ImageResult, error) {
	if g == nil || g.cli == nil {
		return nil, fmt.Errorf("client is nil")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	model := g.imageModel
	if opts != nil && strings.TrimSpace(opts.Model) != "" {
		model = strings.TrimSpace(opts.Model)
	}
	config := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	}
	if opts != nil {
		if ratio := sizeToAspectRatio(opts.Size); ratio != "" {
			config.AspectRatio = ratio
		}
	}
	log.Printf("image generation request (%s): %d bytes of prompt", model, len(prompt))

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		// Respect RPS limiter per attempt (each API call consumes a token).
		if err := g.rl.Acquire(ctx); err != nil {
			return nil, err
		}
		resp, err := g.cli.Models.GenerateImages(ctx, model, prompt, config)
		if err != nil {
			lastErr = err
			// Moderation refusals never succeed on retry.
			if IsModerationError(err) {
				return nil, err
			}
		} else if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
			lastErr = ErrEmptyResponse
		} else {
			return &ImageResult{Data: []ImageData{{
				B64JSON: base64.StdEncoding.EncodeToString(resp.GeneratedImages[0].Image.ImageBytes),
			}}}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		}
	}
	return nil, lastErr
}

// CallAI sends the prompt and requests application/json when a schema
// is supplied. The schema is embedded in the instruction text.
func (g *GeminiClient) CallAI(ctx context.Context, prompt string, opts *CallOptions) (string, error) {
	if g == nil || g.cli == nil {
		return "", fmt.Errorf("client is nil")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}
	model := g.textModel
	full := prompt
	config := &genai.GenerateContentConfig{}
	if opts != nil {
		if strings.TrimSpace(opts.Model) != "" {
			model = strings.TrimSpace(opts.Model)
		}
		if len(opts.Schema) > 0 {
			schema, _ := json.MarshalIndent(opts.Schema, "", "  ")
			full = prompt + "\n\nRespond with a single JSON object matching this schema:\n" + string(schema)
			config.ResponseMIMEType = "application/json"
		}
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := g.rl.Acquire(ctx); err != nil {
			return "", err
		}
		resp, err := g.cli.Models.GenerateContent(ctx, model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
			config,
		)
		if err != nil {
			lastErr = err
			if IsModerationError(err) {
				return "", err
			}
		} else if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = ErrEmptyResponse
		} else {
			return resp.Candidates[0].Content.Parts[0].Text, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		}
	}
	return "", lastErr
}

// sizeToAspectRatio maps "WxH" size strings to the aspect ratios the
// image API accepts. Unknown sizes fall back to the model default.
func sizeToAspectRatio(size string) string {
	size = strings.ToLower(strings.TrimSpace(size))
	if size == "" {
		return ""
	}
	parts := strings.SplitN(size, "x", 2)
	if len(parts) != 2 {
		return ""
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return ""
	}
	switch {
	case w == h:
		return "1:1"
	case w*9 >= h*16:
		return "16:9"
	case h*9 >= w*16:
		return "9:16"
	case w > h:
		return "4:3"
	default:
		return "3:4"
	}
}

package ai

import (
	"context"
	"encoding/base64"
	"sync"
	"time"
)

// FakeClient returns deterministic payloads for offline runs and tests.
// Errors and delays can be scripted per call.
type FakeClient struct {
	mu sync.Mutex

	imageGenCalls int
	callAICalls   int

	// ImagePayload is returned (base64 encoded) from ImageGen. Defaults
	// to a tiny placeholder when empty.
	ImagePayload []byte
	// CallAIResponse is returned verbatim from CallAI.
	CallAIResponse string
	// ImageGenErr / CallAIErr, when set, fail the corresponding call.
	ImageGenErr error
	CallAIErr   error
	// Delay is waited before answering, to widen race windows in tests.
	Delay time.Duration
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) Name() string { return "FakeAI" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) ImageGen(ctx context.Context, prompt string, _ *ImageOptions) (*ImageResult, error) {
	f.mu.Lock()
	f.imageGenCalls++
	payload := f.ImagePayload
	genErr := f.ImageGenErr
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if genErr != nil {
		return nil, genErr
	}
	if len(payload) == 0 {
		payload = []byte("fake image for: " + prompt)
	}
	return &ImageResult{Data: []ImageData{{
		B64JSON: base64.StdEncoding.EncodeToString(payload),
	}}}, nil
}

func (f *FakeClient) CallAI(ctx context.Context, _ string, _ *CallOptions) (string, error) {
	f.mu.Lock()
	f.callAICalls++
	resp := f.CallAIResponse
	callErr := f.CallAIErr
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if callErr != nil {
		return "", callErr
	}
	if resp == "" {
		resp = `{"html":"<div>fake</div>"}`
	}
	return resp, nil
}

// ImageGenCalls reports how many times ImageGen was invoked.
func (f *FakeClient) ImageGenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageGenCalls
}

// CallAICalls reports how many times CallAI was invoked.
func (f *FakeClient) CallAICalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callAICalls
}

// SetImageGenErr scripts the next ImageGen outcomes.
func (f *FakeClient) SetImageGenErr(err error) {
	f.mu.Lock()
	f.ImageGenErr = err
	f.mu.Unlock()
}

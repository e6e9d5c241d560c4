package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultModel   = "gemini-2.0-flash"
	maxRetries     = 3
	initialBackoff = time.Second
)

// Gemini implements Client against the Gemini API
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client. An empty model selects the default.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Close releases the underlying connection
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Complete sends the messages to the model and returns the concatenated
// candidate text. Retries with exponential backoff on transient failures;
// rate limits and persistent failures map to the package sentinels.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(req.Temperature)
	if req.JSONOutput {
		model.ResponseMIMEType = "application/json"
	}

	var system []string
	var parts []genai.Part
	history := make([]*genai.Content, 0, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			history = append(history, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		default:
			if i == len(req.Messages)-1 {
				parts = append(parts, genai.Text(msg.Content))
			} else {
				history = append(history, &genai.Content{
					Role:  "user",
					Parts: []genai.Part{genai.Text(msg.Content)},
				})
			}
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no user message to complete")
	}

	session := model.StartChat()
	session.History = history

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
			backoff *= 2
		}

		resp, err := session.SendMessage(ctx, parts...)
		if err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			lastErr = err
			continue
		}

		text := collectText(resp)
		if text != "" {
			return text, nil
		}
		lastErr = fmt.Errorf("model returned empty content")
	}

	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func collectText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonUnspecified {
			log.Printf("Warning: candidate finished with reason %v", cand.FinishReason)
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}

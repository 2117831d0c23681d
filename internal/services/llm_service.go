package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// RateLimitError marks provider throttling. The pipelines treat it
// differently from other failures: cooldown and retry, no attempt counted.
type RateLimitError struct {
	Message    string
	RetryAfter int // seconds, advisory
}

func (e *RateLimitError) Error() string {
	return e.Message
}

var rateLimitMarkers = []string{
	"rate limit",
	"too many requests",
	"quota exceeded",
	"429",
}

type LLMService struct {
	Client llms.Model
}

// NewLLMService initializes the shared Gemini client.
func NewLLMService(apiKey, model string) *LLMService {
	if apiKey == "" {
		log.Fatal("CRITICAL ERROR: GEMINI_API_KEY is empty. Did you load the .env file?")
	}

	ctx := context.Background()
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		log.Fatal("Failed to create Gemini client:", err)
	}

	return &LLMService{Client: llm}
}

// NewLLMServiceWithModel wraps an existing model, used by tests to inject a
// scripted fake.
func NewLLMServiceWithModel(model llms.Model) *LLMService {
	return &LLMService{Client: model}
}

// RunPrompt sends one prompt and returns the cleaned-up text response.
// Provider throttling is surfaced as *RateLimitError whether it arrives as
// an API error or as apology text in the completion itself.
func (s *LLMService) RunPrompt(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := llms.GenerateFromSinglePrompt(ctx, s.Client, prompt, options...)
	if err != nil {
		if isRateLimitMessage(err.Error()) {
			return "", &RateLimitError{Message: fmt.Sprintf("rate limited by LLM provider: %v", err), RetryAfter: 60}
		}
		return "", err
	}

	if resp == "" {
		return "", fmt.Errorf("no response from LLM")
	}
	if isRateLimitMessage(resp) {
		return "", &RateLimitError{Message: "rate limited by LLM provider", RetryAfter: 60}
	}

	return cleanResponse(resp), nil
}

func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// cleanResponse strips reasoning-model prefixes and markdown fences so
// callers can go straight to JSON parsing.
func cleanResponse(content string) string {
	for _, tag := range []string{"</thought>", "</think>"} {
		if idx := strings.Index(content, tag); idx >= 0 {
			content = content[idx+len(tag):]
		}
	}
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.ReplaceAll(content, "```", "")
	return strings.TrimSpace(content)
}

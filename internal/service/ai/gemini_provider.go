package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const defaultSystemPrompt = "You are a friendly WhatsApp assistant. Answer briefly in the language the user writes in."

var ErrNoAPIKey = errors.New("Gemini API key not configured")

type GeminiConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// GeminiProvider answers free-form chat messages. The SDK client is created
// lazily on the first request and reused afterwards.
type GeminiProvider struct {
	cfg GeminiConfig
	log zerolog.Logger

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewGeminiProvider(cfg GeminiConfig, log zerolog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	cfg.Model = strings.TrimPrefix(cfg.Model, "models/")
	return &GeminiProvider{cfg: cfg, log: log.With().Str("component", "gemini").Logger()}, nil
}

func (p *GeminiProvider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		p.client, p.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if p.initErr != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", p.initErr)
	}
	return p.client, nil
}

// GenerateReply implements service.AIResponder.
func (p *GeminiProvider) GenerateReply(ctx context.Context, botID, sender, text string) (string, error) {
	client, err := p.genaiClient(ctx)
	if err != nil {
		return "", err
	}

	temp := float32(p.cfg.Temperature)
	result, err := client.Models.GenerateContent(
		ctx,
		p.cfg.Model,
		genai.Text(BuildPrompt(sender, text)),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: p.cfg.SystemPrompt}},
			},
			Temperature:     &temp,
			MaxOutputTokens: int32(p.cfg.MaxTokens),
		},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini SDK Error: %w", err)
	}

	reply, err := ExtractText(result)
	if err != nil {
		return "", err
	}
	p.log.Debug().Str("bot", botID).Int("chars", len(reply)).Msg("gemini reply generated")
	return reply, nil
}

func BuildPrompt(sender, text string) string {
	if sender == "" {
		return "Customer: " + text
	}
	return fmt.Sprintf("Customer (%s): %s", sender, text)
}

// ExtractText joins the text parts of the first candidate.
func ExtractText(result *genai.GenerateContentResponse) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nil result from Gemini")
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in Gemini response")
	}

	candidate := result.Candidates[0]
	if candidate.Content == nil {
		return "", fmt.Errorf("nil content in candidate")
	}

	var textParts []string
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	responseText := strings.TrimSpace(strings.Join(textParts, " "))
	if responseText == "" {
		return "", fmt.Errorf("empty response from Gemini (finish reason %q)", candidate.FinishReason)
	}
	return responseText, nil
}

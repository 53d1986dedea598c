package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	PoemPrompt = "Write a dark gothic poem of four stanzas that cryptically references these three details: %s, %s, %s. " +
		"Return only the poem."
	CrypticPrompt = "Turn these three details into a short, ominous, cryptic message: %s, %s, %s. " +
		"Return only the message."

	defaultMaxTokens   = 1000
	defaultTemperature = 0.8
	defaultMinLength   = 50
	defaultTimeout     = 10 * time.Second
)

type ServiceConfig struct {
	Endpoint    string
	APIKey      string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	// MinLength is the shortest response accepted before falling back.
	MinLength int
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// ServiceGenerator asks an external text generation endpoint for content and
// falls back to another Generator whenever the endpoint fails.
type ServiceGenerator struct {
	cfg      ServiceConfig
	prompt   string
	client   *http.Client
	fallback Generator
	log      *zap.Logger
}

func NewServiceGenerator(cfg ServiceConfig, prompt string, fallback Generator, logger *zap.Logger) *ServiceGenerator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaultMinLength
	}

	return &ServiceGenerator{
		cfg:      cfg,
		prompt:   prompt,
		client:   &http.Client{Timeout: cfg.Timeout},
		fallback: fallback,
		log:      logger,
	}
}

func (g *ServiceGenerator) Generate(ctx context.Context, inputs []string) string {
	text, err := g.request(ctx, CluesFrom(inputs))
	if err != nil {
		g.log.Warn("content service failed, using fallback", zap.String("endpoint", g.cfg.Endpoint), zap.Error(err))
		return g.fallback.Generate(ctx, inputs)
	}

	return text
}

func (g *ServiceGenerator) request(ctx context.Context, clues Clues) (string, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:      fmt.Sprintf(g.prompt, clues.First, clues.Second, clues.Third),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	text := strings.TrimSpace(out.Text)
	if len(text) < g.cfg.MinLength {
		return "", fmt.Errorf("response too short (%d chars)", len(text))
	}

	return text, nil
}

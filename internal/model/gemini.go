package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmaher/parley/internal/config"
	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/tool"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// GeminiGateway is a direct HTTP client for the Google Gemini API.
type GeminiGateway struct {
	apiKey      string
	model       string
	endpoint    string
	temperature *float64
	maxTokens   int
	client      *http.Client
}

// NewGeminiGateway creates a Gemini-backed model gateway from config.
func NewGeminiGateway(cfg config.ModelConfig) *GeminiGateway {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	return &GeminiGateway{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		endpoint:    strings.TrimRight(endpoint, "/"),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *GeminiGateway) Name() string { return "gemini" }

// Ready reports whether an API key is configured.
func (g *GeminiGateway) Ready() bool { return g.apiKey != "" }

// Decide sends the rendered history to Gemini and parses the reply into a
// Decision. Native function calls take precedence over fenced tool blocks.
func (g *GeminiGateway) Decide(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
	if !g.Ready() {
		return domain.Decision{}, Unavailable(g.Name(), nil, "no API key configured")
	}

	payload, err := json.Marshal(g.buildRequestBody(history, tools))
	if err != nil {
		return domain.Decision{}, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.endpoint, g.model, url.QueryEscape(g.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return domain.Decision{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.Decision{}, Unavailable(g.Name(), err, "request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Decision{}, Unavailable(g.Name(), err, "reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Decision{}, Unavailable(g.Name(), nil, "API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.Decision{}, Malformed(g.Name(), "unparseable response body: %v", err)
	}

	return g.responseToDecision(&result)
}

func (g *GeminiGateway) buildRequestBody(history []domain.Message, tools []tool.Definition) map[string]any {
	prompt := buildSystemPrompt(tools) + "\n\n" + renderHistory(history)

	genCfg := map[string]any{}
	if g.maxTokens > 0 {
		genCfg["maxOutputTokens"] = g.maxTokens
	}
	if g.temperature != nil {
		genCfg["temperature"] = *g.temperature
	}

	return map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": prompt}},
			},
		},
		"generationConfig": genCfg,
	}
}

func (g *GeminiGateway) responseToDecision(resp *geminiResponse) (domain.Decision, error) {
	if len(resp.Candidates) == 0 {
		return domain.Decision{}, Malformed(g.Name(), "no candidates in response")
	}

	var content strings.Builder
	var reqs []domain.ToolRequest
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			content.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			input := part.FunctionCall.Args
			if input == nil {
				input = map[string]any{}
			}
			reqs = append(reqs, domain.ToolRequest{Tool: part.FunctionCall.Name, Input: input})
		}
	}

	// Native function calls win over fenced blocks.
	if len(reqs) > 0 {
		d := domain.RequestTools(reqs...)
		d.Answer = stripToolBlocks(content.String())
		if err := d.Validate(); err != nil {
			return domain.Decision{}, Malformed(g.Name(), "invalid function call: %v", err)
		}
		return d, nil
	}

	return parseDecision(g.Name(), content.String())
}

// API response structures.

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content struct {
		Parts []geminiPart `json:"parts"`
		Role  string       `json:"role"`
	} `json:"content"`
	FinishReason string `json:"finishReason"`
}

type geminiPart struct {
	Text         string `json:"text,omitempty"`
	FunctionCall *struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"functionCall,omitempty"`
}

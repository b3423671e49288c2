package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/normanking/veriflow/internal/dataset"
)

// maxErrorBodySize limits how much of an error response is read (1MB)
const maxErrorBodySize = 1 * 1024 * 1024

const (
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel    = "gemini-2.5-flash"
)

// GeminiConfig configures the Gemini analyzer
type GeminiConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
	Client   *http.Client
}

// Gemini implements Analyzer with the generateContent REST endpoint.
type Gemini struct {
	config GeminiConfig
	client *http.Client
}

// NewGemini creates a Gemini analyzer, filling unset fields with defaults.
func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Gemini{config: cfg, client: client}
}

// Name returns the provider identifier
func (g *Gemini) Name() string {
	return "gemini"
}

// Model returns the configured model name
func (g *Gemini) Model() string {
	return g.config.Model
}

// Analyze asks the model for a JSON answer constrained by resultSchema.
func (g *Gemini) Analyze(ctx context.Context, prompt string, data *dataset.Dataset) (*Result, error) {
	if g.config.APIKey == "" {
		return nil, unavailable(ReasonConfig, errors.New("gemini API key not configured"))
	}
	if data == nil {
		data = &dataset.Dataset{}
	}

	products, err := data.PrettyJSON()
	if err != nil {
		return nil, unavailable(ReasonConfig, err)
	}

	req := geminiGenerateRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: fmt.Sprintf(systemInstructionTemplate, products)}},
		},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   resultSchema,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, unavailable(ReasonConfig, fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.config.Endpoint, g.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, unavailable(ReasonTransport, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Key goes in a header so it never shows up in logged URLs.
	httpReq.Header.Set("x-goog-api-key", g.config.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, unavailable(ReasonTransport, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, unavailable(ReasonStatus, fmt.Errorf("gemini error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var geminiResp geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, unavailable(ReasonDecode, fmt.Errorf("decode response: %w", err))
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, unavailable(ReasonEmpty, errors.New("no candidates in response"))
	}

	var text strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	payload := strings.TrimSpace(text.String())
	if payload == "" {
		return nil, unavailable(ReasonEmpty, errors.New("API returned an empty response"))
	}

	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, unavailable(ReasonDecode, fmt.Errorf("parse model output: %w", err))
	}
	result.normalize()
	return &result, nil
}

// Gemini API types
type geminiGenerateRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

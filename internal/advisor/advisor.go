// Package advisor asks an LLM for non-binding second opinions on signals,
// pending orders, and open positions. Every path degrades gracefully: no API
// key means no advisor, and a failed call is logged, never propagated into
// the trading lifecycle.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"stonks/internal/domain"
)

const defaultModel = "gpt-4o-mini"

// Client wraps one chat model.
type Client struct {
	model     llms.Model
	modelName string
	log       *slog.Logger
}

// New creates an advisor client. An empty apiKey returns (nil, nil): the
// caller runs without advisories.
func New(apiKey, model, baseURL string, log *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, nil
	}
	if model == "" {
		model = defaultModel
	}
	if log == nil {
		log = slog.Default()
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	return &Client{model: llm, modelName: model, log: log}, nil
}

// advice is the JSON shape every prompt asks the model to produce.
type advice struct {
	Recommendation string `json:"recommendation"`
	Confidence     int    `json:"confidence"`
	Reasoning      string `json:"reasoning"`
}

// AnalyzeSignal reviews a fresh signal and its suggestion.
func (c *Client) AnalyzeSignal(ctx context.Context, sig *domain.Signal, sug *domain.TradeSuggestion) (*domain.Analysis, error) {
	return c.ask(ctx, domain.AnalysisTypeSignal, signalSystemPrompt, signalUserPrompt(sig, sug))
}

// AdviseApproval reviews an order awaiting operator approval.
func (c *Client) AdviseApproval(ctx context.Context, o *domain.Order, phase domain.SessionPhase, minutesToClose int) (*domain.Analysis, error) {
	a, err := c.ask(ctx, domain.AnalysisTypeApproval, approvalSystemPrompt, approvalUserPrompt(o, phase, minutesToClose))
	if err != nil {
		return nil, err
	}
	a.OrderID = o.ID
	return a, nil
}

// EvaluateExit reviews an open position against its current mark.
func (c *Client) EvaluateExit(ctx context.Context, p *domain.Position, currentPrice float64, minutesToDeadline int) (*domain.Analysis, error) {
	a, err := c.ask(ctx, domain.AnalysisTypeExit, exitSystemPrompt, exitUserPrompt(p, currentPrice, minutesToDeadline))
	if err != nil {
		return nil, err
	}
	a.PositionID = p.ID
	return a, nil
}

// ask runs one chat round and parses the advice out of the reply.
func (c *Client) ask(ctx context.Context, kind domain.AnalysisType, system, user string) (*domain.Analysis, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: system}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: user}},
		},
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}
	latency := time.Since(start)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}
	choice := resp.Choices[0]

	parsed, err := parseAdvice(choice.Content)
	if err != nil {
		return nil, err
	}

	a := &domain.Analysis{
		ID:               domain.NewID(),
		Type:             kind,
		Model:            c.modelName,
		PromptTokens:     tokenCount(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: tokenCount(choice.GenerationInfo, "CompletionTokens"),
		LatencyMS:        latency.Milliseconds(),
		Recommendation:   parsed.Recommendation,
		Confidence:       parsed.Confidence,
		Reasoning:        parsed.Reasoning,
		Raw:              choice.Content,
		CreatedAt:        time.Now().UTC(),
	}
	return a, nil
}

var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseAdvice pulls the advice JSON out of a reply that may wrap it in
// markdown fences or prose.
func parseAdvice(content string) (*advice, error) {
	var a advice
	if err := json.Unmarshal([]byte(content), &a); err == nil {
		return &a, nil
	}

	cleaned := content
	if i := strings.Index(cleaned, "```json"); i >= 0 {
		cleaned = cleaned[i+len("```json"):]
		if j := strings.Index(cleaned, "```"); j >= 0 {
			cleaned = cleaned[:j]
		}
	}
	if match := jsonBlockRe.FindString(cleaned); match != "" {
		cleaned = match
	}

	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &a); err != nil {
		return nil, fmt.Errorf("parsing llm reply: %w", err)
	}
	return &a, nil
}

// tokenCount reads a usage counter from GenerationInfo, which reports values
// with provider-dependent numeric types.
func tokenCount(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

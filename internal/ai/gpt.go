package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/afisha-bot/internal/models"
)

// historyWindow caps how many prior human decisions are fed to the decider.
const historyWindow = 30

// GPTClient implements the three AI capabilities on top of OpenAI chat
// completions with strict-JSON prompts.
type GPTClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewGPTClient(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *GPTClient {
	return &GPTClient{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

func (c *GPTClient) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
		},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Classify labels the post. Unclassifiable content (call failure, parse
// failure, unknown label) degrades to AD — the pipeline fails closed.
func (c *GPTClient) Classify(ctx context.Context, text string) models.Category {
	raw, err := c.complete(ctx, fmt.Sprintf(classifyPrompt, text))
	if err != nil {
		c.logger.Error("classification call failed", zap.Error(err))
		return models.CategoryAd
	}

	var out struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		c.logger.Error("failed to parse classification response",
			zap.Error(err),
			zap.String("response", raw))
		return models.CategoryAd
	}

	switch models.Category(strings.ToUpper(out.Category)) {
	case models.CategoryEvent:
		return models.CategoryEvent
	case models.CategoryGoingOut:
		return models.CategoryGoingOut
	default:
		return models.CategoryAd
	}
}

// wireExtraction is the JSON shape the extraction prompts ask for.
type wireExtraction struct {
	Title       *string `json:"title"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Venue       *string `json:"venue"`
	CityName    *string `json:"city_name"`
	Description *string `json:"description"`
}

// Extract produces a structured candidate. Any failure yields an all-null
// Extraction rather than an error.
func (c *GPTClient) Extract(ctx context.Context, text string, refTime time.Time) models.Extraction {
	prompt := fmt.Sprintf(extractPrompt, refTime.Format(time.RFC3339), refTime.Location(), text)
	return c.runExtraction(ctx, prompt)
}

// Reextract re-runs extraction constrained by a moderator correction.
func (c *GPTClient) Reextract(ctx context.Context, text string, prior models.Extraction, correction string, refTime time.Time) models.Extraction {
	prompt := fmt.Sprintf(reextractPrompt,
		correction,
		formatExtraction(prior),
		refTime.Format(time.RFC3339),
		refTime.Location(),
		text)
	return c.runExtraction(ctx, prompt)
}

func (c *GPTClient) runExtraction(ctx context.Context, prompt string) models.Extraction {
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		c.logger.Error("extraction call failed", zap.Error(err))
		return models.Extraction{}
	}

	ex, err := parseExtraction(raw)
	if err != nil {
		c.logger.Error("failed to parse extraction response",
			zap.Error(err),
			zap.String("response", raw))
		return models.Extraction{}
	}
	return ex
}

func parseExtraction(raw string) (models.Extraction, error) {
	var wire wireExtraction
	if err := json.Unmarshal([]byte(stripFences(raw)), &wire); err != nil {
		return models.Extraction{}, err
	}

	ex := models.Extraction{}
	if wire.Title != nil {
		ex.Title = strings.TrimSpace(*wire.Title)
	}
	if wire.Venue != nil {
		ex.Venue = strings.TrimSpace(*wire.Venue)
	}
	if wire.CityName != nil {
		ex.CityName = strings.TrimSpace(*wire.CityName)
	}
	if wire.Description != nil {
		ex.Description = strings.TrimSpace(*wire.Description)
	}
	if wire.StartTime != nil {
		if t, err := time.Parse(time.RFC3339, *wire.StartTime); err == nil {
			utc := t.UTC()
			ex.StartTime = &utc
		}
	}
	if wire.EndTime != nil {
		if t, err := time.Parse(time.RFC3339, *wire.EndTime); err == nil {
			utc := t.UTC()
			ex.EndTime = &utc
		}
	}
	return ex, nil
}

// Decide predicts the moderator's verdict. Failure defaults to rejection at
// confidence 0.5, which routes the draft to human review.
func (c *GPTClient) Decide(ctx context.Context, text string, ex models.Extraction, history []models.DecisionRecord) models.Decision {
	fallback := models.Decision{
		Verdict:    models.VerdictRejected,
		Confidence: 0.5,
		Reasoning:  "manual review required",
	}

	if len(history) > historyWindow {
		history = history[:historyWindow]
	}

	prompt := fmt.Sprintf(decidePrompt, formatHistory(history), text, formatExtraction(ex))
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		c.logger.Error("decision call failed", zap.Error(err))
		return fallback
	}

	var out struct {
		Verdict    string  `json:"verdict"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		c.logger.Error("failed to parse decision response",
			zap.Error(err),
			zap.String("response", raw))
		return fallback
	}

	verdict := models.Verdict(strings.ToUpper(out.Verdict))
	if verdict != models.VerdictApproved && verdict != models.VerdictRejected {
		return fallback
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return fallback
	}

	return models.Decision{
		Verdict:    verdict,
		Confidence: out.Confidence,
		Reasoning:  out.Reasoning,
	}
}

// stripFences removes a markdown code fence the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

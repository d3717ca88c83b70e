// Package openai answers astrology prompts with the OpenAI chat API.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"astrobot-service/internal/pkg/metrics"
)

const systemPrompt = "You are an ancient Vedic astrologer. " +
	"Answer as an expert using classical wisdom and reference context if provided. " +
	"Be insightful, positive, and practical."

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// Oracle implements astro.Oracle.
type Oracle struct {
	client    *goopenai.Client
	model     string
	maxTokens int
}

func NewOracle(cfg Config) *Oracle {
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = goopenai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 600
	}
	return &Oracle{
		client:    goopenai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (o *Oracle) Ask(ctx context.Context, prompt string) (answer string, err error) {
	defer func(start time.Time) {
		metrics.ObserveExternalCall("openai", "chat_completion", err, start)
	}(time.Now())

	resp, err := o.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: o.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openai returned no answer")
	}
	return resp.Choices[0].Message.Content, nil
}

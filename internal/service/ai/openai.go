package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/zhouzirui/z-tutor/backend/internal/config"
	"github.com/zhouzirui/z-tutor/backend/internal/service/prompt"
)

// OpenAIProvider streams chat completions from any OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client oai.Client
	model  string
}

// NewOpenAIProvider builds the secondary provider.
func NewOpenAIProvider(cfg config.SecondaryAIConfig, timeout time.Duration) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &OpenAIProvider{client: oai.NewClient(opts...), model: cfg.Model}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Stream implements Provider. Deltas are forwarded through an eino pipe so that
// callers read every provider the same way.
func (p *OpenAIProvider) Stream(ctx context.Context, pr prompt.Prompt) (*schema.StreamReader[*schema.Message], error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(pr))
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()
		defer stream.Close()

		sawChoice := false
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			sawChoice = true
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if closed := sw.Send(schema.AssistantMessage(delta, nil), nil); closed {
				return
			}
		}

		switch err := stream.Err(); {
		case err != nil:
			sw.Send(nil, fmt.Errorf("openai: stream: %w", err))
		case !sawChoice:
			sw.Send(nil, fmt.Errorf("openai: no choices in stream: %w", ErrMalformedResponse))
		}
	}()
	return sr, nil
}

func (p *OpenAIProvider) params(pr prompt.Prompt) oai.ChatCompletionNewParams {
	messages := []oai.ChatCompletionMessageParamUnion{oai.SystemMessage(pr.SystemText())}
	for _, m := range pr.History {
		switch m.Role {
		case prompt.RoleUser:
			messages = append(messages, oai.UserMessage(m.Content))
		case prompt.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(m.Content))
		}
	}
	messages = append(messages, oai.UserMessage(pr.Message))

	return oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
}

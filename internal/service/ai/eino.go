package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	tutorprompt "github.com/zhouzirui/z-tutor/backend/internal/service/prompt"
)

// EinoProvider runs prompts through an eino chain: chat template then chat model.
type EinoProvider struct {
	name  string
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewEinoProvider compiles the chain around chatModel.
func NewEinoProvider(ctx context.Context, name string, chatModel model.ChatModel) (*EinoProvider, error) {
	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &EinoProvider{name: name, chain: runnable}, nil
}

// Name implements Provider.
func (p *EinoProvider) Name() string { return p.name }

// Stream implements Provider.
func (p *EinoProvider) Stream(ctx context.Context, pr tutorprompt.Prompt) (*schema.StreamReader[*schema.Message], error) {
	input := map[string]any{
		"system":  pr.SystemText(),
		"history": historyMessages(pr.History),
		"query":   pr.Message,
	}

	stream, err := p.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to stream chain output: %w", p.name, err)
	}
	log.Debug().Str("provider", p.name).Int("history", len(pr.History)).Msg("stream started")
	return stream, nil
}

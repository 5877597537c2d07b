// Package ai wraps the language model providers behind a common streaming interface.
package ai

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-tutor/backend/internal/service/prompt"
)

// ErrMalformedResponse marks a provider reply that cannot be used, such as an
// empty completion. Retrying the same provider will not help.
var ErrMalformedResponse = errors.New("malformed model response")

// Provider streams a completion for a prompt.
type Provider interface {
	Name() string
	Stream(ctx context.Context, p prompt.Prompt) (*schema.StreamReader[*schema.Message], error)
}

// historyMessages converts prompt history into eino messages.
func historyMessages(history []prompt.Message) []*schema.Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case prompt.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case prompt.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}

// Collect drains a stream into one string. It is used by tools and tests;
// the generation manager reads streams incrementally.
func Collect(sr *schema.StreamReader[*schema.Message]) (string, error) {
	defer sr.Close()
	var b strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return b.String(), err
		}
		if msg != nil {
			b.WriteString(msg.Content)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrMalformedResponse
	}
	return b.String(), nil
}

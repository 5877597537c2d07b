// Package prompt assembles the token-budgeted context sent to the language model.
package prompt

import (
	"strings"

	"github.com/zhouzirui/z-tutor/backend/internal/config"
	"github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/model/persona"
)

// Role of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one history entry in chronological order.
type Message struct {
	Role    Role
	Content string
}

// Prompt is the assembled context.
type Prompt struct {
	System   string
	History  []Message
	Learning []string
	Message  string
}

// Input is everything Build reads. It is not modified.
type Input struct {
	Persona  *persona.Persona
	Language string
	Emotion  avatar.EmotionState
	History  []chat.Turn
	Notes    []string
	Message  string
}

// Builder applies the configured budgets.
type Builder struct {
	budget    config.PromptConfig
	templates *Templates
}

// NewBuilder creates a builder with the built-in character templates.
func NewBuilder(budget config.PromptConfig) *Builder {
	return &Builder{budget: budget, templates: NewTemplates()}
}

// Build 按优先级分配预算：人设（有独立上限）> 当前消息（不截断）> 学习笔记 > 历史。
// 超出总预算时先裁历史，再裁学习笔记。
func (b *Builder) Build(in Input) Prompt {
	system := b.templates.Personality(in.Persona, in.Language)
	if hint := toneHint(in.Emotion.Label, in.Emotion.Intensity); hint != "" {
		system += "\n\n" + hint
	}
	system = truncateTokens(system, b.budget.PersonalityTokens-messageOverhead)

	remaining := b.budget.TotalTokens - MessageCost(system) - MessageCost(in.Message)

	learning, used := selectNotes(in.Notes, min(b.budget.LearningTokens, remaining))
	remaining -= used

	history := selectHistory(in.History, min(b.budget.HistoryTokens, remaining))

	return Prompt{
		System:   system,
		History:  history,
		Learning: learning,
		Message:  in.Message,
	}
}

// selectNotes keeps the most recent notes that fit, in their original order.
func selectNotes(notes []string, limit int) ([]string, int) {
	used := 0
	start := len(notes)
	for i := len(notes) - 1; i >= 0; i-- {
		cost := MessageCost(notes[i])
		if used+cost > limit {
			break
		}
		used += cost
		start = i
	}
	if start == len(notes) {
		return nil, 0
	}
	return append([]string(nil), notes[start:]...), used
}

// selectHistory walks back from the newest completed turn while it fits.
func selectHistory(turns []chat.Turn, limit int) []Message {
	var picked []chat.Turn
	used := 0
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.State != chat.TurnCompleted || t.IsError {
			continue
		}
		cost := TurnCost(t)
		if used+cost > limit {
			break
		}
		used += cost
		picked = append(picked, t)
	}

	messages := make([]Message, 0, len(picked)*2)
	for i := len(picked) - 1; i >= 0; i-- {
		messages = append(messages, Message{Role: RoleUser, Content: picked[i].Input})
		if picked[i].Output != "" {
			messages = append(messages, Message{Role: RoleAssistant, Content: picked[i].Output})
		}
	}
	return messages
}

// SystemText is the system message including learning notes.
func (p Prompt) SystemText() string {
	if len(p.Learning) == 0 {
		return p.System
	}
	var b strings.Builder
	b.WriteString(p.System)
	b.WriteString("\n\nLearning notes about this learner:\n- ")
	b.WriteString(strings.Join(p.Learning, "\n- "))
	return b.String()
}

// String renders the prompt as a single text block.
func (p Prompt) String() string {
	var b strings.Builder
	b.WriteString(p.SystemText())
	if len(p.History) > 0 {
		b.WriteString("\n\nConversation so far:")
		for _, m := range p.History {
			b.WriteString("\n")
			b.WriteString(speaker(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Content)
		}
	}
	b.WriteString("\n\nLearner: ")
	b.WriteString(p.Message)
	return b.String()
}

// Tokens estimates the cost of the whole prompt.
func (p Prompt) Tokens() int {
	total := MessageCost(p.SystemText()) + MessageCost(p.Message)
	for _, m := range p.History {
		total += MessageCost(m.Content)
	}
	return total
}

func speaker(r Role) string {
	if r == RoleAssistant {
		return "Tutor"
	}
	return "Learner"
}

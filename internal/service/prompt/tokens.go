package prompt

import (
	"unicode"

	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
)

// messageOverhead approximates the role and separator tokens of one message.
const messageOverhead = 4

// EstimateTokens 粗略估算文本 token 数：汉字/假名/韩文每个字符记 1，其余字符约 4 个记 1。
func EstimateTokens(s string) int {
	wide, other := 0, 0
	for _, r := range s {
		if isWide(r) {
			wide++
		} else {
			other++
		}
	}
	return wide + (other+3)/4
}

// MessageCost is EstimateTokens plus the per-message overhead.
func MessageCost(s string) int {
	return EstimateTokens(s) + messageOverhead
}

// TurnCost is the history cost of a turn: the learner's message and the reply.
func TurnCost(t chat.Turn) int {
	cost := MessageCost(t.Input)
	if t.Output != "" {
		cost += MessageCost(t.Output)
	}
	return cost
}

func isWide(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// truncateTokens cuts s so that its estimate stays within limit.
func truncateTokens(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if EstimateTokens(s) <= limit {
		return s
	}
	wide, other := 0, 0
	for i, r := range s {
		if isWide(r) {
			wide++
		} else {
			other++
		}
		if wide+(other+3)/4 > limit {
			return s[:i]
		}
	}
	return s
}

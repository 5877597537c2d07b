package generation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	latinTerminators = ".!?…"
	wideTerminators  = "。！？"
	closers          = "\"')]”’」』"
)

// splitter 把模型增量输出切成句子大小的片段。拼接所有片段等于原文。
type splitter struct {
	pending  string
	maxRunes int
}

func newSplitter(maxRunes int) *splitter {
	return &splitter{maxRunes: maxRunes}
}

// Push appends a delta and returns every chunk that is now complete.
func (s *splitter) Push(delta string) []string {
	s.pending += delta
	var out []string
	for {
		cut := sentenceCut(s.pending)
		if cut < 0 && s.maxRunes > 0 && utf8.RuneCountInString(s.pending) > s.maxRunes {
			cut = hardCut(s.pending, s.maxRunes)
		}
		if cut <= 0 {
			return out
		}
		out = append(out, s.pending[:cut])
		s.pending = s.pending[cut:]
	}
}

// Flush returns whatever is left.
func (s *splitter) Flush() string {
	rest := s.pending
	s.pending = ""
	return rest
}

// SplitText cuts a complete text into the chunks a stream would produce.
func SplitText(text string, maxRunes int) []string {
	sp := newSplitter(maxRunes)
	chunks := sp.Push(text)
	if rest := sp.Flush(); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// sentenceCut returns the byte offset just past the first complete sentence,
// or -1 when the buffer does not yet hold one. A latin terminator only counts
// once the next character is known to be whitespace, so "3.5" stays whole.
func sentenceCut(s string) int {
	for i, r := range s {
		wide := strings.ContainsRune(wideTerminators, r)
		if !wide && !strings.ContainsRune(latinTerminators, r) {
			continue
		}

		j := i + utf8.RuneLen(r)
		j = skip(s, j, func(r rune) bool {
			return strings.ContainsRune(latinTerminators, r) || strings.ContainsRune(wideTerminators, r) || strings.ContainsRune(closers, r)
		})
		if j == len(s) {
			if wide {
				return j
			}
			return -1
		}

		next, _ := utf8.DecodeRuneInString(s[j:])
		if wide || unicode.IsSpace(next) {
			return skip(s, j, unicode.IsSpace)
		}
	}
	return -1
}

// hardCut splits an over-long run after the last space within maxRunes runes,
// or exactly at maxRunes when there is none.
func hardCut(s string, maxRunes int) int {
	lastSpace, n := -1, 0
	for i, r := range s {
		if n == maxRunes {
			if lastSpace > 0 {
				return lastSpace
			}
			return i
		}
		if unicode.IsSpace(r) {
			lastSpace = i + utf8.RuneLen(r)
		}
		n++
	}
	return len(s)
}

func skip(s string, from int, pred func(rune) bool) int {
	for from < len(s) {
		r, size := utf8.DecodeRuneInString(s[from:])
		if !pred(r) {
			break
		}
		from += size
	}
	return from
}

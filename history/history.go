// Package history keeps the ordered question and answer exchanges of a chat
// and the selection the user moves through them.
package history

import (
	"strings"

	"voiceorb/playback"
)

// Exchange is one question and the answer to it. While the answer is pending
// Thinking is set and Text holds the placeholder.
type Exchange struct {
	Question string
	Text     string
	Reply    *playback.Reply // nil for text answers
	Thinking bool
	Failed   bool
}

// Voice reports whether the answer is playable audio.
func (e Exchange) Voice() bool { return e.Reply != nil }

// Title returns the question on one line, cut to width runes.
func (e Exchange) Title(width int) string {
	q := strings.Join(strings.Fields(e.Question), " ")
	r := []rune(q)
	if width > 0 && len(r) > width {
		if width == 1 {
			return "…"
		}
		return string(r[:width-1]) + "…"
	}
	return q
}

// History manages an ordered list of exchanges with a selection cursor.
type History struct {
	entries []Exchange
	pos     int // selected entry, -1 when empty
}

// New creates an empty History.
func New() *History {
	return &History{pos: -1}
}

// Add appends a pending exchange for question, selects it and returns its
// index.
func (h *History) Add(question, placeholder string) int {
	h.entries = append(h.entries, Exchange{Question: question, Text: placeholder, Thinking: true})
	h.pos = len(h.entries) - 1
	return h.pos
}

// ResolveLast replaces the newest pending answer. It returns false when there
// is nothing pending.
func (h *History) ResolveLast(text string, reply *playback.Reply) bool {
	return h.resolve(Exchange{Text: text, Reply: reply})
}

// FailLast replaces the newest pending answer with an error message.
func (h *History) FailLast(text string) bool {
	return h.resolve(Exchange{Text: text, Failed: true})
}

func (h *History) resolve(answer Exchange) bool {
	if len(h.entries) == 0 {
		return false
	}
	last := &h.entries[len(h.entries)-1]
	if !last.Thinking {
		return false
	}
	answer.Question = last.Question
	*last = answer
	return true
}

// Len returns the number of exchanges.
func (h *History) Len() int { return len(h.entries) }

// Current returns the selected exchange and its index.
func (h *History) Current() (Exchange, int) {
	if h.pos < 0 {
		return Exchange{}, -1
	}
	return h.entries[h.pos], h.pos
}

// Index returns the selected index, -1 when empty.
func (h *History) Index() int { return h.pos }

// Next selects the newer exchange. Returns false at the newest.
func (h *History) Next() (Exchange, bool) {
	if h.pos+1 >= len(h.entries) {
		return Exchange{}, false
	}
	h.pos++
	return h.entries[h.pos], true
}

// Prev selects the older exchange. Stays on the oldest.
func (h *History) Prev() (Exchange, bool) {
	if len(h.entries) == 0 {
		return Exchange{}, false
	}
	if h.pos > 0 {
		h.pos--
	}
	return h.entries[h.pos], true
}

// SetIndex selects entry i if it exists.
func (h *History) SetIndex(i int) {
	if i >= 0 && i < len(h.entries) {
		h.pos = i
	}
}

// Entries returns all exchanges, oldest first.
func (h *History) Entries() []Exchange { return h.entries }

// Pending reports whether the newest exchange still waits for its answer.
func (h *History) Pending() bool {
	return len(h.entries) > 0 && h.entries[len(h.entries)-1].Thinking
}

// Find returns the index of the exchange whose reply owns the session, or -1.
func (h *History) Find(sessionID string) int {
	for i, e := range h.entries {
		if e.Reply != nil && e.Reply.Owns(sessionID) {
			return i
		}
	}
	return -1
}

package turn

import "strings"

// UtteranceBuffer accumulates text fragments for one logical turn.
// It is owned by the coordinator's event loop and never shared across
// turns, so it needs no locking.
type UtteranceBuffer struct {
	parts []string
}

// Append adds one fragment in arrival order.
func (b *UtteranceBuffer) Append(fragment string) {
	if fragment == "" {
		return
	}
	b.parts = append(b.parts, fragment)
}

// Len returns the number of buffered fragments.
func (b *UtteranceBuffer) Len() int {
	return len(b.parts)
}

// Reset discards all buffered fragments.
func (b *UtteranceBuffer) Reset() {
	b.parts = nil
}

// Flush returns the concatenation of the fragments in arrival order,
// trimmed, and resets the buffer.
func (b *UtteranceBuffer) Flush() string {
	text := strings.TrimSpace(strings.Join(b.parts, ""))
	b.parts = nil
	return text
}

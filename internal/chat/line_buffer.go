package chat

import "sync"

// lineBuffer stores the user's current input line with concurrency protection.
type lineBuffer struct {
	mu    sync.RWMutex
	data  []rune
	limit int
}

// newLineBuffer preallocates capacity runes; a positive limit caps the line length.
func newLineBuffer(capacity, limit int) *lineBuffer {
	if capacity <= 0 {
		capacity = 128
	}
	return &lineBuffer{
		data:  make([]rune, 0, capacity),
		limit: limit,
	}
}

// Append adds r unless the line is already at its limit.
func (b *lineBuffer) Append(r rune) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && len(b.data) >= b.limit {
		return false
	}
	b.data = append(b.data, r)
	return true
}

func (b *lineBuffer) TrimLast() {
	b.mu.Lock()
	if n := len(b.data); n > 0 {
		b.data = b.data[:n-1]
	}
	b.mu.Unlock()
}

func (b *lineBuffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.mu.Unlock()
}

func (b *lineBuffer) Drain() string {
	b.mu.Lock()
	text := string(b.data)
	b.data = b.data[:0]
	b.mu.Unlock()
	return text
}

func (b *lineBuffer) Snapshot() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.data)
}

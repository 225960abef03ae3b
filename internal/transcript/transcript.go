// Package transcript assembles per-block transcription results into the
// running consultation text.
package transcript

import (
	"sort"
	"strings"
	"sync"
)

type Fragment struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Buffer orders fragments by block index regardless of arrival order.
type Buffer struct {
	mu    sync.RWMutex
	frags map[int]string
}

func New() *Buffer {
	return &Buffer{frags: make(map[int]string)}
}

// Append records the text of block index. Text is trimmed; an empty result
// contributes nothing. A later append for the same index replaces the
// earlier one. It reports whether the snapshot changed.
func (b *Buffer) Append(index int, text string) bool {
	text = strings.TrimSpace(text)

	b.mu.Lock()
	defer b.mu.Unlock()

	prev, ok := b.frags[index]
	if text == "" {
		if ok {
			delete(b.frags, index)
			return true
		}
		return false
	}
	if ok && prev == text {
		return false
	}
	b.frags[index] = text
	return true
}

// Snapshot joins the fragments in index order with single spaces.
func (b *Buffer) Snapshot() string {
	frags := b.Fragments()
	parts := make([]string, len(frags))
	for i, f := range frags {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}

func (b *Buffer) Fragments() []Fragment {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Fragment, 0, len(b.frags))
	for i, t := range b.frags {
		out = append(out, Fragment{Index: i, Text: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frags)
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frags = make(map[int]string)
}

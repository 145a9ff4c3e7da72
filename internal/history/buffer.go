// Package history provides the bounded, ordered alert history.
package history

import "github.com/good-yellow-bee/blazewatch/internal/models"

// DefaultCapacity is the number of alerts kept in history.
const DefaultCapacity = 1000

// Buffer is a fixed-capacity ring of alert records in arrival order.
// When full, appending evicts the oldest record.
// Buffer is not safe for concurrent use.
type Buffer struct {
	items   []models.AlertRecord
	start   int
	size    int
	version uint64
}

// New creates a buffer holding at most capacity records.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{items: make([]models.AlertRecord, capacity)}
}

// Append adds rec as the most recent record.
func (b *Buffer) Append(rec models.AlertRecord) {
	idx := (b.start + b.size) % len(b.items)
	b.items[idx] = rec
	b.version++
	if b.size < len(b.items) {
		b.size++
		return
	}
	b.start = (b.start + 1) % len(b.items)
}

// ReplaceAll replaces the contents with recs, keeping only the most recent
// Cap() records if more are given.
func (b *Buffer) ReplaceAll(recs []models.AlertRecord) {
	if len(recs) > len(b.items) {
		recs = recs[len(recs)-len(b.items):]
	}
	for i := range b.items {
		b.items[i] = models.AlertRecord{}
	}
	copy(b.items, recs)
	b.start = 0
	b.size = len(recs)
	b.version++
}

// Snapshot returns a copy of the records, oldest first.
func (b *Buffer) Snapshot() []models.AlertRecord {
	return b.LastN(b.size)
}

// LastN returns a copy of the n most recent records, oldest first.
func (b *Buffer) LastN(n int) []models.AlertRecord {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return []models.AlertRecord{}
	}
	out := make([]models.AlertRecord, n)
	offset := b.size - n
	for i := 0; i < n; i++ {
		out[i] = cloneRecord(b.items[(b.start+offset+i)%len(b.items)])
	}
	return out
}

// Contains reports whether a record describing the same event as key is held.
func (b *Buffer) Contains(key models.EventKey) bool {
	for i := 0; i < b.size; i++ {
		if b.items[(b.start+i)%len(b.items)].Key().Same(key) {
			return true
		}
	}
	return false
}

// Len returns the number of records held.
func (b *Buffer) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.items)
}

// Version increments on every mutation.
func (b *Buffer) Version() uint64 {
	return b.version
}

func cloneRecord(rec models.AlertRecord) models.AlertRecord {
	if rec.MatchedRules != nil {
		rec.MatchedRules = append([]string(nil), rec.MatchedRules...)
	}
	return rec
}

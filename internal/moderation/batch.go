package moderation

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// BatchEntry is a message waiting for the next remote call. Owned by
// the aggregator until drained, then by exactly one flush.
type BatchEntry struct {
	Message         Message
	EnqueuedAt      time.Time
	EstimatedTokens int
}

// estimateTokens is a cheap length proxy, roughly 4 bytes per token.
// It overestimates for dense scripts and underestimates for emoji-
// heavy text; the batch cap only needs to be the right order of
// magnitude.
func estimateTokens(text string) int {
	tokens := len(text) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// BatchAggregator accumulates established-user messages into token-
// bounded batches. Flush triggers: accumulated tokens reach the cap,
// or the oldest entry has waited maxWait (prevents starvation under
// light traffic).
type BatchAggregator struct {
	mu        sync.Mutex
	entries   []BatchEntry
	tokens    int
	maxTokens int
	maxWait   time.Duration
	logger    *log.Entry
}

func NewBatchAggregator(maxTokens int, maxWait time.Duration) *BatchAggregator {
	return &BatchAggregator{
		maxTokens: maxTokens,
		maxWait:   maxWait,
		logger:    log.WithField("object", "BatchAggregator"),
	}
}

func (b *BatchAggregator) Enqueue(msg Message, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := BatchEntry{
		Message:         msg,
		EnqueuedAt:      now,
		EstimatedTokens: estimateTokens(msg.Text),
	}
	b.entries = append(b.entries, entry)
	b.tokens += entry.EstimatedTokens
	b.logger.WithField("size", len(b.entries)).WithField("tokens", b.tokens).Debug("queued message")
}

// Ready reports whether a flush trigger has fired. It does not drain;
// callers gate the actual drain on quota admission first.
func (b *BatchAggregator) Ready(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return false
	}
	if b.tokens >= b.maxTokens {
		return true
	}
	return now.Sub(b.entries[0].EnqueuedAt) >= b.maxWait
}

// FlushIfReady drains and returns the batch when a trigger has fired,
// nil otherwise.
func (b *BatchAggregator) FlushIfReady(now time.Time) []BatchEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	if b.tokens < b.maxTokens && now.Sub(b.entries[0].EnqueuedAt) < b.maxWait {
		return nil
	}
	return b.drainLocked()
}

// ForceFlush drains unconditionally, e.g. at shutdown.
func (b *BatchAggregator) ForceFlush() []BatchEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainLocked()
}

func (b *BatchAggregator) drainLocked() []BatchEntry {
	entries := b.entries
	b.entries = nil
	b.tokens = 0
	return entries
}

func (b *BatchAggregator) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *BatchAggregator) OldestAge(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return 0
	}
	return now.Sub(b.entries[0].EnqueuedAt)
}

func (b *BatchAggregator) EstimatedTokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

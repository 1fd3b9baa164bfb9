package moderation

import (
	"strings"
	"testing"
	"time"
)

func TestBatchFlushOnTokenCap(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBatchAggregator(100, time.Hour)

	b.Enqueue(Message{ID: 1, Text: strings.Repeat("a", 200)}, now) // ~50 tokens
	if b.Ready(now) {
		t.Fatal("under the cap, should not be ready")
	}
	b.Enqueue(Message{ID: 2, Text: strings.Repeat("b", 220)}, now) // ~55 tokens
	if !b.Ready(now) {
		t.Fatal("over the cap, should be ready")
	}

	entries := b.FlushIfReady(now)
	if len(entries) != 2 {
		t.Fatalf("flushed %d entries, want 2", len(entries))
	}
	if entries[0].Message.ID != 1 || entries[1].Message.ID != 2 {
		t.Fatal("flush must preserve enqueue order")
	}
	if b.Size() != 0 || b.EstimatedTokens() != 0 {
		t.Fatal("drain must empty the queue")
	}
}

func TestBatchFlushOnOldestAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBatchAggregator(10000, 10*time.Minute)

	b.Enqueue(Message{ID: 1, Text: "hi"}, now)
	if got := b.FlushIfReady(now.Add(9 * time.Minute)); got != nil {
		t.Fatal("young batch should not flush")
	}
	got := b.FlushIfReady(now.Add(10 * time.Minute))
	if len(got) != 1 {
		t.Fatalf("aged batch should flush, got %d entries", len(got))
	}
}

func TestBatchTokenEstimateFloorsAtOne(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{"", 1},
		{"ab", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Fatalf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestBatchForceFlushDrainsUnconditionally(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBatchAggregator(10000, time.Hour)
	b.Enqueue(Message{ID: 1, Text: "one"}, now)
	b.Enqueue(Message{ID: 2, Text: "two"}, now)

	if got := b.ForceFlush(); len(got) != 2 {
		t.Fatalf("force flush returned %d entries, want 2", len(got))
	}
	if got := b.ForceFlush(); got != nil {
		t.Fatal("second force flush should return nothing")
	}
}

func TestBatchConcurrentEnqueueDuringDrain(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBatchAggregator(10000, time.Hour)
	b.Enqueue(Message{ID: 1, Text: "one"}, now)

	drained := b.ForceFlush()
	b.Enqueue(Message{ID: 2, Text: "two"}, now)

	if len(drained) != 1 || drained[0].Message.ID != 1 {
		t.Fatal("drained batch must not see later enqueues")
	}
	if b.Size() != 1 {
		t.Fatalf("queue size = %d, want 1", b.Size())
	}
}

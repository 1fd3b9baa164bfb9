package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRemoteBatcherSingleOrderedCall(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backend := &stubLLM{responses: []string{
		`[{"verdict": "ok", "reason": "fine"}, {"verdict": "warn", "reason": "heated"}]`,
	}}
	batcher := NewRemoteBatcher(backend, "prompt")

	entries := []BatchEntry{
		{Message: Message{ID: 1, SenderID: 10, Text: "first"}, EnqueuedAt: now},
		{Message: Message{ID: 2, SenderID: 20, Text: "second"}, EnqueuedAt: now},
	}
	verdicts, err := batcher.CompleteBatch(context.Background(), entries)
	if err != nil {
		t.Fatalf("CompleteBatch: %v", err)
	}
	if backend.callCount() != 1 {
		t.Fatalf("backend calls = %d, want 1", backend.callCount())
	}
	if verdicts[0].Kind != VerdictOK || verdicts[1].Kind != VerdictWarn {
		t.Fatalf("verdicts = %+v", verdicts)
	}
}

func TestRemoteBatcherRejectsCountMismatch(t *testing.T) {
	t.Parallel()

	backend := &stubLLM{responses: []string{`[{"verdict": "ok", "reason": "fine"}]`}}
	batcher := NewRemoteBatcher(backend, "prompt")

	entries := []BatchEntry{
		{Message: Message{ID: 1, Text: "first"}},
		{Message: Message{ID: 2, Text: "second"}},
	}
	if _, err := batcher.CompleteBatch(context.Background(), entries); !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("want ErrBatchMismatch, got %v", err)
	}
}

func TestRemoteBatcherPropagatesTransportError(t *testing.T) {
	t.Parallel()

	backend := &stubLLM{err: errors.New("429 too many requests")}
	batcher := NewRemoteBatcher(backend, "prompt")

	_, err := batcher.CompleteBatch(context.Background(), []BatchEntry{{Message: Message{ID: 1, Text: "x"}}})
	if err == nil || !strings.Contains(err.Error(), "remote batch call") {
		t.Fatalf("want wrapped transport error, got %v", err)
	}
}

func TestRemoteBatcherEmptyBatchIsNoCall(t *testing.T) {
	t.Parallel()

	backend := &stubLLM{responses: []string{"unused"}}
	batcher := NewRemoteBatcher(backend, "prompt")

	verdicts, err := batcher.CompleteBatch(context.Background(), nil)
	if err != nil || verdicts != nil {
		t.Fatalf("empty batch: verdicts=%v err=%v", verdicts, err)
	}
	if backend.callCount() != 0 {
		t.Fatal("empty batch must not call the backend")
	}
}

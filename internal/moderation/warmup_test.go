package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iamwavecut/modbot/internal/adapters/llm"
)

type blockingLLM struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (b *blockingLLM) ChatCompletion(ctx context.Context, messages []llm.ChatCompletionMessage) (llm.ChatCompletionResponse, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return llm.ChatCompletionResponse{}, nil
}

func (b *blockingLLM) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestWarmerSendsSystemPrompt(t *testing.T) {
	t.Parallel()

	backend := &stubLLM{responses: []string{"ok"}}
	w := NewWarmer(backend, "standing prompt", time.Hour)

	w.WarmUp(context.Background())
	if backend.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", backend.callCount())
	}
}

func TestWarmerSkipsOverlappingTick(t *testing.T) {
	t.Parallel()

	backend := &blockingLLM{release: make(chan struct{})}
	w := NewWarmer(backend, "prompt", time.Hour)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.WarmUp(context.Background())
	}()

	for backend.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	w.WarmUp(context.Background()) // overlapping tick, must be skipped
	close(backend.release)
	wg.Wait()

	if backend.callCount() != 1 {
		t.Fatalf("calls = %d, want 1 (overlap must be skipped)", backend.callCount())
	}
}

func TestWarmerFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	backend := &stubLLM{err: errors.New("backend down")}
	w := NewWarmer(backend, "prompt", time.Hour)

	w.WarmUp(context.Background())
	w.WarmUp(context.Background())
	if backend.callCount() != 2 {
		t.Fatalf("calls = %d, want 2 (failed warmup must retry next tick)", backend.callCount())
	}
}

func TestWarmerStartStop(t *testing.T) {
	t.Parallel()

	backend := &stubLLM{responses: []string{"ok"}}
	w := NewWarmer(backend, "prompt", time.Hour)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if backend.callCount() != 1 {
		t.Fatalf("calls = %d, want 1 (priming call at start)", backend.callCount())
	}
}

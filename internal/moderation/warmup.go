package moderation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modbot/internal/adapters"
	"github.com/iamwavecut/modbot/internal/adapters/llm"
)

// Warmer keeps the local backend's context cache hot by re-sending the
// standing system prompt on an interval, so instant newcomer calls do
// not pay the prompt-ingestion cost. Failures are logged and retried
// on the next tick, never fatal to dispatch.
type Warmer struct {
	backend      adapters.LLM
	systemPrompt string
	interval     time.Duration
	callTimeout  time.Duration

	inFlight atomic.Bool

	mu         sync.Mutex
	runtimeCtx context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    bool

	logger *log.Entry
}

func NewWarmer(backend adapters.LLM, systemPrompt string, interval time.Duration) *Warmer {
	return &Warmer{
		backend:      backend,
		systemPrompt: systemPrompt,
		interval:     interval,
		callTimeout:  time.Minute,
		logger:       log.WithField("object", "Warmer"),
	}
}

func (w *Warmer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	w.runtimeCtx, w.cancel = context.WithCancel(ctx)
	w.started = true

	runCtx := w.runtimeCtx
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.WarmUp(runCtx)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.WarmUp(runCtx)
			}
		}
	}()
	return nil
}

func (w *Warmer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// WarmUp issues one priming call. A tick is skipped when the previous
// call is still outstanding; the priming is idempotent so a missed
// tick costs nothing.
func (w *Warmer) WarmUp(ctx context.Context) {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.logger.Debug("previous warmup still in flight, skipping tick")
		return
	}
	defer w.inFlight.Store(false)

	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	defer cancel()

	_, err := w.backend.ChatCompletion(callCtx, []llm.ChatCompletionMessage{
		{Role: llm.RoleSystem, Content: w.systemPrompt},
		{Role: llm.RoleUser, Content: "ok"},
	})
	if err != nil {
		w.logger.WithError(err).Warn("local backend warmup failed")
		return
	}
	w.logger.Debug("local backend warmed up")
}

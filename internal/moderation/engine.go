package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/iamwavecut/modbot/internal/adapters"
	"github.com/iamwavecut/modbot/internal/adapters/llm"
	"github.com/iamwavecut/modbot/internal/observability"
)

// Gateway is the narrow surface the engine needs from the chat
// platform. Status updates must overwrite in place, not append.
type Gateway interface {
	DeliverAction(ctx context.Context, msg Message, action FinalAction) error
	ForwardToReview(ctx context.Context, msg Message, annotation string) error
	UpdateStatus(ctx context.Context, snapshot StatusSnapshot) error
}

// RemoteCaller hands one batch to the remote backend and returns one
// verdict per entry, order-preserving.
type RemoteCaller interface {
	CompleteBatch(ctx context.Context, entries []BatchEntry) ([]Verdict, error)
}

// StrikeSink receives a record of each severe verdict. Optional;
// persistence failures are the sink's problem, not the pipeline's.
type StrikeSink func(ctx context.Context, senderID, groupID int64, reason string, at time.Time)

type Dependencies struct {
	Local        adapters.LLM
	Remote       RemoteCaller
	Gateway      Gateway
	Dedup        *DedupCache
	Router       TrustRouter
	Tracker      *SenderTracker
	Quota        *QuotaManager
	Batch        *BatchAggregator
	Policy       Policy
	Status       *StatusPublisher
	PreFilter    *PreFilter
	Strikes      StrikeSink
	SystemPrompt string
}

// Engine is the dispatch and admission-control core: dedup, trust
// routing, quota-gated batch flushing, verdict application. All LLM
// calls run outside the component locks so a slow backend never
// stalls routing or enqueueing of unrelated messages.
type Engine struct {
	deps             Dependencies
	localCallTimeout time.Duration

	mu         sync.Mutex
	runtimeCtx context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    bool

	logger *log.Entry
}

func NewEngine(deps Dependencies) *Engine {
	return &Engine{
		deps:             deps,
		localCallTimeout: 30 * time.Second,
		logger:           log.WithField("object", "Engine"),
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	e.runtimeCtx, e.cancel = context.WithCancel(ctx)
	e.started = true

	runCtx := e.runtimeCtx

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case now := <-ticker.C:
				e.FlushTick(runCtx, now)
			}
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case now := <-ticker.C:
				e.publishStatus(runCtx, now)
			}
		}
	}()

	return nil
}

func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Evaluate runs one message through the pipeline: dedup, blocklist,
// trust routing, then either an instant local call or the batch queue.
// The message's receive time is the decision clock throughout.
func (e *Engine) Evaluate(ctx context.Context, msg Message) {
	ctx, span := otel.Tracer("moderation-engine").Start(ctx, "evaluate-message")
	defer span.End()

	done := observability.StartMessageProcessing()
	defer done("completed")

	observability.Logger.Info("processing message",
		zap.Int64("group_id", msg.GroupID),
		zap.Int64("message_id", msg.ID),
		zap.Int64("sender_id", msg.SenderID),
	)

	entry := e.logger.WithField("group_id", msg.GroupID).WithField("message_id", msg.ID)

	if msg.SenderAdmin {
		entry.Debug("skipping admin message")
		return
	}
	if e.deps.Dedup.SeenOrRecord(DedupKey{GroupID: msg.GroupID, MessageID: msg.ID}) {
		entry.Debug("duplicate message, skipping")
		return
	}

	profile := e.deps.Tracker.Observe(msg.SenderID, msg.ReceivedAt)

	if rule := e.deps.PreFilter.Check(msg.Text); rule != "" {
		entry.WithField("rule", rule).Info("blocklist hit")
		e.applyVerdict(ctx, msg, Verdict{
			Kind:   VerdictDelete,
			Reason: "blocklist: " + rule,
			Reply:  "🚫 This message was removed by auto-moderator.",
		}, msg.ReceivedAt)
		return
	}

	switch e.deps.Router.Route(profile, msg.ReceivedAt) {
	case PathLocal:
		entry.WithField("sender_id", msg.SenderID).Debug("newcomer, instant local evaluation")
		e.evaluateLocal(ctx, msg)
	default:
		e.deps.Batch.Enqueue(msg, msg.ReceivedAt)
		entry.WithField("sender_id", msg.SenderID).Debug("established sender, queued for batch")
	}
}

type localPayload struct {
	Message  string   `json:"message"`
	SenderID int64    `json:"sender_id"`
	Sender   string   `json:"sender"`
	Context  []string `json:"context,omitempty"`
}

func (e *Engine) evaluateLocal(ctx context.Context, msg Message) {
	e.deps.Quota.NoteNewcomerUse(msg.ReceivedAt)

	body, err := json.Marshal(localPayload{
		Message:  msg.Text,
		SenderID: msg.SenderID,
		Sender:   msg.SenderName,
		Context:  msg.Context,
	})
	if err != nil {
		e.logger.WithError(err).Error("cant marshal local payload")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, e.localCallTimeout)
	defer cancel()

	verdict := FallbackVerdict("local backend failure")
	resp, err := e.deps.Local.ChatCompletion(callCtx, []llm.ChatCompletionMessage{
		{Role: llm.RoleSystem, Content: e.deps.SystemPrompt},
		{Role: llm.RoleUser, Content: string(body)},
	})
	switch {
	case err != nil:
		e.logger.WithError(err).WithField("message_id", msg.ID).Warn("local call failed, degrading to ok")
	case len(resp.Choices) == 0:
		e.logger.WithField("message_id", msg.ID).Warn("empty local response, degrading to ok")
	default:
		raw := resp.Choices[0].Message.Content
		verdict, err = ParseVerdict(raw)
		if err != nil {
			e.logger.WithError(err).WithField("raw", raw).Warn("unparseable local verdict")
			verdict = FallbackVerdict("parse error")
		}
	}

	e.applyVerdict(ctx, msg, verdict, msg.ReceivedAt)
}

// FlushTick flushes the batch when a trigger has fired and the quota
// admits a remote call. Entries are held, never dropped, while the
// quota says no; a rollover on a later tick releases them. The drain
// happens before the network call so concurrent enqueues proceed
// while the call is outstanding, and a batch in flight is never
// mutated.
func (e *Engine) FlushTick(ctx context.Context, now time.Time) {
	if !e.deps.Batch.Ready(now) {
		return
	}
	if !e.deps.Quota.TryConsume(now) {
		return
	}

	entries := e.deps.Batch.ForceFlush()
	if len(entries) == 0 {
		return
	}

	stop := observability.StartBatchFlush()
	defer stop()

	e.logger.WithField("size", len(entries)).Info("flushing batch")
	verdicts, err := e.deps.Remote.CompleteBatch(ctx, entries)
	if err == nil && len(verdicts) != len(entries) {
		err = fmt.Errorf("%w: got %d, want %d", ErrBatchMismatch, len(verdicts), len(entries))
	}
	if err != nil {
		// Whole-batch degrade: chat availability beats moderation
		// completeness for this batch.
		e.logger.WithError(err).Warn("batch call failed, degrading batch to ok")
		observability.Logger.Warn("batch degraded to ok",
			zap.Int("size", len(entries)),
			zap.Error(err),
		)
		verdicts = make([]Verdict, len(entries))
		for i := range verdicts {
			verdicts[i] = FallbackVerdict("batch failure")
		}
	}

	for i, entry := range entries {
		e.applyVerdict(ctx, entry.Message, verdicts[i], now)
	}
	e.publishStatus(ctx, now)
}

func (e *Engine) applyVerdict(ctx context.Context, msg Message, verdict Verdict, now time.Time) {
	e.deps.Status.RecordVerdict(verdict.Kind)
	observability.RecordVerdict(string(verdict.Kind))
	if verdict.Kind != VerdictOK {
		observability.Logger.Warn("verdict requires action",
			zap.String("verdict", string(verdict.Kind)),
			zap.Int64("sender_id", msg.SenderID),
			zap.String("reason", verdict.Reason),
		)
	}

	if e.deps.Strikes != nil && verdict.Kind.Severity() >= VerdictDelete.Severity() {
		e.deps.Strikes(ctx, msg.SenderID, msg.GroupID, verdict.Reason, now)
	}

	action := e.deps.Policy.Decide(msg.SenderID, verdict, now)
	if action.Kind == ActionNone {
		if action.Suppressed {
			e.logger.WithField("sender_id", msg.SenderID).Debug("action suppressed")
		}
		return
	}

	if err := e.deps.Gateway.DeliverAction(ctx, msg, action); err != nil {
		e.logger.WithError(err).WithField("action", string(action.Kind)).Error("failed to deliver action")
	}
	annotation := string(action.Kind) + ": " + action.Reason
	if err := e.deps.Gateway.ForwardToReview(ctx, msg, annotation); err != nil {
		e.logger.WithError(err).Error("failed to forward to review")
	}
	e.publishStatus(ctx, now)
}

func (e *Engine) publishStatus(ctx context.Context, now time.Time) {
	if err := e.deps.Gateway.UpdateStatus(ctx, e.deps.Status.Snapshot(now)); err != nil {
		e.logger.WithError(err).Debug("failed to update status")
	}
}

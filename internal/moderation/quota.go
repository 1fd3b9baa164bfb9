package moderation

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modbot/internal/observability"
)

const (
	// Floor between remote calls regardless of how much quota is left.
	minConsumeInterval = 10 * time.Second
	// Every newcomerWeight newcomer uses shave one request off the
	// effective remaining used by the interval formula. Newcomer
	// traffic does not spend the budget itself, but a hot newcomer
	// rate means established-path precision matters more, so the
	// interval stretches defensively. Only interval() applies this;
	// the real remaining counter is untouched.
	newcomerWeight = 4
)

// QuotaState is the persistable snapshot of the manager.
type QuotaState struct {
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	Remaining     int       `json:"remaining"`
	NewcomerSpend int       `json:"newcomer_spend"`
	LastConsume   time.Time `json:"last_consume"`
}

// QuotaStatus extends the state with derived scheduling info.
type QuotaStatus struct {
	QuotaState
	DailyLimit    int
	Interval      time.Duration
	NextConsumeAt time.Time
}

// QuotaManager spends a daily remote-call allotment at a sliding
// minimum interval, so evenly spaced use exhausts exactly at the
// window end. The window is a rolling 24h period anchored at UTC
// midnight.
type QuotaManager struct {
	mu         sync.Mutex
	dailyLimit int
	state      QuotaState
	persist    func(QuotaState)
	logger     *log.Entry
}

func NewQuotaManager(dailyLimit int, persist func(QuotaState)) *QuotaManager {
	return &QuotaManager{
		dailyLimit: dailyLimit,
		persist:    persist,
		logger:     log.WithField("object", "QuotaManager"),
	}
}

// Restore replaces in-memory state with a persisted snapshot. Stale
// snapshots self-heal on the next call through the rollover check.
func (q *QuotaManager) Restore(state QuotaState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = state
	q.logger.WithField("remaining", state.Remaining).Info("restored quota state")
}

func windowStartFor(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour)
}

// refreshLocked rolls the window over when now has passed its end.
// Called at the top of every exported method, not on a timer, so a
// long-idle process self-heals on the next call.
func (q *QuotaManager) refreshLocked(now time.Time) {
	if q.state.WindowEnd.IsZero() || !now.Before(q.state.WindowEnd) {
		if !q.state.WindowEnd.IsZero() {
			q.logger.WithField("spent", q.dailyLimit-q.state.Remaining).
				WithField("newcomer_spend", q.state.NewcomerSpend).
				Info("quota window rollover")
		}
		q.state.WindowStart = windowStartFor(now)
		q.state.WindowEnd = q.state.WindowStart.Add(24 * time.Hour)
		q.state.Remaining = q.dailyLimit
		q.state.NewcomerSpend = 0
		q.state.LastConsume = time.Time{}
	}
}

// intervalLocked distributes the remaining budget over the time left:
// interval = timeLeft / max(1, remaining - newcomerSpend/newcomerWeight).
func (q *QuotaManager) intervalLocked(now time.Time) time.Duration {
	timeLeft := q.state.WindowEnd.Sub(now)
	if timeLeft <= 0 {
		return minConsumeInterval
	}
	effective := q.state.Remaining - q.state.NewcomerSpend/newcomerWeight
	if effective < 1 {
		effective = 1
	}
	interval := timeLeft / time.Duration(effective)
	if interval < minConsumeInterval {
		interval = minConsumeInterval
	}
	return interval
}

// TryConsume attempts to spend one remote call. It fails closed: no
// budget left, or the sliding interval since the last consumption has
// not elapsed, means false and no state change.
func (q *QuotaManager) TryConsume(now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refreshLocked(now)

	if q.state.Remaining <= 0 {
		return false
	}
	if !q.state.LastConsume.IsZero() && now.Sub(q.state.LastConsume) < q.intervalLocked(now) {
		return false
	}

	q.state.Remaining--
	q.state.LastConsume = now
	observability.SetQuotaRemaining(q.state.Remaining)
	q.persistLocked()
	return true
}

// NoteNewcomerUse records a local-path newcomer evaluation. It does
// not spend the budget, only feeds the interval down-weighting.
func (q *QuotaManager) NoteNewcomerUse(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refreshLocked(now)
	q.state.NewcomerSpend++
	q.persistLocked()
}

func (q *QuotaManager) Remaining(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refreshLocked(now)
	return q.state.Remaining
}

func (q *QuotaManager) RefreshWindow(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refreshLocked(now)
}

func (q *QuotaManager) Status(now time.Time) QuotaStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refreshLocked(now)
	interval := q.intervalLocked(now)
	next := now
	if !q.state.LastConsume.IsZero() {
		next = q.state.LastConsume.Add(interval)
	}
	return QuotaStatus{
		QuotaState:    q.state,
		DailyLimit:    q.dailyLimit,
		Interval:      interval,
		NextConsumeAt: next,
	}
}

func (q *QuotaManager) persistLocked() {
	if q.persist == nil {
		return
	}
	q.persist(q.state)
}

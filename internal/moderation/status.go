package moderation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// StatusPublisher derives a point-in-time summary from the quota
// manager, batch aggregator, and last ladder mutation. It owns no
// state of its own beyond the verdict tally kept for reports.
type StatusPublisher struct {
	quota  *QuotaManager
	batch  *BatchAggregator
	ladder *Ladder

	mu    sync.Mutex
	tally map[VerdictKind]int
	since time.Time
}

func NewStatusPublisher(quota *QuotaManager, batch *BatchAggregator, ladder *Ladder) *StatusPublisher {
	return &StatusPublisher{
		quota:  quota,
		batch:  batch,
		ladder: ladder,
		tally:  map[VerdictKind]int{},
		since:  time.Now(),
	}
}

// RecordVerdict feeds the running tally used by periodic reports.
func (p *StatusPublisher) RecordVerdict(kind VerdictKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tally[kind]++
}

// Snapshot recomputes the summary on demand.
func (p *StatusPublisher) Snapshot(now time.Time) StatusSnapshot {
	quota := p.quota.Status(now)
	lastKind, lastAt := p.ladder.LastAction()

	p.mu.Lock()
	tally := make(map[VerdictKind]int, len(p.tally))
	for kind, count := range p.tally {
		tally[kind] = count
	}
	p.mu.Unlock()

	return StatusSnapshot{
		At:               now,
		QuotaRemaining:   quota.Remaining,
		QuotaDailyLimit:  quota.DailyLimit,
		NewcomerSpend:    quota.NewcomerSpend,
		NextRemoteCallAt: quota.NextConsumeAt,
		BatchPending:     p.batch.Size(),
		BatchOldestAge:   p.batch.OldestAge(now),
		LastActionKind:   lastKind,
		LastActionAt:     lastAt,
		VerdictTally:     tally,
	}
}

// Report renders a human-readable summary for the review channel.
func (p *StatusPublisher) Report(now time.Time) string {
	snapshot := p.Snapshot(now)

	kinds := make([]string, 0, len(snapshot.VerdictTally))
	for kind := range snapshot.VerdictTally {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	total := 0
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		count := snapshot.VerdictTally[VerdictKind(kind)]
		total += count
		parts = append(parts, fmt.Sprintf("%s: %d", kind, count))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Moderation report (%s)\n", now.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Messages judged: %d\n", total)
	if len(parts) > 0 {
		fmt.Fprintf(&b, "Verdicts: %s\n", strings.Join(parts, " | "))
	}
	fmt.Fprintf(&b, "Remote quota: %d/%d remaining (%d newcomer evaluations)\n",
		snapshot.QuotaRemaining, snapshot.QuotaDailyLimit, snapshot.NewcomerSpend)
	fmt.Fprintf(&b, "Batch queue: %d pending", snapshot.BatchPending)
	return b.String()
}

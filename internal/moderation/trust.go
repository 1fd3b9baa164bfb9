package moderation

import (
	"sync"
	"time"
)

type Path string

const (
	// PathLocal sends the message straight to the local backend.
	PathLocal Path = "local"
	// PathBatched queues the message for the quota-metered remote backend.
	PathBatched Path = "batched"
)

// TrustRouter classifies a sender as newcomer or established. Pure
// over the profile and clock, no side effects.
type TrustRouter struct {
	newcomerWindow time.Duration
}

func NewTrustRouter(newcomerWindow time.Duration) TrustRouter {
	return TrustRouter{newcomerWindow: newcomerWindow}
}

// Route picks the processing path. A zero JoinedAt routes established:
// the metered path is the safe default, unmetered local overuse is the
// failure mode that motivated the quota in the first place.
func (r TrustRouter) Route(profile SenderProfile, now time.Time) Path {
	if profile.JoinedAt.IsZero() || profile.JoinedAt.After(now) {
		return PathBatched
	}
	if now.Sub(profile.JoinedAt) < r.newcomerWindow {
		return PathLocal
	}
	return PathBatched
}

// SenderTracker records first-seen timestamps and message counts per
// sender, backing the profiles the router consumes. Senders predating
// the process are loaded from storage at startup.
type SenderTracker struct {
	mu        sync.Mutex
	firstSeen map[int64]time.Time
	counts    map[int64]int
}

func NewSenderTracker() *SenderTracker {
	return &SenderTracker{
		firstSeen: map[int64]time.Time{},
		counts:    map[int64]int{},
	}
}

// Observe registers a message from the sender and returns the profile
// to route with. First contact counts as the join time.
func (t *SenderTracker) Observe(senderID int64, now time.Time) SenderProfile {
	t.mu.Lock()
	defer t.mu.Unlock()
	joined, ok := t.firstSeen[senderID]
	if !ok {
		joined = now
		t.firstSeen[senderID] = joined
	}
	t.counts[senderID]++
	return SenderProfile{
		SenderID:     senderID,
		JoinedAt:     joined,
		MessageCount: t.counts[senderID],
	}
}

func (t *SenderTracker) Load(profiles []SenderProfile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range profiles {
		t.firstSeen[p.SenderID] = p.JoinedAt
		t.counts[p.SenderID] = p.MessageCount
	}
}

func (t *SenderTracker) Profiles() []SenderProfile {
	t.mu.Lock()
	defer t.mu.Unlock()
	profiles := make([]SenderProfile, 0, len(t.firstSeen))
	for id, joined := range t.firstSeen {
		profiles = append(profiles, SenderProfile{
			SenderID:     id,
			JoinedAt:     joined,
			MessageCount: t.counts[id],
		})
	}
	return profiles
}

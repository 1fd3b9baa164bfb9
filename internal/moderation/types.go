package moderation

import (
	"time"
)

// Message is a single inbound chat message. Immutable once received.
type Message struct {
	ID          int64
	GroupID     int64
	SenderID    int64
	SenderName  string
	SenderAdmin bool
	Text        string
	ReceivedAt  time.Time
	Context     []string
}

// SenderProfile carries what is known about a sender at decision time.
type SenderProfile struct {
	SenderID     int64
	JoinedAt     time.Time
	MessageCount int
}

type VerdictKind string

const (
	VerdictOK     VerdictKind = "ok"
	VerdictWarn   VerdictKind = "warn"
	VerdictDelete VerdictKind = "delete"
	VerdictMute   VerdictKind = "mute"
	VerdictBan    VerdictKind = "ban"
)

var severityOrder = map[VerdictKind]int{
	VerdictOK:     0,
	VerdictWarn:   1,
	VerdictDelete: 2,
	VerdictMute:   3,
	VerdictBan:    4,
}

func (k VerdictKind) Valid() bool {
	_, ok := severityOrder[k]
	return ok
}

// Severity orders verdict kinds from ok (0) to ban (4). Unknown kinds
// rank below ok so they can never displace a recorded action.
func (k VerdictKind) Severity() int {
	severity, ok := severityOrder[k]
	if !ok {
		return -1
	}
	return severity
}

// Verdict is the moderation decision for one message. Reason is
// required, Reply is optional and carries text to post back to chat.
type Verdict struct {
	Kind   VerdictKind `json:"verdict"`
	Reason string      `json:"reason"`
	Reply  string      `json:"reply,omitempty"`
}

type ActionKind string

const (
	ActionNone   ActionKind = "none"
	ActionReply  ActionKind = "reply"
	ActionDelete ActionKind = "delete"
	ActionMute   ActionKind = "mute"
	ActionBan    ActionKind = "ban"
)

// FinalAction is what the escalation ladder resolves a verdict into,
// after counters and cooldown suppression are applied.
type FinalAction struct {
	Kind       ActionKind
	Reason     string
	Reply      string
	Suppressed bool
}

// UserEscalationState tracks a sender's position on the ladder.
type UserEscalationState struct {
	SenderID       int64
	WarningCount   int
	StrikeCount    int
	LastActionAt   time.Time
	LastActionKind VerdictKind
}

// StatusSnapshot is a point-in-time summary for external display.
// Derived on demand, never independently mutated.
type StatusSnapshot struct {
	At               time.Time
	QuotaRemaining   int
	QuotaDailyLimit  int
	NewcomerSpend    int
	NextRemoteCallAt time.Time
	BatchPending     int
	BatchOldestAge   time.Duration
	LastActionKind   ActionKind
	LastActionAt     time.Time
	VerdictTally     map[VerdictKind]int
}

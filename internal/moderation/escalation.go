package moderation

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Policy maps (verdict, history) to a concrete action. The default
// implementation is the Ladder; a reputation-aware policy can replace
// it without touching the dispatch core.
type Policy interface {
	Decide(senderID int64, verdict Verdict, now time.Time) FinalAction
	Clear(senderID int64)
}

// Ladder keeps per-user warning counters and cooldowns. The LLM's
// severity is authoritative: the ladder escalates ambiguous repeat
// minor cases, it never downgrades an explicit severe verdict. There
// is no terminal state; only an external admin clear resets a user.
type Ladder struct {
	mu       sync.Mutex
	users    map[int64]*UserEscalationState
	cooldown time.Duration

	lastActionKind ActionKind
	lastActionAt   time.Time

	logger *log.Entry
}

func NewLadder(cooldown time.Duration) *Ladder {
	return &Ladder{
		users:          map[int64]*UserEscalationState{},
		cooldown:       cooldown,
		lastActionKind: ActionNone,
		logger:         log.WithField("object", "Ladder"),
	}
}

func (l *Ladder) stateLocked(senderID int64) *UserEscalationState {
	state, ok := l.users[senderID]
	if !ok {
		state = &UserEscalationState{SenderID: senderID}
		l.users[senderID] = state
	}
	return state
}

// Decide applies the verdict against the sender's history and returns
// the action to execute. A cooldown suppresses repeated enforcement
// against the same user: within the window, a verdict that is not
// more severe than the last acted-on kind only updates counters. Ban
// is exempt and always applies.
func (l *Ladder) Decide(senderID int64, verdict Verdict, now time.Time) FinalAction {
	l.mu.Lock()
	defer l.mu.Unlock()

	if verdict.Kind == VerdictOK || !verdict.Kind.Valid() {
		return FinalAction{Kind: ActionNone, Reason: verdict.Reason}
	}

	state := l.stateLocked(senderID)
	state.WarningCount++
	if verdict.Kind.Severity() >= VerdictDelete.Severity() {
		state.StrikeCount++
	}

	onCooldown := l.cooldown > 0 &&
		!state.LastActionAt.IsZero() &&
		now.Sub(state.LastActionAt) < l.cooldown &&
		verdict.Kind.Severity() <= state.LastActionKind.Severity()
	if onCooldown && verdict.Kind != VerdictBan {
		l.logger.WithField("sender_id", senderID).
			WithField("verdict", string(verdict.Kind)).
			Debug("action suppressed by cooldown")
		return FinalAction{Kind: ActionNone, Reason: verdict.Reason, Suppressed: true}
	}

	state.LastActionAt = now
	state.LastActionKind = verdict.Kind

	action := FinalAction{Reason: verdict.Reason, Reply: verdict.Reply}
	switch verdict.Kind {
	case VerdictWarn:
		action.Kind = ActionReply
	case VerdictDelete:
		action.Kind = ActionDelete
	case VerdictMute:
		action.Kind = ActionMute
	case VerdictBan:
		action.Kind = ActionBan
	}

	l.lastActionKind = action.Kind
	l.lastActionAt = now
	return action
}

// Clear resets a user's ladder state. Exposed for the external
// admin-clear operation; nothing inside the core calls it.
func (l *Ladder) Clear(senderID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.users, senderID)
	l.logger.WithField("sender_id", senderID).Info("escalation state cleared")
}

// LastAction reports the most recent enforcement for status display.
func (l *Ladder) LastAction() (ActionKind, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastActionKind, l.lastActionAt
}

// States snapshots all user states for persistence.
func (l *Ladder) States() []UserEscalationState {
	l.mu.Lock()
	defer l.mu.Unlock()
	states := make([]UserEscalationState, 0, len(l.users))
	for _, state := range l.users {
		states = append(states, *state)
	}
	return states
}

// LoadStates seeds the ladder from persisted state. Absent or partial
// snapshots mean the missing users start clean.
func (l *Ladder) LoadStates(states []UserEscalationState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, state := range states {
		s := state
		l.users[state.SenderID] = &s
	}
}

func (l *Ladder) State(senderID int64) (UserEscalationState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.users[senderID]
	if !ok {
		return UserEscalationState{}, false
	}
	return *state, true
}

var _ Policy = (*Ladder)(nil)

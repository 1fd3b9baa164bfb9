package db

import (
	"time"

	"github.com/pkg/errors"
)

type (
	// EscalationState is one sender's position on the action ladder.
	EscalationState struct {
		SenderID       int64     `db:"sender_id"`
		WarningCount   int       `db:"warning_count"`
		StrikeCount    int       `db:"strike_count"`
		LastActionKind string    `db:"last_action_kind"`
		LastActionAt   time.Time `db:"last_action_at"`
	}

	// Sender is the observed activity record the trust router reads.
	Sender struct {
		ID           int64     `db:"id"`
		FirstSeenAt  time.Time `db:"first_seen_at"`
		MessageCount int       `db:"message_count"`
	}

	// Strike is an appended record of a severe verdict against a sender.
	Strike struct {
		SenderID  int64     `db:"sender_id"`
		GroupID   int64     `db:"group_id"`
		Reason    string    `db:"reason"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (s *EscalationState) Validate() error {
	if s == nil {
		return errors.New("nil escalation state")
	}
	if s.SenderID == 0 {
		return errors.New("escalation state without sender")
	}
	return nil
}

func (s *Sender) Validate() error {
	if s == nil {
		return errors.New("nil sender")
	}
	if s.ID == 0 {
		return errors.New("sender without id")
	}
	return nil
}

package db

import "context"

type Client interface {
	Close() error

	GetEscalationStates(ctx context.Context) ([]EscalationState, error)
	UpsertEscalationState(ctx context.Context, state *EscalationState) error
	DeleteEscalationState(ctx context.Context, senderID int64) error

	GetSenders(ctx context.Context) ([]Sender, error)
	UpsertSender(ctx context.Context, sender *Sender) error

	AddStrike(ctx context.Context, strike *Strike) error
	GetStrikeCounts(ctx context.Context) (map[int64]int, error)

	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite"

	"github.com/iamwavecut/modbot/internal/db"
	"github.com/iamwavecut/modbot/resources"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbx.Close() })
	dbx.SetMaxOpenConns(1)

	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	if _, err := migrate.Exec(dbx.DB, "sqlite3", source, migrate.Up); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return &sqliteClient{db: dbx}
}

func TestEscalationStateRoundTrip(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()
	actedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	state := &db.EscalationState{
		SenderID:       7,
		WarningCount:   3,
		StrikeCount:    1,
		LastActionKind: "mute",
		LastActionAt:   actedAt,
	}
	if err := client.UpsertEscalationState(ctx, state); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	state.WarningCount = 4
	if err := client.UpsertEscalationState(ctx, state); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	states, err := client.GetEscalationStates(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("got %d states, want 1", len(states))
	}
	got := states[0]
	if got.SenderID != 7 || got.WarningCount != 4 || got.StrikeCount != 1 || got.LastActionKind != "mute" {
		t.Fatalf("state = %+v", got)
	}

	if err := client.DeleteEscalationState(ctx, 7); err != nil {
		t.Fatalf("delete: %v", err)
	}
	states, err = client.GetEscalationStates(ctx)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("got %d states after delete, want 0", len(states))
	}
}

func TestUpsertEscalationStateRejectsInvalid(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	if err := client.UpsertEscalationState(context.Background(), &db.EscalationState{}); err == nil {
		t.Fatal("state without sender must be rejected")
	}
}

func TestSenderRoundTrip(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()
	firstSeen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sender := &db.Sender{ID: 42, FirstSeenAt: firstSeen, MessageCount: 10}
	if err := client.UpsertSender(ctx, sender); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	sender.MessageCount = 11
	if err := client.UpsertSender(ctx, sender); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	senders, err := client.GetSenders(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(senders) != 1 || senders[0].MessageCount != 11 {
		t.Fatalf("senders = %+v", senders)
	}
}

func TestStrikeCounts(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := client.AddStrike(ctx, &db.Strike{SenderID: 1, GroupID: 10, Reason: "spam", CreatedAt: now})
		if err != nil {
			t.Fatalf("add strike: %v", err)
		}
	}
	if err := client.AddStrike(ctx, &db.Strike{SenderID: 2, GroupID: 10, Reason: "scam", CreatedAt: now}); err != nil {
		t.Fatalf("add strike: %v", err)
	}

	counts, err := client.GetStrikeCounts(ctx)
	if err != nil {
		t.Fatalf("get counts: %v", err)
	}
	if counts[1] != 3 || counts[2] != 1 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestKVRoundTrip(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	if got, err := client.GetKV(ctx, "missing"); err != nil || got != "" {
		t.Fatalf("missing key: got %q, err %v", got, err)
	}
	if err := client.SetKV(ctx, "quota_state", `{"remaining": 5}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := client.SetKV(ctx, "quota_state", `{"remaining": 4}`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := client.GetKV(ctx, "quota_state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != `{"remaining": 4}` {
		t.Fatalf("value = %q", got)
	}
}

package telegram

import (
	"context"
	"strings"
	"testing"

	"github.com/iamwavecut/modbot/internal/moderation"
)

type recordingGateway struct {
	delivered []moderation.FinalAction
	forwarded []string
	statuses  int
}

func (g *recordingGateway) DeliverAction(ctx context.Context, msg moderation.Message, action moderation.FinalAction) error {
	g.delivered = append(g.delivered, action)
	return nil
}

func (g *recordingGateway) ForwardToReview(ctx context.Context, msg moderation.Message, annotation string) error {
	g.forwarded = append(g.forwarded, annotation)
	return nil
}

func (g *recordingGateway) UpdateStatus(ctx context.Context, snapshot moderation.StatusSnapshot) error {
	g.statuses++
	return nil
}

func TestDryRunWithholdsActions(t *testing.T) {
	t.Parallel()

	inner := &recordingGateway{}
	dry := NewDryRun(inner)

	err := dry.DeliverAction(context.Background(), moderation.Message{ID: 1, SenderID: 7}, moderation.FinalAction{
		Kind:   moderation.ActionBan,
		Reason: "scam",
	})
	if err != nil {
		t.Fatalf("DeliverAction: %v", err)
	}

	if len(inner.delivered) != 0 {
		t.Fatal("dry run must never deliver an action")
	}
	if len(inner.forwarded) != 1 {
		t.Fatalf("forwarded = %v, want one annotation", inner.forwarded)
	}
	if !strings.Contains(inner.forwarded[0], "[DRY RUN]") || !strings.Contains(inner.forwarded[0], "ban") {
		t.Fatalf("annotation = %q", inner.forwarded[0])
	}
}

func TestDryRunPassesThroughReviewAndStatus(t *testing.T) {
	t.Parallel()

	inner := &recordingGateway{}
	dry := NewDryRun(inner)
	ctx := context.Background()

	if err := dry.ForwardToReview(ctx, moderation.Message{}, "note"); err != nil {
		t.Fatalf("ForwardToReview: %v", err)
	}
	if err := dry.UpdateStatus(ctx, moderation.StatusSnapshot{}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if len(inner.forwarded) != 1 || inner.statuses != 1 {
		t.Fatalf("forwarded=%v statuses=%d", inner.forwarded, inner.statuses)
	}
}

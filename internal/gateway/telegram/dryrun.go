package telegram

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modbot/internal/moderation"
)

// DryRun wraps a gateway so decisions are made and reported but no
// action touches the group. Delivery turns into a review-channel note.
type DryRun struct {
	inner  moderation.Gateway
	logger *log.Entry
}

func NewDryRun(inner moderation.Gateway) *DryRun {
	return &DryRun{
		inner:  inner,
		logger: log.WithField("object", "DryRunGateway"),
	}
}

func (d *DryRun) DeliverAction(ctx context.Context, msg moderation.Message, action moderation.FinalAction) error {
	d.logger.WithField("action", string(action.Kind)).
		WithField("sender_id", msg.SenderID).
		Info("dry run, action withheld")
	annotation := fmt.Sprintf("[DRY RUN] would %s: %s", action.Kind, action.Reason)
	return d.inner.ForwardToReview(ctx, msg, annotation)
}

func (d *DryRun) ForwardToReview(ctx context.Context, msg moderation.Message, annotation string) error {
	return d.inner.ForwardToReview(ctx, msg, annotation)
}

func (d *DryRun) UpdateStatus(ctx context.Context, snapshot moderation.StatusSnapshot) error {
	return d.inner.UpdateStatus(ctx, snapshot)
}

package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	apperrors "github.com/iamwavecut/modbot/internal/errors"
	"github.com/iamwavecut/modbot/internal/moderation"
)

const statusEditInterval = 5 * time.Minute

// Gateway applies moderation actions through the Telegram bot API and
// maintains a single status message in the review group, edited in
// place rather than reposted.
type Gateway struct {
	bot           *api.BotAPI
	reviewGroupID int64
	muteDuration  time.Duration

	mu              sync.Mutex
	statusMessageID int
	lastStatusEdit  time.Time

	logger *log.Entry
}

func NewGateway(bot *api.BotAPI, reviewGroupID int64, muteDuration time.Duration) *Gateway {
	return &Gateway{
		bot:           bot,
		reviewGroupID: reviewGroupID,
		muteDuration:  muteDuration,
		logger:        log.WithField("object", "TelegramGateway"),
	}
}

func (g *Gateway) DeliverAction(ctx context.Context, msg moderation.Message, action moderation.FinalAction) error {
	switch action.Kind {
	case moderation.ActionReply:
		return g.reply(msg, action.Reply, action.Reason)
	case moderation.ActionDelete:
		return g.deleteMessage(msg, action.Reply)
	case moderation.ActionMute:
		if err := g.deleteMessage(msg, ""); err != nil {
			g.logger.WithError(err).Warn("cant delete message before mute")
		}
		return g.restrictUser(msg.SenderID, msg.GroupID)
	case moderation.ActionBan:
		if err := g.deleteMessage(msg, ""); err != nil {
			g.logger.WithError(err).Warn("cant delete message before ban")
		}
		return g.banUser(msg.SenderID, msg.GroupID)
	case moderation.ActionNone:
		return nil
	}
	return fmt.Errorf("unknown action kind %q", action.Kind)
}

func (g *Gateway) ForwardToReview(ctx context.Context, msg moderation.Message, annotation string) error {
	text := fmt.Sprintf("⚖️ %s\n%s (%d) in %d:\n%s",
		annotation, msg.SenderName, msg.SenderID, msg.GroupID, msg.Text)
	out := api.NewMessage(g.reviewGroupID, text)
	if _, err := g.bot.Send(out); err != nil {
		return fmt.Errorf("failed to forward to review: %w", err)
	}
	return nil
}

// UpdateStatus edits the pinned status message in place. Edits are
// throttled; a fresh snapshot inside the throttle window is dropped,
// the next one catches up.
func (g *Gateway) UpdateStatus(ctx context.Context, snapshot moderation.StatusSnapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if g.statusMessageID != 0 && now.Sub(g.lastStatusEdit) < statusEditInterval {
		return nil
	}

	text := formatStatus(snapshot)
	if g.statusMessageID == 0 {
		sent, err := g.bot.Send(api.NewMessage(g.reviewGroupID, text))
		if err != nil {
			return fmt.Errorf("failed to post status: %w", err)
		}
		g.statusMessageID = sent.MessageID
		g.lastStatusEdit = now
		return nil
	}

	edit := api.NewEditMessageText(g.reviewGroupID, g.statusMessageID, text)
	if _, err := g.bot.Request(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			g.lastStatusEdit = now
			return nil
		}
		return fmt.Errorf("failed to edit status: %w", err)
	}
	g.lastStatusEdit = now
	return nil
}

func (g *Gateway) reply(msg moderation.Message, reply, reason string) error {
	if reply == "" {
		reply = "⚠️ " + reason
	}
	out := api.NewMessage(msg.GroupID, reply)
	out.ReplyParameters = api.ReplyParameters{MessageID: int(msg.ID)}
	if _, err := g.bot.Send(out); err != nil {
		return fmt.Errorf("failed to send warning reply: %w", err)
	}
	return nil
}

func (g *Gateway) deleteMessage(msg moderation.Message, notice string) error {
	if _, err := g.bot.Request(api.NewDeleteMessage(msg.GroupID, int(msg.ID))); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if notice != "" {
		if _, err := g.bot.Send(api.NewMessage(msg.GroupID, notice)); err != nil {
			g.logger.WithError(err).Warn("cant send deletion notice")
		}
	}
	return nil
}

func (g *Gateway) restrictUser(userID, chatID int64) error {
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		UntilDate: time.Now().Add(g.muteDuration).Unix(),
		Permissions: &api.ChatPermissions{
			CanSendMessages:       false,
			CanSendOtherMessages:  false,
			CanAddWebPagePreviews: false,
		},
	}
	if _, err := g.bot.Request(config); err != nil {
		return fmt.Errorf("failed to restrict user: %w", err)
	}
	return nil
}

func (g *Gateway) banUser(userID, chatID int64) error {
	config := api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		RevokeMessages: true,
	}
	if _, err := g.bot.Request(config); err != nil {
		if strings.Contains(err.Error(), "not enough rights") {
			return fmt.Errorf("ban user: %w", apperrors.ErrNoPrivileges)
		}
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

func formatStatus(s moderation.StatusSnapshot) string {
	var b strings.Builder
	b.WriteString("🤖 Moderation status\n")
	fmt.Fprintf(&b, "Quota: %d/%d remaining, next remote call at %s\n",
		s.QuotaRemaining, s.QuotaDailyLimit, s.NextRemoteCallAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Batch: %d queued, oldest %s\n",
		s.BatchPending, s.BatchOldestAge.Round(time.Second))
	if s.LastActionKind != "" && s.LastActionKind != moderation.ActionNone {
		fmt.Fprintf(&b, "Last action: %s at %s\n",
			s.LastActionKind, s.LastActionAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Updated: %s", s.At.UTC().Format(time.RFC3339))
	return b.String()
}

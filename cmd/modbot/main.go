package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/modbot/internal/adapters"
	"github.com/iamwavecut/modbot/internal/adapters/llm/gemini"
	"github.com/iamwavecut/modbot/internal/adapters/llm/openai"
	"github.com/iamwavecut/modbot/internal/config"
	"github.com/iamwavecut/modbot/internal/db"
	"github.com/iamwavecut/modbot/internal/db/sqlite"
	"github.com/iamwavecut/modbot/internal/gateway/telegram"
	"github.com/iamwavecut/modbot/internal/infra"
	"github.com/iamwavecut/modbot/internal/lifecycle"
	"github.com/iamwavecut/modbot/internal/moderation"
	"github.com/iamwavecut/modbot/internal/observability"
)

const (
	quotaStateKey  = "quota_state"
	contextWindow  = 5
	defaultPrompt  = "You are a chat moderator. Judge the user message and answer with a single JSON object: {\"verdict\": \"ok|warn|delete|mute|ban\", \"reason\": \"...\", \"reply\": \"...\"}."
	storageTimeout = 5 * time.Second
)

func main() {
	log.SetFormatter(&config.ModFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := observability.Init(ctx, cfg.MetricsAddr); err != nil {
		log.WithError(err).Warnln("cant start observability")
	}

	store := sqlite.NewSQLiteClient("modbot.db")

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()

	systemPrompt := loadSystemPrompt(cfg.LLM.SystemPromptPath)

	localLLM := openai.NewOpenAI("local", cfg.LLM.LocalModel, cfg.LLM.LocalBaseURL,
		log.WithField("adapter", "local"))
	var remoteLLM adapters.LLM
	switch strings.ToLower(cfg.LLM.RemoteType) {
	case "gemini":
		remoteLLM = gemini.NewGemini(cfg.LLM.RemoteAPIKey, cfg.LLM.RemoteModel,
			log.WithField("adapter", "gemini"))
	default:
		remoteLLM = openai.NewOpenAI(cfg.LLM.RemoteAPIKey, cfg.LLM.RemoteModel, cfg.LLM.RemoteBaseURL,
			log.WithField("adapter", "remote"))
	}

	dedup, err := moderation.NewDedupCache(cfg.Moderation.DedupCacheSize)
	if err != nil {
		log.WithError(err).Fatalln("cant create dedup cache")
	}
	router := moderation.NewTrustRouter(time.Duration(cfg.Moderation.NewcomerWindowHours) * time.Hour)
	tracker := moderation.NewSenderTracker()
	quota := moderation.NewQuotaManager(cfg.Quota.DailyLimit, persistQuota(store))
	batch := moderation.NewBatchAggregator(cfg.Moderation.BatchMaxTokens, cfg.Moderation.BatchMaxWait)
	ladder := moderation.NewLadder(cfg.Moderation.UserCooldown)
	status := moderation.NewStatusPublisher(quota, batch, ladder)
	prefilter := moderation.NewPreFilter(cfg.Moderation.HardBanKeywords, cfg.Moderation.HardBanPatterns)

	restoreState(ctx, store, quota, tracker, ladder)

	var gw moderation.Gateway = telegram.NewGateway(botAPI, cfg.ReviewGroupID, cfg.Moderation.MuteDuration)
	if cfg.Moderation.DryRun {
		log.Warnln("dry run mode, actions are withheld")
		gw = telegram.NewDryRun(gw)
	}

	engine := moderation.NewEngine(moderation.Dependencies{
		Local:        localLLM,
		Remote:       moderation.NewRemoteBatcher(remoteLLM, systemPrompt),
		Gateway:      gw,
		Dedup:        dedup,
		Router:       router,
		Tracker:      tracker,
		Quota:        quota,
		Batch:        batch,
		Policy:       ladder,
		Status:       status,
		PreFilter:    prefilter,
		Strikes:      recordStrike(store),
		SystemPrompt: systemPrompt,
	})
	warmer := moderation.NewWarmer(localLLM, systemPrompt, cfg.Quota.WarmupInterval)

	runtime := lifecycle.NewRuntime(engine, warmer)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start components")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		infra.GoRecoverable(-1, "process_updates", func() {
			processUpdates(gctx, botAPI, cfg, engine, store, ladder, status)
		})
		return nil
	})

	select {
	case <-infra.MonitorExecutable(ctx):
		log.Errorln("executable file was modified")
		cancel()
	case <-ctx.Done():
	}
	log.Infoln("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := runtime.Stop(shutdownCtx); err != nil {
		log.WithError(err).Errorln("unclean component stop")
	}
	_ = g.Wait()

	saveState(store, tracker, ladder)
	if err := store.Close(); err != nil {
		log.WithError(err).Errorln("cant close db")
	}
}

func processUpdates(ctx context.Context, botAPI *api.BotAPI, cfg config.Config,
	engine *moderation.Engine, store db.Client, ladder *moderation.Ladder,
	status *moderation.StatusPublisher,
) {
	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := botAPI.GetUpdatesChan(updateConfig)

	recentTexts := map[int64][]string{}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil || msg.From == nil || msg.Text == "" {
				continue
			}
			if msg.IsCommand() && msg.From.ID == cfg.AdminUserID {
				handleAdminCommand(ctx, botAPI, store, ladder, status, msg)
				continue
			}
			if msg.Chat.IsPrivate() {
				continue
			}

			groupID := msg.Chat.ID
			engine.Evaluate(ctx, moderation.Message{
				ID:          int64(msg.MessageID),
				GroupID:     groupID,
				SenderID:    msg.From.ID,
				SenderName:  strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
				SenderAdmin: msg.From.ID == cfg.AdminUserID,
				Text:        msg.Text,
				ReceivedAt:  time.Now(),
				Context:     append([]string(nil), recentTexts[groupID]...),
			})

			recent := append(recentTexts[groupID], msg.Text)
			if len(recent) > contextWindow {
				recent = recent[len(recent)-contextWindow:]
			}
			recentTexts[groupID] = recent
		}
	}
}

func handleAdminCommand(ctx context.Context, botAPI *api.BotAPI, store db.Client,
	ladder *moderation.Ladder, status *moderation.StatusPublisher, msg *api.Message,
) {
	reply := func(text string) {
		if _, err := botAPI.Send(api.NewMessage(msg.Chat.ID, text)); err != nil {
			log.WithError(err).Errorln("cant reply to admin command")
		}
	}

	switch msg.Command() {
	case "modclear":
		senderID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
		if err != nil {
			reply("usage: /modclear <user_id>")
			return
		}
		ladder.Clear(senderID)
		opCtx, opCancel := context.WithTimeout(ctx, storageTimeout)
		defer opCancel()
		if err := store.DeleteEscalationState(opCtx, senderID); err != nil {
			log.WithError(err).WithField("sender_id", senderID).Errorln("cant clear stored state")
		}
		reply(fmt.Sprintf("escalation state cleared for %d", senderID))
	case "modstats":
		opCtx, opCancel := context.WithTimeout(ctx, storageTimeout)
		defer opCancel()
		counts, err := store.GetStrikeCounts(opCtx)
		if err != nil {
			log.WithError(err).Errorln("cant load strike counts")
			reply("failed to load strike counts")
			return
		}
		reply(status.Report(time.Now()) + "\n" + formatStrikes(counts))
	}
}

func formatStrikes(counts map[int64]int) string {
	if len(counts) == 0 {
		return "No strikes recorded."
	}
	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return counts[ids[i]] > counts[ids[j]] })
	if len(ids) > 10 {
		ids = ids[:10]
	}
	var b strings.Builder
	b.WriteString("Strikes:")
	for _, id := range ids {
		fmt.Fprintf(&b, "\n  %d: %d", id, counts[id])
	}
	return b.String()
}

func loadSystemPrompt(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warnln("cant read system prompt, using built-in")
		return defaultPrompt
	}
	return string(raw)
}

func persistQuota(store db.Client) func(moderation.QuotaState) {
	return func(state moderation.QuotaState) {
		raw, err := json.Marshal(state)
		if err != nil {
			log.WithError(err).Errorln("cant marshal quota state")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
		defer cancel()
		if err := store.SetKV(ctx, quotaStateKey, string(raw)); err != nil {
			log.WithError(err).Debugln("cant persist quota state")
		}
	}
}

func recordStrike(store db.Client) moderation.StrikeSink {
	return func(ctx context.Context, senderID, groupID int64, reason string, at time.Time) {
		opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
		defer cancel()
		err := store.AddStrike(opCtx, &db.Strike{
			SenderID:  senderID,
			GroupID:   groupID,
			Reason:    reason,
			CreatedAt: at,
		})
		if err != nil {
			log.WithError(err).WithField("sender_id", senderID).Errorln("cant record strike")
		}
	}
}

// restoreState loads what survived the last run. Any individual load
// failure starts that component clean rather than aborting startup.
func restoreState(ctx context.Context, store db.Client, quota *moderation.QuotaManager,
	tracker *moderation.SenderTracker, ladder *moderation.Ladder,
) {
	opCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	if raw, err := store.GetKV(opCtx, quotaStateKey); err != nil {
		log.WithError(err).Warnln("cant load quota state, starting fresh")
	} else if raw != "" {
		var state moderation.QuotaState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			log.WithError(err).Warnln("corrupt quota state, starting fresh")
		} else {
			quota.Restore(state)
		}
	}

	if senders, err := store.GetSenders(opCtx); err != nil {
		log.WithError(err).Warnln("cant load senders, starting fresh")
	} else {
		profiles := make([]moderation.SenderProfile, 0, len(senders))
		for _, s := range senders {
			profiles = append(profiles, moderation.SenderProfile{
				SenderID:     s.ID,
				JoinedAt:     s.FirstSeenAt,
				MessageCount: s.MessageCount,
			})
		}
		tracker.Load(profiles)
	}

	if rows, err := store.GetEscalationStates(opCtx); err != nil {
		log.WithError(err).Warnln("cant load escalation states, starting fresh")
	} else {
		states := make([]moderation.UserEscalationState, 0, len(rows))
		for _, r := range rows {
			states = append(states, moderation.UserEscalationState{
				SenderID:       r.SenderID,
				WarningCount:   r.WarningCount,
				StrikeCount:    r.StrikeCount,
				LastActionAt:   r.LastActionAt,
				LastActionKind: moderation.VerdictKind(r.LastActionKind),
			})
		}
		ladder.LoadStates(states)
	}
}

func saveState(store db.Client, tracker *moderation.SenderTracker, ladder *moderation.Ladder) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	for _, p := range tracker.Profiles() {
		err := store.UpsertSender(ctx, &db.Sender{
			ID:           p.SenderID,
			FirstSeenAt:  p.JoinedAt,
			MessageCount: p.MessageCount,
		})
		if err != nil {
			log.WithError(err).WithField("sender_id", p.SenderID).Errorln("cant save sender")
		}
	}

	for _, s := range ladder.States() {
		err := store.UpsertEscalationState(ctx, &db.EscalationState{
			SenderID:       s.SenderID,
			WarningCount:   s.WarningCount,
			StrikeCount:    s.StrikeCount,
			LastActionKind: string(s.LastActionKind),
			LastActionAt:   s.LastActionAt,
		})
		if err != nil {
			log.WithError(err).WithField("sender_id", s.SenderID).Errorln("cant save escalation state")
		}
	}
}

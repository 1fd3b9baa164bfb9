package moderation

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modbot/internal/adapters"
	"github.com/iamwavecut/modbot/internal/adapters/llm"
)

const batchInstruction = "\n\n---\n" +
	"BATCH MODE: You will receive a JSON array of messages. " +
	"Return a JSON ARRAY of verdicts, one per message, in the same order. " +
	`Each verdict has the format: {"verdict": "ok"|"warn"|"delete"|"mute"|"ban", "reason": "...", "reply": "..."}`

type batchPayloadEntry struct {
	Index     int      `json:"index"`
	MessageID int64    `json:"message_id"`
	SenderID  int64    `json:"sender_id"`
	Sender    string   `json:"sender"`
	Message   string   `json:"message"`
	Context   []string `json:"context,omitempty"`
}

// RemoteBatcher turns one drained batch into one order-preserving
// remote call. The response must carry exactly one verdict per entry;
// anything else is an error for the caller to degrade.
type RemoteBatcher struct {
	backend      adapters.LLM
	systemPrompt string
	logger       *log.Entry
}

func NewRemoteBatcher(backend adapters.LLM, systemPrompt string) *RemoteBatcher {
	return &RemoteBatcher{
		backend:      backend,
		systemPrompt: systemPrompt,
		logger:       log.WithField("object", "RemoteBatcher"),
	}
}

func (r *RemoteBatcher) CompleteBatch(ctx context.Context, entries []BatchEntry) ([]Verdict, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	payload := make([]batchPayloadEntry, 0, len(entries))
	for i, entry := range entries {
		payload = append(payload, batchPayloadEntry{
			Index:     i,
			MessageID: entry.Message.ID,
			SenderID:  entry.Message.SenderID,
			Sender:    entry.Message.SenderName,
			Message:   entry.Message.Text,
			Context:   entry.Message.Context,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal batch payload: %w", err)
	}

	resp, err := r.backend.ChatCompletion(ctx, []llm.ChatCompletionMessage{
		{Role: llm.RoleSystem, Content: r.systemPrompt + batchInstruction},
		{Role: llm.RoleUser, Content: string(body)},
	})
	if err != nil {
		return nil, fmt.Errorf("remote batch call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("remote batch call: empty response")
	}

	raw := resp.Choices[0].Message.Content
	verdicts, err := ParseBatchVerdicts(raw, len(entries))
	if err != nil {
		r.logger.WithError(err).WithField("raw", raw).Warn("unusable batch response")
		return nil, err
	}
	return verdicts, nil
}

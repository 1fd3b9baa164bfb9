package moderation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrBatchMismatch marks a batch response whose verdict count differs
// from the entry count. Guessing alignment would attribute verdicts to
// the wrong senders, so the caller must treat the whole batch as
// unusable instead.
var ErrBatchMismatch = errors.New("batch verdict count mismatch")

var (
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	arrayPattern  = regexp.MustCompile(`(?s)\[.*\]`)
)

type verdictEnvelope struct {
	Verdict string  `json:"verdict"`
	Reason  *string `json:"reason"`
	Reply   string  `json:"reply"`
}

func (e verdictEnvelope) toVerdict() (Verdict, error) {
	kind := VerdictKind(strings.ToLower(strings.TrimSpace(e.Verdict)))
	if !kind.Valid() {
		return Verdict{}, fmt.Errorf("unknown verdict value %q", e.Verdict)
	}
	if e.Reason == nil {
		return Verdict{}, fmt.Errorf("missing reason")
	}
	return Verdict{Kind: kind, Reason: *e.Reason, Reply: e.Reply}, nil
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ParseVerdict parses a single structured verdict. It accepts a bare
// JSON object, optionally fenced or surrounded by prose. Callers must
// degrade a failed parse to an ok verdict and log the raw payload;
// a malformed response never drops the message or stops the loop.
func ParseVerdict(raw string) (Verdict, error) {
	cleaned := stripFences(raw)

	var envelope verdictEnvelope
	if err := json.Unmarshal([]byte(cleaned), &envelope); err == nil {
		return envelope.toVerdict()
	}

	match := objectPattern.FindString(cleaned)
	if match == "" {
		return Verdict{}, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(match), &envelope); err != nil {
		return Verdict{}, fmt.Errorf("unmarshal verdict: %w", err)
	}
	return envelope.toVerdict()
}

// ParseBatchVerdicts parses an ordered array of verdicts. The response
// must contain exactly expected entries; verdict i belongs to batch
// entry i.
func ParseBatchVerdicts(raw string, expected int) ([]Verdict, error) {
	cleaned := stripFences(raw)

	var envelopes []verdictEnvelope
	if err := json.Unmarshal([]byte(cleaned), &envelopes); err != nil {
		match := arrayPattern.FindString(cleaned)
		if match == "" {
			return nil, fmt.Errorf("no JSON array in response")
		}
		if err := json.Unmarshal([]byte(match), &envelopes); err != nil {
			return nil, fmt.Errorf("unmarshal batch verdicts: %w", err)
		}
	}

	if len(envelopes) != expected {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBatchMismatch, len(envelopes), expected)
	}

	verdicts := make([]Verdict, 0, expected)
	for i, envelope := range envelopes {
		verdict, err := envelope.toVerdict()
		if err != nil {
			return nil, fmt.Errorf("verdict %d: %w", i, err)
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts, nil
}

// FallbackVerdict is the degrade-to-ok verdict used when a backend
// response is unusable.
func FallbackVerdict(reason string) Verdict {
	return Verdict{Kind: VerdictOK, Reason: reason}
}

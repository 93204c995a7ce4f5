package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"siriuschat/internal/message"
	"siriuschat/internal/provider"
)

// Verdict is the filter model's decision for one reply fragment.
type Verdict struct {
	CanSend bool   `json:"can_send"`
	Reason  string `json:"reason"`
}

// FilterModel reviews a chat model's processed output before delivery.
type FilterModel struct {
	*Model
}

func NewFilterModel(profile Profile, platform provider.Platform, systemPrompt string, logger *slog.Logger) *FilterModel {
	return &FilterModel{Model: newModel(profile, platform, systemPrompt, logger)}
}

// Review builds a fresh single-turn chain from the payload under review
// and returns one verdict per fragment. A bare top-level array in the
// model output is accepted as the verified list.
func (m *FilterModel) Review(ctx context.Context, payload map[string]any) ([]Verdict, error) {
	chain, err := message.NewMessageChain([]message.Turn{
		{Role: message.RoleSystem, Content: m.system},
		{Role: message.RoleUser, Content: marshalForReview(payload)},
	})
	if err != nil {
		return nil, &ExecError{Op: "filter chain", Err: err}
	}
	content, err := m.Invoke(ctx, &message.ChatRequest{Chain: chain})
	if err != nil {
		return nil, err
	}
	return parseVerdicts(content)
}

func parseVerdicts(content string) ([]Verdict, error) {
	raw := stripCodeFence(content)

	var wrapped struct {
		Verified []Verdict `json:"verified"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Verified != nil {
		return wrapped.Verified, nil
	}

	var bare []Verdict
	if err := json.Unmarshal([]byte(raw), &bare); err == nil {
		return bare, nil
	}

	sane := sanitizeJSONEscapes(raw)
	if err := json.Unmarshal([]byte(sane), &wrapped); err == nil && wrapped.Verified != nil {
		return wrapped.Verified, nil
	}
	if err := json.Unmarshal([]byte(sane), &bare); err == nil {
		return bare, nil
	}
	return nil, &ExecError{Op: "filter output", Err: fmt.Errorf("no verified list in %q", truncate(content, 200))}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

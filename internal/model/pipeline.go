package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"siriuschat/internal/message"
	"siriuschat/internal/metrics"
	"siriuschat/internal/provider"
	"siriuschat/internal/tool"
)

// maxToolRounds caps the tool-calling loop. The model decides when to
// stop calling tools, but the cap guarantees termination even against a
// model that keeps re-requesting.
const maxToolRounds = 8

// ExecError wraps provider and content failures at the pipeline
// boundary, so callers can treat "the invocation did not produce a
// usable result" as one condition.
type ExecError struct {
	Op  string
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("model execution failed (%s): %v", e.Op, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Model binds a profile, a platform, a system prompt, and the
// pre-compiled descriptors of any registered tools. Specializations
// embed it and add their own output parsing.
type Model struct {
	profile     Profile
	platform    provider.Platform
	system      string
	descriptors []map[string]any
	logger      *slog.Logger
}

func newModel(profile Profile, platform provider.Platform, system string, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		profile:  profile.withDefaults(),
		platform: platform,
		system:   system,
		logger:   logger,
	}
}

// SystemPrompt returns the model's current system prompt.
func (m *Model) SystemPrompt() string { return m.system }

// NewChain starts a chain with the model's system prompt and an
// optional first user turn.
func (m *Model) NewChain(userText, imageB64 string) (*message.MessageChain, error) {
	var b message.MessageChainBuilder
	if err := b.Start(m.system); err != nil {
		return nil, err
	}
	if userText != "" || imageB64 != "" {
		if err := b.AddUser(userText, imageB64); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func (m *Model) buildPayload(turns []message.Turn, withTools bool) provider.Payload {
	p := provider.Payload{
		Model:            m.profile.Name,
		Messages:         turns,
		MaxTokens:        m.profile.MaxTokens,
		Stop:             m.profile.Stop,
		Temperature:      m.profile.Temperature,
		TopP:             m.profile.TopP,
		FrequencyPenalty: m.profile.FrequencyPenalty,
		PresencePenalty:  m.profile.PresencePenalty,
		N:                m.profile.N,
		Extra: map[string]any{
			"thinking":        m.profile.EnableThinking,
			"thinking_budget": m.profile.ThinkingBudget,
		},
	}
	if m.profile.ResponseFormat != "" {
		p.ResponseFormat = &provider.ResponseFormat{Type: m.profile.ResponseFormat}
	}
	if withTools && len(m.descriptors) > 0 {
		p.Tools = m.descriptors
	}
	return p
}

// registerTools pre-compiles tool descriptors. Called once by the chat
// specialization; registering twice is a misuse.
func (m *Model) registerTools(tools []tool.Tool) error {
	if len(m.descriptors) > 0 {
		return fmt.Errorf("tools already registered")
	}
	seen := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("duplicate tool name %s", t.Name)
		}
		seen[t.Name] = struct{}{}
		m.descriptors = append(m.descriptors, t.Descriptor())
	}
	return nil
}

// Invoke runs the invocation loop for one request and returns the final
// content string. Each round either yields final content or a batch of
// tool-call requests; tool results are appended as tool turns and the
// loop continues with the extended message list. Only tools present in
// the request's registered set are ever executed.
func (m *Model) Invoke(ctx context.Context, req *message.ChatRequest) (string, error) {
	turns := req.Chain.Turns()

	for round := 0; round < maxToolRounds; round++ {
		payload := m.buildPayload(turns, len(req.Tools) > 0)
		start := time.Now()
		completion, err := m.platform.Complete(ctx, payload)
		metrics.ModelRequests.Inc()
		metrics.ModelLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			return "", &ExecError{Op: "complete", Err: err}
		}

		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		turns = append(turns, message.Turn{
			Role:      message.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})
		for _, tc := range msg.ToolCalls {
			out, err := m.executeCall(req, tc)
			if err != nil {
				return "", err
			}
			turns = append(turns, message.Turn{
				Role:       message.RoleTool,
				Content:    out,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", &ExecError{Op: "tool loop", Err: fmt.Errorf("no final content after %d rounds", maxToolRounds)}
}

// executeCall resolves and runs one requested tool call. An
// unregistered name is a hard validation failure; undecodable arguments
// degrade to a refusal message fed back to the model.
func (m *Model) executeCall(req *message.ChatRequest, tc provider.ToolCall) (string, error) {
	name := tc.Function.Name
	t, ok := req.Tool(name)
	if !ok {
		return "", fmt.Errorf("model requested unregistered tool %q (registered: %v)", name, req.ToolNames())
	}

	var args map[string]any
	var out string
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		// Only sanitize when the raw arguments do not parse; valid
		// input must reach the tool untouched.
		if err := json.Unmarshal([]byte(sanitizeJSONEscapes(tc.Function.Arguments)), &args); err != nil {
			args = nil
		}
	}
	if args == nil {
		m.logger.Warn("tool arguments not a JSON object, refusing call",
			"tool", name, "arguments", tc.Function.Arguments)
		out = fmt.Sprintf("调用函数 %s 失败，请直接告诉用户你无法完成这一操作。", name)
	} else {
		result, err := t.Run(args)
		if err != nil {
			return "", &ExecError{Op: "tool " + name, Err: err}
		}
		metrics.ToolRuns.Inc()
		out = result
	}

	// Tell the model not to request the same tool again this turn.
	out += fmt.Sprintf("\n**禁止继续调用该函数。明确执行函数 %s 的要求**", name)
	return out, nil
}

package model

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"siriuschat/internal/message"
	"siriuschat/internal/provider"
	"siriuschat/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubPlatform replays scripted completions in order.
type stubPlatform struct {
	completions []*provider.Completion
	calls       int
	payloads    []provider.Payload
}

func (s *stubPlatform) Name() string { return "stub" }

func (s *stubPlatform) Complete(ctx context.Context, p provider.Payload) (*provider.Completion, error) {
	s.payloads = append(s.payloads, p)
	if s.calls >= len(s.completions) {
		// Keep replaying the last scripted completion.
		s.calls++
		return s.completions[len(s.completions)-1], nil
	}
	c := s.completions[s.calls]
	s.calls++
	return c, nil
}

func textCompletion(content string) *provider.Completion {
	return &provider.Completion{Choices: []provider.Choice{
		{Message: provider.AssistantMessage{Content: content}},
	}}
}

func toolCompletion(name, arguments string) *provider.Completion {
	return &provider.Completion{Choices: []provider.Choice{
		{Message: provider.AssistantMessage{ToolCalls: []provider.ToolCall{
			{ID: "call_1", Type: "function", Function: provider.FunctionCall{Name: name, Arguments: arguments}},
		}}},
	}}
}

func requestWithTools(t *testing.T, tools ...tool.Tool) *message.ChatRequest {
	t.Helper()
	var b message.MessageChainBuilder
	if err := b.Start("system"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.AddUser("hello", ""); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	chain, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return &message.ChatRequest{Chain: chain, Source: "G100", Tools: tools}
}

func TestInvoke_ReturnsContentWithoutToolCalls(t *testing.T) {
	stub := &stubPlatform{completions: []*provider.Completion{textCompletion("done")}}
	m := newModel(Profile{Name: "test"}, stub, "system", testLogger())

	out, err := m.Invoke(context.Background(), requestWithTools(t))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "done" {
		t.Fatalf("content = %q", out)
	}
	if stub.calls != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls)
	}
}

func TestInvoke_RunsToolThenReturnsContent(t *testing.T) {
	echo, err := tool.New("echo", "回显", struct {
		Text string `json:"text"`
	}{}, func(args map[string]any) (string, error) {
		return args["text"].(string), nil
	})
	if err != nil {
		t.Fatalf("tool.New: %v", err)
	}

	stub := &stubPlatform{completions: []*provider.Completion{
		toolCompletion("echo", `{"text":"pong"}`),
		textCompletion("final"),
	}}
	m := newModel(Profile{Name: "test"}, stub, "system", testLogger())
	if err := m.registerTools([]tool.Tool{echo}); err != nil {
		t.Fatalf("registerTools: %v", err)
	}

	out, err := m.Invoke(context.Background(), requestWithTools(t, echo))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "final" {
		t.Fatalf("content = %q", out)
	}
	if stub.calls != 2 {
		t.Fatalf("calls = %d, want 2", stub.calls)
	}

	// The second payload must carry the assistant tool-call turn and
	// the tool result turn with the same call id.
	second := stub.payloads[1].Messages
	last := second[len(second)-1]
	if last.Role != message.RoleTool || last.ToolCallID != "call_1" {
		t.Fatalf("last turn = %+v, want tool result for call_1", last)
	}
	if !strings.Contains(last.Content.(string), "pong") {
		t.Fatalf("tool result = %v, want the tool output", last.Content)
	}
	if !strings.Contains(last.Content.(string), "禁止继续调用该函数") {
		t.Fatal("tool result missing the no-repeat guard suffix")
	}
	assistant := second[len(second)-2]
	if assistant.Role != message.RoleAssistant || assistant.ToolCalls == nil {
		t.Fatalf("turn before tool result = %+v, want assistant tool-call turn", assistant)
	}
}

func TestInvoke_UnregisteredToolIsHardFailure(t *testing.T) {
	stub := &stubPlatform{completions: []*provider.Completion{
		toolCompletion("missing", `{}`),
	}}
	m := newModel(Profile{Name: "test"}, stub, "system", testLogger())

	_, err := m.Invoke(context.Background(), requestWithTools(t))
	if err == nil {
		t.Fatal("expected hard failure for unregistered tool")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Fatalf("error %v should name the tool", err)
	}
}

func TestInvoke_BadArgumentsBecomeRefusal(t *testing.T) {
	ran := false
	echo, err := tool.New("echo", "回显", struct {
		Text string `json:"text"`
	}{}, func(args map[string]any) (string, error) {
		ran = true
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("tool.New: %v", err)
	}

	stub := &stubPlatform{completions: []*provider.Completion{
		toolCompletion("echo", `not json at all`),
		textCompletion("final"),
	}}
	m := newModel(Profile{Name: "test"}, stub, "system", testLogger())

	out, err := m.Invoke(context.Background(), requestWithTools(t, echo))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "final" {
		t.Fatalf("content = %q", out)
	}
	if ran {
		t.Fatal("tool must not run on undecodable arguments")
	}
	second := stub.payloads[1].Messages
	last := second[len(second)-1]
	if !strings.Contains(last.Content.(string), "调用函数 echo 失败") {
		t.Fatalf("tool result = %v, want the refusal message", last.Content)
	}
}

func TestInvoke_EscapedBackslashArgumentsReachTool(t *testing.T) {
	var gotPath string
	readFile, err := tool.New("read_file", "读取文件", struct {
		Path string `json:"path"`
	}{}, func(args map[string]any) (string, error) {
		gotPath, _ = args["path"].(string)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("tool.New: %v", err)
	}

	stub := &stubPlatform{completions: []*provider.Completion{
		toolCompletion("read_file", `{"path":"C:\\data"}`),
		textCompletion("final"),
	}}
	m := newModel(Profile{Name: "test"}, stub, "system", testLogger())

	out, err := m.Invoke(context.Background(), requestWithTools(t, readFile))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "final" {
		t.Fatalf("content = %q", out)
	}
	if gotPath != `C:\data` {
		t.Fatalf("tool received path %q, want the decoded backslash", gotPath)
	}
}

func TestInvoke_LoopCapAgainstReRequestingModel(t *testing.T) {
	echo, err := tool.New("echo", "回显", struct {
		Text string `json:"text"`
	}{}, func(args map[string]any) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("tool.New: %v", err)
	}

	// The stub keeps requesting the same tool forever.
	stub := &stubPlatform{completions: []*provider.Completion{
		toolCompletion("echo", `{"text":"again"}`),
	}}
	m := newModel(Profile{Name: "test"}, stub, "system", testLogger())

	_, err = m.Invoke(context.Background(), requestWithTools(t, echo))
	if err == nil {
		t.Fatal("expected error when the loop cap is exhausted")
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error %T, want *ExecError", err)
	}
	if stub.calls != maxToolRounds {
		t.Fatalf("calls = %d, want exactly the loop cap %d", stub.calls, maxToolRounds)
	}
}

func TestInvoke_PlatformErrorWrapped(t *testing.T) {
	m := newModel(Profile{Name: "test"}, failingPlatform{}, "system", testLogger())
	_, err := m.Invoke(context.Background(), requestWithTools(t))
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error %T, want *ExecError", err)
	}
}

type failingPlatform struct{}

func (failingPlatform) Name() string { return "failing" }
func (failingPlatform) Complete(ctx context.Context, p provider.Payload) (*provider.Completion, error) {
	return nil, errors.New("boom")
}

func TestBuildPayload_ResponseFormatOnlyWhenSet(t *testing.T) {
	m := newModel(Profile{Name: "test", ResponseFormat: "json_object"}, &stubPlatform{}, "s", testLogger())
	p := m.buildPayload([]message.Turn{{Role: message.RoleSystem, Content: "s"}}, false)
	if p.ResponseFormat == nil || p.ResponseFormat.Type != "json_object" {
		t.Fatalf("response format = %+v", p.ResponseFormat)
	}

	m2 := newModel(Profile{Name: "test"}, &stubPlatform{}, "s", testLogger())
	p2 := m2.buildPayload([]message.Turn{{Role: message.RoleSystem, Content: "s"}}, false)
	if p2.ResponseFormat != nil {
		t.Fatalf("response format should be omitted, got %+v", p2.ResponseFormat)
	}
}

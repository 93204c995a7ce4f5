package model

import (
	"context"
	"testing"

	"siriuschat/internal/provider"
	"siriuschat/internal/tool"
)

func TestReply_ParsesFragmentsEmotionDiary(t *testing.T) {
	stub := &stubPlatform{completions: []*provider.Completion{
		textCompletion(`{"content":["你好","今天天气不错"],"emotion":"喜悦","diary":"聊了天气"}`),
	}}
	m := &ChatModel{Model: newModel(Profile{Name: "test"}, stub, "system", testLogger())}

	reply, err := m.Reply(context.Background(), requestWithTools(t), nil)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(reply.Fragments) != 2 || reply.Fragments[0] != "你好" {
		t.Fatalf("fragments = %v", reply.Fragments)
	}
	if reply.Emotion != "喜悦" {
		t.Fatalf("emotion = %q", reply.Emotion)
	}
	if reply.Diary != "聊了天气" {
		t.Fatalf("diary = %q", reply.Diary)
	}
	if reply.Verdicts != nil {
		t.Fatal("verdicts must be nil without a filter")
	}
}

func TestReply_UnknownEmotionFallsBackToNeutral(t *testing.T) {
	stub := &stubPlatform{completions: []*provider.Completion{
		textCompletion(`{"content":["嗯"],"emotion":"狂喜"}`),
	}}
	m := &ChatModel{Model: newModel(Profile{Name: "test"}, stub, "system", testLogger())}

	reply, err := m.Reply(context.Background(), requestWithTools(t), nil)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Emotion != EmotionNeutral {
		t.Fatalf("emotion = %q, want fallback %q", reply.Emotion, EmotionNeutral)
	}
}

func TestReply_CodeFencedOutputAccepted(t *testing.T) {
	stub := &stubPlatform{completions: []*provider.Completion{
		textCompletion("```json\n{\"content\":[\"hi\"],\"emotion\":\"平静\"}\n```"),
	}}
	m := &ChatModel{Model: newModel(Profile{Name: "test"}, stub, "system", testLogger())}

	reply, err := m.Reply(context.Background(), requestWithTools(t), nil)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(reply.Fragments) != 1 || reply.Fragments[0] != "hi" {
		t.Fatalf("fragments = %v", reply.Fragments)
	}
}

func TestReply_MissingContentIsHardError(t *testing.T) {
	stub := &stubPlatform{completions: []*provider.Completion{
		textCompletion(`{"emotion":"平静"}`),
	}}
	m := &ChatModel{Model: newModel(Profile{Name: "test"}, stub, "system", testLogger())}

	if _, err := m.Reply(context.Background(), requestWithTools(t), nil); err == nil {
		t.Fatal("expected error for output without a content list")
	}
}

func TestReply_FilterPassAttachesVerdicts(t *testing.T) {
	chatStub := &stubPlatform{completions: []*provider.Completion{
		textCompletion(`{"content":["一","二"],"emotion":"平静"}`),
	}}
	filterStub := &stubPlatform{completions: []*provider.Completion{
		textCompletion(`{"verified":[{"can_send":true,"reason":""},{"can_send":false,"reason":"敏感"}]}`),
	}}
	m := &ChatModel{Model: newModel(Profile{Name: "test"}, chatStub, "system", testLogger())}
	f := NewFilterModel(Profile{Name: "filter"}, filterStub, "review", testLogger())

	reply, err := m.Reply(context.Background(), requestWithTools(t), f)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(reply.Verdicts) != 2 {
		t.Fatalf("verdicts = %v", reply.Verdicts)
	}
	if reply.Verdicts[0].CanSend != true || reply.Verdicts[1].CanSend != false {
		t.Fatalf("verdict flags = %v", reply.Verdicts)
	}
	if reply.Verdicts[1].Reason != "敏感" {
		t.Fatalf("verdict reason = %q", reply.Verdicts[1].Reason)
	}
}

func TestRegisterTools_AppendsToolPrompt(t *testing.T) {
	m := NewChatModel(Profile{Name: "test"}, &stubPlatform{}, "base", testLogger())
	echo, err := tool.New("echo", "回显", struct {
		Text string `json:"text"`
	}{}, nil)
	if err != nil {
		t.Fatalf("tool.New: %v", err)
	}
	if err := m.RegisterTools([]tool.Tool{echo}, "可用工具说明"); err != nil {
		t.Fatalf("RegisterTools: %v", err)
	}
	if m.SystemPrompt() != "base\n可用工具说明" {
		t.Fatalf("system prompt = %q", m.SystemPrompt())
	}
	if len(m.Tools()) != 1 {
		t.Fatalf("tools = %v", m.Tools())
	}
	// Second registration is a misuse.
	if err := m.RegisterTools([]tool.Tool{echo}, ""); err == nil {
		t.Fatal("expected error on double registration")
	}
}

func TestValidEmotion(t *testing.T) {
	for _, e := range []string{"喜悦", "愤怒", "悲伤", "厌恶", "平静", "尴尬", "失望", "渴望", "疑惑"} {
		if !ValidEmotion(e) {
			t.Fatalf("%q should be valid", e)
		}
	}
	for _, e := range []string{"", "开心", "joy"} {
		if ValidEmotion(e) {
			t.Fatalf("%q should be invalid", e)
		}
	}
}

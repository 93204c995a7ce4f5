package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"siriuschat/internal/message"
	"siriuschat/internal/provider"
	"siriuschat/internal/tool"
)

// EmotionNeutral is the fallback when the model tags a reply with an
// affect outside the closed vocabulary.
const EmotionNeutral = "平静"

// emotionSet is the closed emotion vocabulary shared with the sticker
// catalog tags.
var emotionSet = map[string]struct{}{
	"喜悦": {}, "愤怒": {}, "悲伤": {}, "厌恶": {}, "平静": {},
	"尴尬": {}, "失望": {}, "渴望": {}, "疑惑": {},
}

// ValidEmotion reports whether tag is in the closed emotion set.
func ValidEmotion(tag string) bool {
	_, ok := emotionSet[tag]
	return ok
}

// Reply is the chat specialization's structured output.
type Reply struct {
	Fragments []string
	Emotion   string
	Diary     string
	Verdicts  []Verdict // filter pass results, aligned with Fragments; nil when no filter ran
}

// ChatModel produces persona replies.
type ChatModel struct {
	*Model
	toolSet []tool.Tool
}

func NewChatModel(profile Profile, platform provider.Platform, systemPrompt string, logger *slog.Logger) *ChatModel {
	return &ChatModel{Model: newModel(profile, platform, systemPrompt, logger)}
}

// RegisterTools compiles descriptors for the tool set and extends the
// system prompt with the capability description. Single-shot.
func (m *ChatModel) RegisterTools(tools []tool.Tool, toolPrompt string) error {
	if err := m.registerTools(tools); err != nil {
		return err
	}
	m.toolSet = tools
	if toolPrompt != "" {
		m.system += "\n" + toolPrompt
	}
	return nil
}

// Tools returns the registered tool set for attaching to requests.
func (m *ChatModel) Tools() []tool.Tool { return m.toolSet }

// Reply invokes the model for one request and extracts the reply
// fragments, emotion tag, and optional diary entry. When filter is
// non-nil the processed payload gets a secondary review pass.
func (m *ChatModel) Reply(ctx context.Context, req *message.ChatRequest, filter *FilterModel) (Reply, error) {
	content, err := m.Invoke(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	out, err := DecodeObject(content)
	if err != nil {
		return Reply{}, err
	}

	rawFragments, ok := out["content"].([]any)
	if !ok {
		return Reply{}, &ExecError{Op: "chat output", Err: fmt.Errorf("content field missing or not a list")}
	}
	reply := Reply{Fragments: make([]string, 0, len(rawFragments))}
	for _, f := range rawFragments {
		s, ok := f.(string)
		if !ok {
			return Reply{}, &ExecError{Op: "chat output", Err: fmt.Errorf("content fragment is %T, want string", f)}
		}
		reply.Fragments = append(reply.Fragments, s)
	}

	reply.Emotion = EmotionNeutral
	if tag, _ := out["emotion"].(string); ValidEmotion(tag) {
		reply.Emotion = tag
	}
	reply.Diary, _ = out["diary"].(string)

	if filter != nil {
		verdicts, err := filter.Review(ctx, out)
		if err != nil {
			return Reply{}, err
		}
		reply.Verdicts = verdicts
	}
	return reply, nil
}

// marshalForReview renders the processed payload as the filter model's
// input text.
func marshalForReview(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprint(payload)
	}
	return string(b)
}

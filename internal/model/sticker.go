package model

import (
	"context"
	"fmt"
	"log/slog"

	"siriuschat/internal/message"
	"siriuschat/internal/provider"
)

// Classification is the vision model's judgement of one image.
type Classification struct {
	IsSticker   bool
	Tags        []string
	Description string
}

// StickerModel classifies incoming images as sticker candidates.
type StickerModel struct {
	*Model
}

func NewStickerModel(profile Profile, platform provider.Platform, systemPrompt string, logger *slog.Logger) *StickerModel {
	// Vision endpoints commonly reject the response_format hint, so it
	// stays unset regardless of the profile.
	profile.ResponseFormat = ""
	return &StickerModel{Model: newModel(profile, platform, systemPrompt, logger)}
}

// Classify submits one base64-encoded image and parses the judgement.
func (m *StickerModel) Classify(ctx context.Context, imageB64 string) (Classification, error) {
	var builder message.MessageChainBuilder
	if err := builder.Start(m.system); err != nil {
		return Classification{}, &ExecError{Op: "sticker chain", Err: err}
	}
	if err := builder.AddUser("判别这张图片", imageB64); err != nil {
		return Classification{}, &ExecError{Op: "sticker chain", Err: err}
	}
	chain, err := builder.Build()
	if err != nil {
		return Classification{}, &ExecError{Op: "sticker chain", Err: err}
	}
	content, err := m.Invoke(ctx, &message.ChatRequest{Chain: chain})
	if err != nil {
		return Classification{}, err
	}
	out, err := DecodeObject(content)
	if err != nil {
		return Classification{}, err
	}

	var c Classification
	c.IsSticker, _ = out["is_meme"].(bool)
	c.Description, _ = out["desp"].(string)
	switch tags := out["meme_type"].(type) {
	case []any:
		for _, t := range tags {
			s, ok := t.(string)
			if !ok {
				return Classification{}, &ExecError{Op: "sticker output", Err: fmt.Errorf("meme_type entry is %T, want string", t)}
			}
			c.Tags = append(c.Tags, s)
		}
	case string:
		c.Tags = []string{tags}
	case nil:
	default:
		return Classification{}, &ExecError{Op: "sticker output", Err: fmt.Errorf("meme_type is %T", tags)}
	}
	return c, nil
}

package message

import (
	"errors"
	"fmt"
)

// Role names used in chain turns, matching the provider wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one role-tagged entry in a chain. Content is a plain string
// for text turns, or a part list for user turns carrying an inline
// image.
type Turn struct {
	Role       string `json:"role"`
	Content    any    `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolCalls  any    `json:"tool_calls,omitempty"` // assistant turns requesting tool use
}

// MessageChain is an ordered sequence of turns. Invariants, enforced at
// construction: non-empty, first turn is system, every turn has a role
// and content. Build chains through MessageChainBuilder; a built chain
// is read-only.
type MessageChain struct {
	turns []Turn
}

// NewMessageChain validates turns and wraps them in a chain. The slice
// is copied so callers cannot mutate a built chain.
func NewMessageChain(turns []Turn) (*MessageChain, error) {
	if len(turns) == 0 {
		return nil, errors.New("message chain must not be empty")
	}
	for i, t := range turns {
		if t.Role == "" || t.Content == nil {
			return nil, fmt.Errorf("turn %d is missing role or content", i)
		}
	}
	if turns[0].Role != RoleSystem {
		return nil, errors.New("message chain must start with a system turn")
	}
	copied := make([]Turn, len(turns))
	copy(copied, turns)
	return &MessageChain{turns: copied}, nil
}

// Turns returns a copy of the chain's turns.
func (c *MessageChain) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *MessageChain) Len() int { return len(c.turns) }

func (c *MessageChain) LastRole() string {
	return c.turns[len(c.turns)-1].Role
}

// imagePart and textPart are the rich content parts of a user turn that
// carries an inline image, in the provider's expected shape.
type imagePart struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessageChainBuilder stages turns for one chain. Start must be called
// before anything else; Build finalizes the chain and resets the
// builder, so each use produces exactly one chain.
type MessageChainBuilder struct {
	turns []Turn
}

// FromChain seeds a builder with an existing chain's turns, for
// extending a base chain with memory or history.
func FromChain(c *MessageChain) *MessageChainBuilder {
	return &MessageChainBuilder{turns: c.Turns()}
}

// Start supplies the system turn. Fails if the chain is already started.
func (b *MessageChainBuilder) Start(systemPrompt string) error {
	if len(b.turns) > 0 {
		return errors.New("chain already started, cannot add a second system turn")
	}
	b.turns = append(b.turns, Turn{Role: RoleSystem, Content: systemPrompt})
	return nil
}

func (b *MessageChainBuilder) ensureStarted() error {
	if len(b.turns) == 0 {
		return errors.New("chain not started, call Start first")
	}
	return nil
}

func (b *MessageChainBuilder) ensureNotConsecutive(role string) error {
	if len(b.turns) > 1 && b.turns[len(b.turns)-1].Role == role {
		return fmt.Errorf("consecutive %s turns are not allowed", role)
	}
	return nil
}

// AddUser appends a user turn. At least one of text or imageB64 is
// required. An image is encoded as an inline data URL part, with the
// text as a sibling part.
func (b *MessageChainBuilder) AddUser(text, imageB64 string) error {
	if err := b.ensureStarted(); err != nil {
		return err
	}
	if err := b.ensureNotConsecutive(RoleUser); err != nil {
		return err
	}
	switch {
	case imageB64 != "":
		parts := []any{imagePart{
			Type: "image_url",
			ImageURL: imageURL{
				URL:    "data:image/jpeg;base64," + imageB64,
				Detail: "low",
			},
		}}
		if text != "" {
			parts = append(parts, textPart{Type: "text", Text: text})
		}
		b.turns = append(b.turns, Turn{Role: RoleUser, Content: parts})
	case text != "":
		b.turns = append(b.turns, Turn{Role: RoleUser, Content: text})
	default:
		return errors.New("user turn needs text or an image")
	}
	return nil
}

// AddUserUnits renders units into a single user turn, one envelope per
// line.
func (b *MessageChainBuilder) AddUserUnits(units []*MessageUnit) error {
	if err := b.ensureStarted(); err != nil {
		return err
	}
	if len(units) == 0 {
		return errors.New("units must not be empty")
	}
	if err := b.ensureNotConsecutive(RoleUser); err != nil {
		return err
	}
	text := ""
	for i, u := range units {
		if i > 0 {
			text += "\n"
		}
		text += u.String()
	}
	b.turns = append(b.turns, Turn{Role: RoleUser, Content: text})
	return nil
}

// AddUnits appends units one turn each, self units as assistant turns.
func (b *MessageChainBuilder) AddUnits(units []*MessageUnit) error {
	if err := b.ensureStarted(); err != nil {
		return err
	}
	for _, u := range units {
		var err error
		if u.IsSelf {
			err = b.AddAssistant(u.String())
		} else {
			err = b.AddUser(u.String(), "")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AddAssistant appends an assistant turn.
func (b *MessageChainBuilder) AddAssistant(text string) error {
	if err := b.ensureStarted(); err != nil {
		return err
	}
	if err := b.ensureNotConsecutive(RoleAssistant); err != nil {
		return err
	}
	b.turns = append(b.turns, Turn{Role: RoleAssistant, Content: text})
	return nil
}

// AppendSystem concatenates onto the system turn's content, used to
// extend the persona with capability descriptions.
func (b *MessageChainBuilder) AppendSystem(text string) error {
	if err := b.ensureStarted(); err != nil {
		return err
	}
	sys, ok := b.turns[0].Content.(string)
	if !ok {
		return errors.New("system turn content is not text")
	}
	b.turns[0].Content = sys + "\n" + text
	return nil
}

// Build validates and returns the chain, then resets the builder.
func (b *MessageChainBuilder) Build() (*MessageChain, error) {
	chain, err := NewMessageChain(b.turns)
	if err != nil {
		return nil, err
	}
	b.turns = nil
	return chain, nil
}

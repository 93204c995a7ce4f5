package channel

import (
	"context"

	"siriuschat/internal/message"
)

// Outgoing is one outbound delivery to a source.
type Outgoing struct {
	Text      string
	At        string // user id to mention, group sources only
	ReplyTo   string // platform message id to quote
	ImagePath string // local path to an image attachment
}

// Sender delivers outgoing messages keyed by source identity.
type Sender interface {
	Send(ctx context.Context, source string, out Outgoing) error
}

// Handler consumes inbound traffic from an adapter.
type Handler interface {
	// HandleUnit receives one conversation event plus any image
	// attachments as base64 payloads.
	HandleUnit(ctx context.Context, source string, unit *message.MessageUnit, imagesB64 []string, atBot bool)
	// HandlePoke receives a nudge aimed at the bot.
	HandlePoke(ctx context.Context, source string, userID string)
}

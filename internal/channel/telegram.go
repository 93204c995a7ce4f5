package channel

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"siriuschat/internal/message"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram is a long-polling adapter. Group chats map to "G" sources,
// private chats to "P".
type Telegram struct {
	token  string
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
	client *http.Client
}

type TelegramConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		token:  cfg.Token,
		logger: cfg.Logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Start connects to Telegram and polls updates until the context is
// cancelled.
func (t *Telegram) Start(ctx context.Context, handler Handler) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram adapter stopping")
			bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, handler, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, handler Handler, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	source := t.sourceOf(msg.Chat)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	atBot := msg.Chat.IsPrivate()
	if !atBot {
		mention := "@" + t.bot.Self.UserName
		if strings.Contains(text, mention) {
			atBot = true
			text = strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
		}
		if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
			msg.ReplyToMessage.From.ID == t.bot.Self.ID {
			atBot = true
		}
	}

	var images []string
	if len(msg.Photo) > 0 {
		best := msg.Photo[len(msg.Photo)-1]
		if b64, err := t.fetchFile(ctx, best.FileID); err == nil {
			images = append(images, b64)
		} else {
			t.logger.Warn("telegram photo fetch failed", "err", err)
		}
	}

	if text == "" && len(images) == 0 {
		return
	}

	nickname := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if nickname == "" {
		nickname = msg.From.UserName
	}
	unit := &message.MessageUnit{
		Nickname: nickname,
		UserID:   strconv.FormatInt(msg.From.ID, 10),
		Text:     text,
		Time:     strconv.FormatInt(int64(msg.Date), 10),
		Source:   source,
		IsSelf:   msg.From.ID == t.bot.Self.ID,
	}
	handler.HandleUnit(ctx, source, unit, images, atBot)
}

func (t *Telegram) sourceOf(chat *tgbotapi.Chat) string {
	id := strconv.FormatInt(chat.ID, 10)
	if chat.IsPrivate() {
		return Join(KindPrivate, id)
	}
	return Join(KindGroup, id)
}

func (t *Telegram) fetchFile(ctx context.Context, fileID string) (string, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("file fetch status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, onebotImageFetchMax))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Send delivers text and an optional photo to the source's chat.
func (t *Telegram) Send(ctx context.Context, source string, out Outgoing) error {
	_, id, err := Split(source)
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("source %q: %w", source, err)
	}

	if out.ImagePath != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(out.ImagePath))
		photo.Caption = out.Text
		if _, err := t.bot.Send(photo); err != nil {
			return fmt.Errorf("telegram photo send: %w", err)
		}
		return nil
	}

	text := out.Text
	if out.At != "" {
		text = "@" + out.At + " " + text
	}
	t.sendMessage(chatID, text, out.ReplyTo)
	return nil
}

func (t *Telegram) sendMessage(chatID int64, text string, replyTo string) {
	// Telegram caps one message at 4096 chars.
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			limit := telegramMaxMsgLen
			// Never split inside a UTF-8 sequence.
			for limit > 0 && !utf8.RuneStart(text[limit]) {
				limit--
			}
			cutAt := strings.LastIndex(chunk[:limit], "\n")
			if cutAt < limit/2 {
				cutAt = limit
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		t.sendChunk(chatID, chunk, replyTo)
		replyTo = ""
	}
}

// sendChunk retries on rate limits and transient errors with backoff.
func (t *Telegram) sendChunk(chatID int64, text string, replyTo string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if replyTo != "" {
			if id, err := strconv.Atoi(replyTo); err == nil {
				msg.ReplyToMessageID = id
			}
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		t.logger.Error("telegram send failed after retries", "err", err)
	}
}

package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"siriuschat/internal/message"
)

const (
	onebotDialTimeout    = 10 * time.Second
	onebotReconnectDelay = 5 * time.Second
	onebotImageFetchMax  = 8 << 20
)

// OneBot is a forward-WebSocket adapter for a OneBot v11 endpoint.
// Group chats map to "G" sources, private chats to "P".
type OneBot struct {
	url         string
	accessToken string
	selfID      int64
	logger      *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	client  *http.Client
}

type OneBotConfig struct {
	URL         string
	AccessToken string
	SelfID      int64
	Logger      *slog.Logger
}

func NewOneBot(cfg OneBotConfig) *OneBot {
	return &OneBot{
		url:         cfg.URL,
		accessToken: cfg.AccessToken,
		selfID:      cfg.SelfID,
		logger:      cfg.Logger,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// event is the subset of OneBot v11 event fields the adapter reads.
type event struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	NoticeType  string          `json:"notice_type"`
	SubType     string          `json:"sub_type"`
	GroupID     int64           `json:"group_id"`
	UserID      int64           `json:"user_id"`
	TargetID    int64           `json:"target_id"`
	Time        int64           `json:"time"`
	Message     json.RawMessage `json:"message"`
	Sender      struct {
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
	} `json:"sender"`
}

type segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type actionFrame struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Start dials the endpoint and pumps events to the handler until the
// context is cancelled. Lost connections are redialed.
func (o *OneBot) Start(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.runOnce(ctx, handler); err != nil {
			o.logger.Warn("onebot connection lost", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(onebotReconnectDelay):
		}
	}
}

func (o *OneBot) runOnce(ctx context.Context, handler Handler) error {
	dialer := websocket.Dialer{HandshakeTimeout: onebotDialTimeout}
	header := http.Header{}
	if o.accessToken != "" {
		header.Set("Authorization", "Bearer "+o.accessToken)
	}
	conn, _, err := dialer.DialContext(ctx, o.url, header)
	if err != nil {
		return fmt.Errorf("onebot dial %s: %w", o.url, err)
	}
	o.writeMu.Lock()
	o.conn = conn
	o.writeMu.Unlock()
	defer func() {
		o.writeMu.Lock()
		o.conn = nil
		o.writeMu.Unlock()
		conn.Close()
	}()
	o.logger.Info("onebot connected", "url", o.url)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("onebot read: %w", err)
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			o.logger.Warn("onebot event decode failed", "err", err)
			continue
		}
		o.dispatch(ctx, handler, &ev)
	}
}

func (o *OneBot) dispatch(ctx context.Context, handler Handler, ev *event) {
	switch ev.PostType {
	case "message":
		o.handleMessage(ctx, handler, ev)
	case "notice":
		o.handleNotice(ctx, handler, ev)
	}
}

func (o *OneBot) handleMessage(ctx context.Context, handler Handler, ev *event) {
	var segs []segment
	if err := json.Unmarshal(ev.Message, &segs); err != nil {
		// String-format message payloads carry raw CQ text.
		var raw string
		if err2 := json.Unmarshal(ev.Message, &raw); err2 != nil {
			o.logger.Warn("onebot message decode failed", "err", err)
			return
		}
		segs = []segment{{Type: "text", Data: map[string]any{"text": raw}}}
	}

	var text strings.Builder
	var images []string
	atBot := false
	for _, seg := range segs {
		switch seg.Type {
		case "text":
			s, _ := seg.Data["text"].(string)
			text.WriteString(s)
		case "at":
			qq, _ := seg.Data["qq"].(string)
			if qq == strconv.FormatInt(o.selfID, 10) {
				atBot = true
			} else {
				text.WriteString("@" + qq)
			}
		case "image":
			url, _ := seg.Data["url"].(string)
			if b64, err := o.fetchImage(ctx, url); err == nil {
				images = append(images, b64)
			} else {
				o.logger.Warn("image fetch failed", "url", url, "err", err)
			}
		}
	}

	source := o.sourceOf(ev)
	unit := &message.MessageUnit{
		Nickname: ev.Sender.Nickname,
		UserID:   strconv.FormatInt(ev.UserID, 10),
		Text:     strings.TrimSpace(text.String()),
		Time:     strconv.FormatInt(ev.Time, 10),
		Source:   source,
		Card:     ev.Sender.Card,
		IsSelf:   ev.UserID == o.selfID,
	}
	if unit.Text == "" && len(images) == 0 {
		return
	}
	handler.HandleUnit(ctx, source, unit, images, atBot)
}

func (o *OneBot) handleNotice(ctx context.Context, handler Handler, ev *event) {
	if ev.NoticeType != "notify" || ev.SubType != "poke" || ev.TargetID != o.selfID {
		return
	}
	handler.HandlePoke(ctx, o.sourceOf(ev), strconv.FormatInt(ev.UserID, 10))
}

func (o *OneBot) sourceOf(ev *event) string {
	if ev.GroupID != 0 {
		return Join(KindGroup, strconv.FormatInt(ev.GroupID, 10))
	}
	return Join(KindPrivate, strconv.FormatInt(ev.UserID, 10))
}

func (o *OneBot) fetchImage(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("empty image url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image fetch status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, onebotImageFetchMax))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Send delivers one outgoing message through the action endpoint.
func (o *OneBot) Send(ctx context.Context, source string, out Outgoing) error {
	kind, id, err := Split(source)
	if err != nil {
		return err
	}
	nativeID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("source %q: %w", source, err)
	}

	var segs []segment
	if out.ReplyTo != "" {
		segs = append(segs, segment{Type: "reply", Data: map[string]any{"id": out.ReplyTo}})
	}
	if out.At != "" && kind == KindGroup {
		segs = append(segs, segment{Type: "at", Data: map[string]any{"qq": out.At}})
	}
	if out.Text != "" {
		segs = append(segs, segment{Type: "text", Data: map[string]any{"text": out.Text}})
	}
	if out.ImagePath != "" {
		segs = append(segs, segment{Type: "image", Data: map[string]any{"file": "file://" + out.ImagePath}})
	}
	if len(segs) == 0 {
		return fmt.Errorf("empty outgoing message for %s", source)
	}

	frame := actionFrame{Params: map[string]any{"message": segs}}
	if kind == KindGroup {
		frame.Action = "send_group_msg"
		frame.Params["group_id"] = nativeID
	} else {
		frame.Action = "send_private_msg"
		frame.Params["user_id"] = nativeID
	}
	return o.writeFrame(frame)
}

func (o *OneBot) writeFrame(frame actionFrame) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if o.conn == nil {
		return fmt.Errorf("onebot not connected")
	}
	return o.conn.WriteJSON(frame)
}

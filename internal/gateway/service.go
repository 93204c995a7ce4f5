package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"siriuschat/internal/brain"
	"siriuschat/internal/channel"
	"siriuschat/internal/memory"
	"siriuschat/internal/message"
	"siriuschat/internal/metrics"
	"siriuschat/internal/model"
	"siriuschat/internal/persona"
	"siriuschat/internal/sticker"
	"siriuschat/internal/talk"
)

// Service is the ingestion boundary. It feeds observed units into
// memory, learns sticker candidates, gates ambient group traffic on
// willingness, and hands reply work to the dispatcher.
type Service struct {
	persona    *persona.Persona
	chat       *model.ChatModel
	bank       *memory.Bank
	stickers   *sticker.Store
	will       *brain.Willingness
	dispatcher *talk.Dispatcher
	subscribed map[string]struct{} // group sources to serve; empty serves all
	logger     *slog.Logger
}

type Config struct {
	Persona    *persona.Persona
	Chat       *model.ChatModel
	Bank       *memory.Bank
	Stickers   *sticker.Store // nil disables sticker learning
	Will       *brain.Willingness
	Dispatcher *talk.Dispatcher
	Subscribed []string
	Logger     *slog.Logger
}

func NewService(cfg Config) *Service {
	subs := make(map[string]struct{}, len(cfg.Subscribed))
	for _, s := range cfg.Subscribed {
		subs[s] = struct{}{}
	}
	return &Service{
		persona:    cfg.Persona,
		chat:       cfg.Chat,
		bank:       cfg.Bank,
		stickers:   cfg.Stickers,
		will:       cfg.Will,
		dispatcher: cfg.Dispatcher,
		subscribed: subs,
		logger:     cfg.Logger,
	}
}

// HandleUnit processes one observed conversation event.
func (s *Service) HandleUnit(ctx context.Context, source string, unit *message.MessageUnit, imagesB64 []string, atBot bool) {
	kind, _, err := channel.Split(source)
	if err != nil {
		s.logger.Warn("unit with bad source dropped", "source", source, "err", err)
		return
	}
	if kind == channel.KindGroup && len(s.subscribed) > 0 {
		if _, ok := s.subscribed[source]; !ok {
			return
		}
	}

	metrics.UnitsObserved.Inc()
	s.bank.ForSource(source).Add(unit)
	for _, img := range imagesB64 {
		go s.learnSticker(ctx, source, img)
	}
	if unit.IsSelf {
		return
	}

	addressed := atBot || kind == channel.KindPrivate ||
		s.persona.Info().Mentioned(unit.Text)
	if kind == channel.KindGroup {
		s.will.Observe(source)
	}
	if !s.will.ShouldReply(source, addressed) {
		return
	}

	req, err := s.buildRequest(source, unit, atBot)
	if err != nil {
		s.logger.Error("request build failed", "source", source, "err", err)
		return
	}
	s.dispatcher.Add(ctx, source, req)
}

// HandlePoke answers a nudge aimed at the persona.
func (s *Service) HandlePoke(ctx context.Context, source string, userID string) {
	unit := &message.MessageUnit{
		Nickname: userID,
		UserID:   userID,
		Text:     fmt.Sprintf("（%s戳了戳你）", userID),
		Time:     strconv.FormatInt(time.Now().Unix(), 10),
		Source:   source,
		IsNotice: true,
	}
	s.bank.ForSource(source).Add(unit)

	req, err := s.buildRequest(source, unit, true)
	if err != nil {
		s.logger.Error("poke request build failed", "source", source, "err", err)
		return
	}
	s.dispatcher.Add(ctx, source, req)
}

// buildRequest layers the persona prompt and the source's memory into
// a chain ending with the freshest user turn.
func (s *Service) buildRequest(source string, unit *message.MessageUnit, atBot bool) (*message.ChatRequest, error) {
	base, err := s.chat.NewChain("", "")
	if err != nil {
		return nil, err
	}
	b := message.FromChain(base)
	if err := s.bank.ForSource(source).Extend(b); err != nil {
		return nil, err
	}
	chain, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &message.ChatRequest{
		Chain:     chain,
		Source:    source,
		Current:   unit,
		Timestamp: time.Now(),
		AtBot:     atBot,
		Tools:     s.chat.Tools(),
	}, nil
}

func (s *Service) learnSticker(ctx context.Context, source, imageB64 string) {
	if s.stickers == nil {
		return
	}
	learned, err := s.stickers.Learn(ctx, imageB64)
	if err != nil {
		s.logger.Warn("sticker learning failed", "source", source, "err", err)
		return
	}
	if learned {
		s.logger.Info("sticker learned from conversation", "source", source)
	}
}

package talk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"siriuschat/internal/channel"
	"siriuschat/internal/guard"
	"siriuschat/internal/memory"
	"siriuschat/internal/message"
	"siriuschat/internal/metrics"
	"siriuschat/internal/model"
	"siriuschat/internal/sticker"
)

const (
	defaultQueueSize  = 32
	defaultIdleAfter  = 300 * time.Second
	defaultReapEvery  = 10 * time.Second
	defaultPacePerRun = 150 * time.Millisecond
	maxPace           = 5 * time.Second

	withheldNotice = "这句话不太适合说出来，换个话题吧。"
)

// channelState is one source's queue and worker handle. lastActive is
// guarded by the dispatcher's table lock.
type channelState struct {
	queue      chan *message.ChatRequest
	done       chan struct{}
	lastActive time.Time
	busy       bool
}

// Dispatcher routes chat requests to per-source workers. Each source
// gets a FIFO queue and a dedicated worker, created on first use and
// reaped after idling.
type Dispatcher struct {
	chat     *model.ChatModel
	filter   *model.FilterModel
	guard    *guard.Filter
	sender   channel.Sender
	stickers *sticker.Store
	bank     *memory.Bank
	logger   *slog.Logger

	queueSize int
	idleAfter time.Duration
	reapEvery time.Duration
	pace      time.Duration

	mu     sync.Mutex
	table  map[string]*channelState
	closed bool
}

type Config struct {
	Chat      *model.ChatModel
	Filter    *model.FilterModel // nil disables the review pass
	Guard     *guard.Filter
	Sender    channel.Sender
	Stickers  *sticker.Store // nil disables sticker attachment
	Bank      *memory.Bank
	Logger    *slog.Logger
	QueueSize int
	IdleAfter time.Duration
	ReapEvery time.Duration
	Pace      time.Duration // delay per rune when pacing fragments
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = defaultIdleAfter
	}
	if cfg.ReapEvery <= 0 {
		cfg.ReapEvery = defaultReapEvery
	}
	if cfg.Pace < 0 {
		cfg.Pace = 0
	} else if cfg.Pace == 0 {
		cfg.Pace = defaultPacePerRun
	}
	return &Dispatcher{
		chat:      cfg.Chat,
		filter:    cfg.Filter,
		guard:     cfg.Guard,
		sender:    cfg.Sender,
		stickers:  cfg.Stickers,
		bank:      cfg.Bank,
		logger:    cfg.Logger,
		queueSize: cfg.QueueSize,
		idleAfter: cfg.IdleAfter,
		reapEvery: cfg.ReapEvery,
		pace:      cfg.Pace,
		table:     make(map[string]*channelState),
	}
}

// Start launches the idle reaper. It runs until the context ends.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.reapLoop(ctx)
}

// Add enqueues one request for its source, spawning the source's
// worker on first use. A full queue drops the request.
func (d *Dispatcher) Add(ctx context.Context, source string, req *message.ChatRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("request after close dropped", "source", source)
		return
	}

	st, ok := d.table[source]
	if !ok {
		st = &channelState{
			queue: make(chan *message.ChatRequest, d.queueSize),
			done:  make(chan struct{}),
		}
		d.table[source] = st
		go d.worker(ctx, source, st)
		metrics.ActiveChannels.Inc()
		d.logger.Info("channel opened", "source", source)
	}
	st.lastActive = time.Now()

	select {
	case st.queue <- req:
	default:
		d.logger.Warn("channel queue full, request dropped", "source", source)
	}
}

func (d *Dispatcher) worker(ctx context.Context, source string, st *channelState) {
	for {
		select {
		case <-st.done:
			return
		case req := <-st.queue:
			d.setBusy(st, true)
			d.process(ctx, source, req)
			d.setBusy(st, false)
		}
	}
}

func (d *Dispatcher) setBusy(st *channelState, busy bool) {
	d.mu.Lock()
	st.busy = busy
	st.lastActive = time.Now()
	d.mu.Unlock()
}

func (d *Dispatcher) process(ctx context.Context, source string, req *message.ChatRequest) {
	id := uuid.NewString()
	log := d.logger.With("source", source, "request_id", id)

	reply, err := d.chat.Reply(ctx, req, d.filter)
	if err != nil {
		log.Error("reply generation failed", "err", err)
		return
	}
	log.Info("reply generated",
		"fragments", len(reply.Fragments),
		"emotion", reply.Emotion,
	)

	sent := d.deliver(ctx, log, source, req, reply)

	if sent > 0 && reply.Diary != "" && d.bank != nil {
		d.bank.ForSource(source).RecordDiary(time.Now().Format(time.DateTime), reply.Diary)
	}
	if sent > 0 {
		d.attachSticker(ctx, log, source, reply.Emotion)
	}
}

// deliver sends the reply fragments in order, pacing each one by its
// length. Returns how many fragments went out as-is.
func (d *Dispatcher) deliver(ctx context.Context, log *slog.Logger, source string, req *message.ChatRequest, reply model.Reply) int {
	sent := 0
	for i, frag := range reply.Fragments {
		text := frag
		allowed := true
		if i < len(reply.Verdicts) && !reply.Verdicts[i].CanSend {
			allowed = false
			log.Info("fragment withheld by review", "reason", reply.Verdicts[i].Reason)
		}
		if allowed && d.guard != nil {
			if ok, pattern := d.guard.Review(frag); !ok {
				allowed = false
				log.Info("fragment withheld by keyword filter", "pattern", pattern)
			}
		}
		if !allowed {
			text = withheldNotice
			metrics.FragmentsWithheld.Inc()
		}

		d.paceSleep(ctx, text)

		out := channel.Outgoing{Text: text}
		if i == 0 && req.AtBot && req.Current != nil {
			out.At = req.Current.UserID
		}
		if err := d.sender.Send(ctx, source, out); err != nil {
			log.Error("fragment send failed", "err", err)
			continue
		}
		if allowed {
			sent++
			metrics.RepliesSent.Inc()
			d.remember(source, text)
		}
	}
	return sent
}

// remember records the persona's own outgoing fragment.
func (d *Dispatcher) remember(source, text string) {
	if d.bank == nil {
		return
	}
	d.bank.ForSource(source).Add(&message.MessageUnit{
		Text:   text,
		Time:   time.Now().Format(time.DateTime),
		Source: source,
		IsSelf: true,
	})
}

func (d *Dispatcher) attachSticker(ctx context.Context, log *slog.Logger, source, emotion string) {
	if d.stickers == nil {
		return
	}
	path, err := d.stickers.Attach(ctx, emotion)
	if err != nil {
		log.Warn("sticker lookup failed", "emotion", emotion, "err", err)
		return
	}
	if path == "" {
		return
	}
	if err := d.sender.Send(ctx, source, channel.Outgoing{ImagePath: path}); err != nil {
		log.Error("sticker send failed", "err", err)
		return
	}
	metrics.StickersSent.Inc()
}

// paceSleep simulates typing time proportional to the fragment length.
func (d *Dispatcher) paceSleep(ctx context.Context, text string) {
	if d.pace <= 0 {
		return
	}
	delay := time.Duration(len([]rune(text))) * d.pace
	if delay > maxPace {
		delay = maxPace
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (d *Dispatcher) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(d.reapEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reap()
		}
	}
}

// reap removes sources whose queue is empty and whose last activity is
// older than the idle threshold. A source with queued work is never
// removed.
func (d *Dispatcher) reap() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for source, st := range d.table {
		if st.busy || len(st.queue) > 0 {
			continue
		}
		if now.Sub(st.lastActive) < d.idleAfter {
			continue
		}
		close(st.done)
		delete(d.table, source)
		metrics.ActiveChannels.Dec()
		d.logger.Info("idle channel reaped", "source", source)
	}
}

// Close drains the routing table without waiting for in-flight work.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for source, st := range d.table {
		close(st.done)
		delete(d.table, source)
		metrics.ActiveChannels.Dec()
	}
	d.logger.Info("dispatcher closed")
}

// Active reports how many sources currently hold a worker.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.table)
}

package ws

import (
	"chatrelay/internal/chat"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var ErrHubStopped = errors.New("hub stopped")

const (
	DefaultHistoryCapacity = 100
	DefaultHistoryReplay   = 10
	DefaultSweepInterval   = 30 * time.Second
)

// PresenceSink receives every presence snapshot. Implementations must not block.
type PresenceSink interface {
	PublishPresence(members []chat.Member)
}

// SessionSink receives session lifecycle events. Implementations must not block.
type SessionSink interface {
	RecordSession(ev chat.SessionEvent)
}

type Options struct {
	HistoryCapacity int
	HistoryReplay   int
	SweepInterval   time.Duration
	Presence        PresenceSink
	Sessions        SessionSink
}

// Hub owns the registry and the history buffer. Every mutation of either
// happens on the goroutine running Run; other goroutines talk to it through
// channels only.
type Hub struct {
	registry *chat.Registry
	history  *chat.History
	router   *Router

	replay        int
	sweepInterval time.Duration
	presence      PresenceSink
	sessions      SessionSink
	now           func() time.Time
	startedAt     time.Time

	connect chan *chat.Session
	inbound chan inboundFrame
	leave   chan string
	queries chan func()
	done    chan struct{}
}

type inboundFrame struct {
	sessionID string
	data      []byte
}

func NewHub(opts Options) *Hub {
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = DefaultHistoryCapacity
	}
	if opts.HistoryReplay < 0 {
		opts.HistoryReplay = 0
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}

	return &Hub{
		registry:      chat.NewRegistry(),
		history:       chat.NewHistory(opts.HistoryCapacity),
		router:        NewRouter(),
		replay:        opts.HistoryReplay,
		sweepInterval: opts.SweepInterval,
		presence:      opts.Presence,
		sessions:      opts.Sessions,
		now:           time.Now,
		startedAt:     time.Now().UTC(),
		connect:       make(chan *chat.Session),
		inbound:       make(chan inboundFrame),
		leave:         make(chan string),
		queries:       make(chan func()),
		done:          make(chan struct{}),
	}
}

// Run is the event loop. It must be started exactly once and returns when
// ctx is cancelled, after closing every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	sweep := time.NewTicker(h.sweepInterval)
	defer sweep.Stop()

	zap.L().Info("hub.started",
		zap.Int("history_capacity", h.history.Cap()),
		zap.Duration("sweep_interval", h.sweepInterval),
	)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case s := <-h.connect:
			h.accept(s)
		case in := <-h.inbound:
			h.receive(in.sessionID, in.data)
		case id := <-h.leave:
			h.disconnect(id)
		case fn := <-h.queries:
			fn()
		case <-sweep.C:
			h.sweep()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// ---------------------------------------------------------------------------
//  Public: called from connection goroutines
// ---------------------------------------------------------------------------

// Join registers s and sends it the welcome and history frames.
func (h *Hub) Join(ctx context.Context, s *chat.Session) error {
	select {
	case h.connect <- s:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive hands one raw frame to the loop. It reports false once the hub
// has stopped.
func (h *Hub) Receive(sessionID string, data []byte) bool {
	select {
	case h.inbound <- inboundFrame{sessionID: sessionID, data: data}:
		return true
	case <-h.done:
		return false
	}
}

// Leave removes the session; safe to call more than once.
func (h *Hub) Leave(sessionID string) {
	select {
	case h.leave <- sessionID:
	case <-h.done:
	}
}

// Stats returns counters for the status endpoint.
func (h *Hub) Stats(ctx context.Context) (chat.Stats, error) {
	var st chat.Stats
	err := h.query(ctx, func() {
		now := h.clock()
		st = chat.Stats{
			Connections:      h.registry.Len(),
			NamedUsers:       h.registry.NamedCount(),
			BufferedMessages: h.history.Len(),
			StartedAt:        h.startedAt,
			Uptime:           now.Sub(h.startedAt),
		}
	})
	if err != nil {
		return chat.Stats{}, err
	}
	return st, nil
}

// Users returns the current presence list.
func (h *Hub) Users(ctx context.Context) ([]chat.Member, error) {
	var members []chat.Member
	err := h.query(ctx, func() {
		members = h.registry.ListNamed()
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// query runs fn on the loop goroutine and waits for it to finish. Callers
// must not read what fn writes unless query returned nil.
func (h *Hub) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		fn()
		close(finished)
	}

	select {
	case h.queries <- task:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) clock() time.Time { return h.now().UTC() }

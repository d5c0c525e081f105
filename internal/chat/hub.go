package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mama165/sdk-go/logs"
	"golang.org/x/time/rate"
)

// Option configures a Hub.
type Option func(*options)

type options struct {
	colors          ColorPicker
	log             *slog.Logger
	outboxSize      int
	deliveryTimeout time.Duration
	replyTimeout    time.Duration
	maxRoomName     int
	maxLineLength   int
	retainEmpty     bool
	rateBurst       int
	rateInterval    time.Duration
	now             func() time.Time
}

func WithColorPicker(p ColorPicker) Option {
	return func(o *options) { o.colors = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithOutboxSize sets the per-session queue capacity.
func WithOutboxSize(n int) Option {
	return func(o *options) { o.outboxSize = n }
}

// WithDeliveryTimeout bounds how long a broadcast waits on one saturated recipient.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(o *options) { o.deliveryTimeout = d }
}

// WithReplyTimeout bounds how long a reply to the sender may wait for queue space
// before the session is treated as gone.
func WithReplyTimeout(d time.Duration) Option {
	return func(o *options) { o.replyTimeout = d }
}

func WithMaxRoomNameLength(n int) Option {
	return func(o *options) { o.maxRoomName = n }
}

func WithMaxLineLength(n int) Option {
	return func(o *options) { o.maxLineLength = n }
}

// WithRetainEmptyRooms keeps rooms listed after their last member leaves.
func WithRetainEmptyRooms(retain bool) Option {
	return func(o *options) { o.retainEmpty = retain }
}

// WithRateLimit allows burst chat lines per session, refilled one per interval/burst.
// A non-positive burst disables limiting.
func WithRateLimit(burst int, interval time.Duration) Option {
	return func(o *options) {
		o.rateBurst = burst
		o.rateInterval = interval
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Hub wires the registry, rooms, broadcaster and router of one chat server.
type Hub struct {
	Registry    *Registry
	Rooms       *Directory
	Broadcaster *Broadcaster

	processor *Processor
	router    *Router
	opts      options
}

func NewHub(opts ...Option) *Hub {
	o := options{
		outboxSize:      64,
		deliveryTimeout: 250 * time.Millisecond,
		replyTimeout:    time.Second,
		maxRoomName:     32,
		maxLineLength:   512,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logs.GetLoggerFromString("INFO")
	}
	if o.colors == nil {
		o.colors = newRandomColorPicker(defaultColorPalette)
	}

	var limiter func() *rate.Limiter
	if o.rateBurst > 0 && o.rateInterval > 0 {
		every := rate.Every(o.rateInterval / time.Duration(o.rateBurst))
		limiter = func() *rate.Limiter {
			return rate.NewLimiter(every, o.rateBurst)
		}
	}

	broadcaster := NewBroadcaster(o.deliveryTimeout, o.now, o.log)
	rooms := NewDirectory(broadcaster, o.maxRoomName, o.retainEmpty, o.log)
	registry := NewRegistry(rooms, o.colors, limiter, o.log)
	processor := NewProcessor(rooms, o.log)

	return &Hub{
		Registry:    registry,
		Rooms:       rooms,
		Broadcaster: broadcaster,
		processor:   processor,
		router:      NewRouter(registry, processor, o.replyTimeout, o.log),
		opts:        o,
	}
}

// Connect registers a session for username backed by a fresh outbox.
func (h *Hub) Connect(username string) (*Session, *Outbox) {
	out := NewOutbox(h.opts.outboxSize)
	return h.Registry.Register(username, out), out
}

// Serve runs the message router for s until its input ends.
func (h *Hub) Serve(ctx context.Context, s *Session, in LineReader) error {
	return h.router.Serve(ctx, s, in)
}

// Status is a one-line summary for the session's prompt header.
func (h *Hub) Status(s *Session) string {
	room, ok := h.Rooms.CurrentRoom(s)
	if !ok {
		room = "lobby"
	}
	return fmt.Sprintf("room: %s | online: %d", room, h.Registry.Count())
}

func (h *Hub) maxLineLength() int {
	return h.opts.maxLineLength
}

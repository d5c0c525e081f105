package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// LineReader yields one line of input at a time. io.EOF marks a clean end of stream.
type LineReader interface {
	ReadLine() (string, error)
}

// Router drives one connection: read a line, apply it, reply to the sender.
type Router struct {
	registry     *Registry
	processor    *Processor
	replyTimeout time.Duration
	log          *slog.Logger
}

// NewRouter builds a router. A reply that cannot be queued within replyTimeout ends
// the session; a non-positive replyTimeout waits until ctx is done or the outbox closes.
func NewRouter(registry *Registry, processor *Processor, replyTimeout time.Duration, log *slog.Logger) *Router {
	return &Router{registry: registry, processor: processor, replyTimeout: replyTimeout, log: log}
}

// Serve runs until the input ends, the session quits, or ctx is cancelled.
// The session is unregistered exactly once when Serve returns.
func (r *Router) Serve(ctx context.Context, s *Session, in LineReader) error {
	defer r.registry.Unregister(s.ID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := in.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		reply := r.processor.Execute(s, Parse(line))
		for _, text := range reply.Lines {
			if err := r.reply(ctx, s, text); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.log.Debug("Reply not delivered, closing session", "session", s.ID, "err", err)
				return nil
			}
		}
		if reply.Quit {
			r.log.Debug("Session quit", "session", s.ID)
			return nil
		}
	}
}

func (r *Router) reply(ctx context.Context, s *Session, text string) error {
	if r.replyTimeout <= 0 {
		return s.out.Send(ctx, text)
	}
	ctx, cancel := context.WithTimeout(ctx, r.replyTimeout)
	defer cancel()
	return s.out.Send(ctx, text)
}

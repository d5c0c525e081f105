package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	timestampLayout = "15:04:05"

	// maxParallelDeliveries caps the goroutines waiting on saturated recipients of one message.
	maxParallelDeliveries = 32
)

// BroadcastStats counts per-recipient outcomes since start.
type BroadcastStats struct {
	Delivered uint64
	Dropped   uint64
}

// Broadcaster fans messages out to the members of a room.
type Broadcaster struct {
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewBroadcaster(timeout time.Duration, now func() time.Time, log *slog.Logger) *Broadcaster {
	if now == nil {
		now = time.Now
	}
	return &Broadcaster{
		timeout: timeout,
		now:     now,
		log:     log,
	}
}

// Broadcast delivers text from sender to every other member of room.
// Recipients that are closed or saturated are skipped; the sender never sees their failure.
// No lock is held while waiting on saturated recipients, and the whole fan-out shares one deadline.
func (b *Broadcaster) Broadcast(room *Room, sender *Session, text string) error {
	recipients, ok := room.recipients(sender.ID)
	if !ok {
		return ErrNotInRoom
	}

	msg := fmt.Sprintf("[%s] %s: %s", b.now().Format(timestampLayout), sender.DisplayName(), text)
	b.fanOut(room.Name, recipients, msg, b.timeout)
	return nil
}

// notice emits a system line to the room. The caller must hold room.mu.
// It never waits for queue space because it runs under the directory lock.
func (b *Broadcaster) notice(room *Room, exceptID, text string) {
	msg := fmt.Sprintf("[%s] [system] %s", b.now().Format(timestampLayout), text)
	recipients := make([]*Session, 0, len(room.members))
	for id, member := range room.members {
		if id != exceptID {
			recipients = append(recipients, member)
		}
	}
	b.fanOut(room.Name, recipients, msg, 0)
}

// fanOut tries every recipient without waiting, then retries the saturated ones
// in parallel until a single deadline timeout from now.
func (b *Broadcaster) fanOut(roomName string, recipients []*Session, msg string, timeout time.Duration) {
	var saturated []*Session
	for _, member := range recipients {
		err := member.out.Deliver(msg, 0)
		switch {
		case err == nil:
			b.delivered.Add(1)
		case timeout > 0 && errors.Is(err, ErrOutboxFull):
			saturated = append(saturated, member)
		default:
			b.drop(roomName, member, err)
		}
	}
	if len(saturated) == 0 {
		return
	}

	deadline := time.Now().Add(timeout)
	var group errgroup.Group
	group.SetLimit(maxParallelDeliveries)
	for _, member := range saturated {
		group.Go(func() error {
			if err := member.out.Deliver(msg, time.Until(deadline)); err != nil {
				b.drop(roomName, member, err)
				return nil
			}
			b.delivered.Add(1)
			return nil
		})
	}
	_ = group.Wait()
}

func (b *Broadcaster) drop(roomName string, member *Session, err error) {
	b.dropped.Add(1)
	b.log.Debug("Message dropped", "room", roomName, "session", member.ID, "err", err)
}

func (b *Broadcaster) Stats() BroadcastStats {
	return BroadcastStats{
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}

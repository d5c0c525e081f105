package chat

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const waitTimeout = time.Second

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestHub(opts ...Option) *Hub {
	base := []Option{
		WithColorPicker(&staticColorPicker{}),
		WithLogger(logs.GetLoggerFromLevel(slog.LevelError)),
		WithClock(func() time.Time { return fixedTime }),
	}
	return NewHub(append(base, opts...)...)
}

func receive(t *testing.T, out *Outbox) string {
	t.Helper()
	select {
	case msg := <-out.Messages():
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func receiveN(t *testing.T, out *Outbox, n int) []string {
	t.Helper()
	msgs := make([]string, 0, n)
	for range n {
		msgs = append(msgs, receive(t, out))
	}
	return msgs
}

func requireNoMessage(t *testing.T, out *Outbox) {
	t.Helper()
	select {
	case msg := <-out.Messages():
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func drainOutbox(out *Outbox) {
	out.drain()
}

// joinAll puts the sessions into room in order and clears the notices it produced.
func joinAll(t *testing.T, hub *Hub, room string, members ...*Session) {
	t.Helper()
	for _, s := range members {
		require.NoError(t, hub.Rooms.Join(s, room))
	}
	for _, s := range members {
		if out, ok := s.Outbound().(*Outbox); ok {
			drainOutbox(out)
		}
	}
}

type staticColorPicker struct {
	color string
}

func (p *staticColorPicker) Next() string {
	return p.color
}

// lineFeed is a LineReader fed from a channel; closing the channel ends the stream.
type lineFeed chan string

func (f lineFeed) ReadLine() (string, error) {
	line, ok := <-f
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

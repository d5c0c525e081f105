package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 64 << 10
)

// HandleWebSocket serves one websocket connection as a chat session for username.
// Each text frame carries one or more input lines; each outbound message is one frame.
func HandleWebSocket(ctx context.Context, hub *Hub, conn *websocket.Conn, username string) {
	defer conn.Close()

	client, outbox := hub.Connect(username)
	ws := &wsSession{conn: conn, limit: hub.maxLineLength()}
	ws.setupRead()

	stop := make(chan struct{})
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		ws.writePump(outbox)
	}()
	go func() {
		defer workers.Done()
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	_ = outbox.Send(ctx, "Welcome to roomchat, "+client.Username+"! Type /help for commands.")

	if err := hub.Serve(ctx, client, ws); err != nil && !errors.Is(err, context.Canceled) {
		hub.opts.log.Debug("Websocket session ended", "session", client.ID, "err", err)
	}

	close(stop)
	workers.Wait()
}

type wsSession struct {
	conn    *websocket.Conn
	limit   int
	pending []string
}

func (w *wsSession) setupRead() {
	w.conn.SetReadLimit(wsReadLimit)
	_ = w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
}

func (w *wsSession) ReadLine() (string, error) {
	for len(w.pending) == 0 {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		w.pending = strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	}

	line := w.pending[0]
	w.pending = w.pending[1:]
	return truncateRunes(line, w.limit), nil
}

// writePump is the only writer on the connection. It closes the outbox on exit.
func (w *wsSession) writePump(outbox *Outbox) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer outbox.Close()

	for {
		select {
		case msg := <-outbox.Messages():
			if err := w.writeText(msg); err != nil {
				_ = w.conn.Close()
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = w.conn.Close()
				return
			}
		case <-outbox.Done():
			for _, msg := range outbox.drain() {
				if err := w.writeText(msg); err != nil {
					return
				}
			}
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

func (w *wsSession) writeText(msg string) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, []byte(color.ClearCode(msg)))
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

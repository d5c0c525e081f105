package wsserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler ConnHandler) *httptest.Server {
	t.Helper()
	s := New("", "secret", logs.GetLoggerFromLevel(slog.LevelError))
	srv := httptest.NewServer(s.Handler(context.Background(), handler))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandlerRejectsRequests(t *testing.T) {
	srv := newTestServer(t, func(context.Context, *websocket.Conn, string) {
		t.Error("handler must not be called")
	})

	tests := []struct {
		name       string
		method     string
		path       string
		header     http.Header
		wantStatus int
	}{
		{name: "missing token", method: http.MethodGet, path: "/ws?user=alice", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", method: http.MethodGet, path: "/ws?user=alice&token=nope", wantStatus: http.StatusUnauthorized},
		{name: "wrong bearer", method: http.MethodGet, path: "/ws?user=alice&token=secret", header: http.Header{"Authorization": {"Bearer nope"}}, wantStatus: http.StatusUnauthorized},
		{name: "missing user", method: http.MethodGet, path: "/ws?token=secret", wantStatus: http.StatusBadRequest},
		{name: "not an upgrade", method: http.MethodGet, path: "/ws?token=secret&user=alice", wantStatus: http.StatusBadRequest},
		{name: "post", method: http.MethodPost, path: "/ws?token=secret&user=alice", wantStatus: http.StatusMethodNotAllowed},
		{name: "unknown route", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			for k, v := range tt.header {
				req.Header[k] = v
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, func(context.Context, *websocket.Conn, string) {})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok\n", string(body))
}

func TestHandlerUpgradesAuthorizedRequest(t *testing.T) {
	users := make(chan string, 1)
	srv := newTestServer(t, func(_ context.Context, conn *websocket.Conn, username string) {
		defer conn.Close()
		users <- username
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hi "+username))
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user=%20alice%20"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer secret"}})
	require.NoError(t, err)
	defer conn.Close()
	_ = resp.Body.Close()

	select {
	case username := <-users:
		require.Equal(t, "alice", username)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "hi alice", string(data))
}

func TestListenAndServeRequiresToken(t *testing.T) {
	s := New("127.0.0.1:0", "", logs.GetLoggerFromLevel(slog.LevelError))

	err := s.ListenAndServe(context.Background(), func(context.Context, *websocket.Conn, string) {})
	require.ErrorContains(t, err, "token required")
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", "secret", logs.GetLoggerFromLevel(slog.LevelError))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, func(context.Context, *websocket.Conn, string) {})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/ssh"
)

const (
	ctrlC      = 0x03
	ctrlD      = 0x04
	backspace  = '\b'
	deleteChar = 0x7f
)

var errSessionTerminated = errors.New("session terminated")

// errShellNotRequested indicates the SSH client closed the request stream without asking for a shell.
var errShellNotRequested = errors.New("shell request not received before channel closed")

// HandleSession wires an SSH channel to the hub.
func HandleSession(ctx context.Context, hub *Hub, conn *ssh.ServerConn, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	newSession(hub, conn.User(), channel, requests).run(ctx)
}

// session adapts an interactive SSH terminal to the LineReader the router consumes.
type session struct {
	hub      *Hub
	username string

	channel  ssh.Channel
	requests <-chan *ssh.Request
	reader   *bufio.Reader
	eof      bool

	client *Session
	outbox *Outbox
	buffer *lineBuffer
	writer *sessionWriter
	ui     *terminalUI

	workers sync.WaitGroup
	cleanup sync.Once
}

func newSession(hub *Hub, username string, channel ssh.Channel, requests <-chan *ssh.Request) *session {
	return &session{
		hub:      hub,
		username: username,
		channel:  channel,
		requests: requests,
		reader:   bufio.NewReader(channel),
		buffer:   newLineBuffer(128, hub.maxLineLength()),
	}
}

func (s *session) run(ctx context.Context) {
	defer s.cleanupSession()

	if err := s.setup(); err != nil {
		if errors.Is(err, errShellNotRequested) {
			return
		}
		s.printSystemError(err)
		return
	}

	if err := s.hub.Serve(ctx, s.client, s); err != nil {
		s.handleReadError(err)
	}
}

func (s *session) setup() error {
	s.writer = newSessionWriter(s.channel)
	s.ui = newTerminalUI(s.writer)

	if err := s.awaitShell(); err != nil {
		return fmt.Errorf("await shell: %w", err)
	}

	s.client, s.outbox = s.hub.Connect(s.username)

	if err := s.ui.ClearScreen(); err != nil {
		return fmt.Errorf("prepare terminal: %w", err)
	}

	s.startOutboundRelay()

	if err := s.sendGreeting(); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}

	return nil
}

// awaitShell drains SSH channel requests and blocks until the client requests a shell.
func (s *session) awaitShell() error {
	for req := range s.requests {
		if !s.handleRequest(req) {
			continue
		}

		s.startRequestPump()
		return nil
	}
	return errShellNotRequested
}

func (s *session) handleRequest(req *ssh.Request) bool {
	switch req.Type {
	case "shell":
		req.Reply(true, nil)
		return true
	case "pty-req", "env", "window-change", "signal":
		req.Reply(true, nil)
	default:
		req.Reply(false, nil)
	}
	return false
}

func (s *session) startRequestPump() {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		for req := range s.requests {
			s.handleRequest(req)
		}
	}()
}

// startOutboundRelay drains the outbox onto the terminal until the outbox is closed.
// A failed write closes the outbox so the router stops waiting on it.
func (s *session) startOutboundRelay() {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer s.outbox.Close()
		for {
			select {
			case msg := <-s.outbox.Messages():
				if err := s.printMessage(msg); err != nil {
					return
				}
			case <-s.outbox.Done():
				for _, msg := range s.outbox.drain() {
					if err := s.printMessage(msg); err != nil {
						return
					}
				}
				return
			}
		}
	}()
}

func (s *session) sendGreeting() error {
	if err := s.printMessage(fmt.Sprintf("Welcome to roomchat, %s!", s.client.Username)); err != nil {
		return err
	}
	return s.printMessage("Type /help for commands, /join <room> to start chatting. Ctrl+D to exit.")
}

// ReadLine collects runes until a line is submitted, keeping the prompt in sync.
func (s *session) ReadLine() (string, error) {
	if s.eof {
		return "", io.EOF
	}

	for {
		r, _, err := s.reader.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
				if text := s.buffer.Drain(); strings.TrimSpace(text) != "" {
					return text, nil
				}
			}
			return "", err
		}

		text, submitted, err := s.processRune(r)
		if err != nil {
			return "", err
		}
		if submitted {
			return text, nil
		}
	}
}

// processRune handles interactive input keeping the buffer, screen, and control flow in sync.
func (s *session) processRune(r rune) (string, bool, error) {
	switch r {
	case '\r', '\n':
		s.skipLineFeed(r)
		return s.submitLine()
	case ctrlC:
		if err := s.handleControl("^C"); err != nil {
			return "", false, err
		}
		return "", false, errSessionTerminated
	case ctrlD:
		if err := s.handleControl("^D"); err != nil {
			return "", false, err
		}
		return "", false, errSessionTerminated
	case backspace, deleteChar:
		s.buffer.TrimLast()
		return "", false, s.renderPrompt()
	default:
		if unicode.IsPrint(r) && s.buffer.Append(r) {
			return "", false, s.renderPrompt()
		}
		return "", false, nil
	}
}

func (s *session) skipLineFeed(r rune) {
	if r == '\r' && s.reader.Buffered() > 0 {
		if next, _, err := s.reader.ReadRune(); err == nil {
			if next != '\n' {
				_ = s.reader.UnreadRune()
			}
		}
	}
}

func (s *session) submitLine() (string, bool, error) {
	text := s.buffer.Drain()
	if strings.TrimSpace(text) == "" {
		return "", false, s.renderPrompt()
	}
	if err := s.printMessage("> " + text); err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (s *session) handleControl(label string) error {
	s.buffer.Reset()
	if err := s.ui.DisplayControlAck(label); err != nil {
		return err
	}
	return s.renderPrompt()
}

func (s *session) renderPrompt() error {
	header := "roomchat"
	if s.client != nil {
		header = s.hub.Status(s.client)
	}
	return s.ui.UpdatePrompt(header, s.buffer.Snapshot())
}

func (s *session) printMessage(msg string) error {
	if err := s.ui.DisplayMessage(msg); err != nil {
		return err
	}

	return s.renderPrompt()
}

func (s *session) cleanupSession() {
	s.cleanup.Do(func() {
		if s.client != nil {
			s.hub.Registry.Unregister(s.client.ID)
		}
		if s.channel != nil {
			_ = s.channel.Close()
		}
		s.workers.Wait()
	})
}

type sessionWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSessionWriter(w io.Writer) *sessionWriter {
	return &sessionWriter{w: w}
}

func (w *sessionWriter) writeString(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := io.WriteString(w.w, s)
	return err
}

func (s *session) handleReadError(err error) {
	switch {
	case errors.Is(err, errSessionTerminated):
		return
	case errors.Is(err, io.EOF):
		return
	case errors.Is(err, context.Canceled):
		return
	default:
		s.printSystemError(fmt.Errorf("read error: %w", err))
	}
}

func (s *session) printSystemError(err error) {
	_ = s.printMessage(fmt.Sprintf("[system] %v", err))
}

package chat

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Session is one connected user's server-side state.
type Session struct {
	ID       string
	Username string
	Color    string

	out     Outbound
	limiter *rate.Limiter

	// guarded by Directory.mu
	room       *Room
	terminated bool
}

// DisplayName returns the username wrapped in the session's color.
func (s *Session) DisplayName() string {
	return colorize(s.Color, s.Username)
}

// Outbound returns the session's delivery handle.
func (s *Session) Outbound() Outbound {
	return s.out
}

// allow reports whether the session may send another chat line now.
func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// Registry tracks every active session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	rooms   *Directory
	colors  ColorPicker
	limiter func() *rate.Limiter
	log     *slog.Logger
}

func NewRegistry(rooms *Directory, colors ColorPicker, limiter func() *rate.Limiter, log *slog.Logger) *Registry {
	if colors == nil {
		colors = noColorPicker{}
	}
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    rooms,
		colors:   colors,
		limiter:  limiter,
		log:      log,
	}
}

// Register adds a new idle session. The caller must Unregister it when the connection ends.
func (r *Registry) Register(username string, out Outbound) *Session {
	id := uuid.NewString()
	if username == "" {
		username = "user-" + id[:8]
	}

	s := &Session{
		ID:       id,
		Username: username,
		Color:    r.colors.Next(),
		out:      out,
	}
	if r.limiter != nil {
		s.limiter = r.limiter()
	}

	r.mu.Lock()
	r.sessions[id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.log.Info("Session registered", "session", id, "user", username, "online", count)
	return s
}

// Unregister removes the session, detaches it from its room and closes its
// outbound handle. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}

	if room, wasMember := r.rooms.detach(s); wasMember {
		r.log.Debug("Session left room on disconnect", "session", id, "room", room)
	}
	if s.out != nil {
		s.out.Close()
	}

	r.log.Info("Session unregistered", "session", id, "user", s.Username, "online", count)
}

func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

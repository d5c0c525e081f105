package chat

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Room is a named set of sessions sharing a broadcast scope.
type Room struct {
	Name string

	// members is written under both Directory.mu and mu; either lock is enough to read it.
	mu      sync.RWMutex
	members map[string]*Session
}

func newRoom(name string) *Room {
	return &Room{
		Name:    name,
		members: make(map[string]*Session),
	}
}

// recipients snapshots every member except senderID, reporting false when senderID is not a member.
func (r *Room) recipients(senderID string) ([]*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.members[senderID]; !ok {
		return nil, false
	}
	members := make([]*Session, 0, len(r.members)-1)
	for id, member := range r.members {
		if id != senderID {
			members = append(members, member)
		}
	}
	return members, true
}

// RoomInfo is a point-in-time view of a room for listings.
type RoomInfo struct {
	Name    string
	Members int
}

func (i RoomInfo) String() string {
	return fmt.Sprintf("%s (%d)", i.Name, i.Members)
}

// Directory owns the rooms and their membership.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*Room

	broadcaster *Broadcaster
	validate    *validator.Validate
	nameRule    string
	retainEmpty bool
	log         *slog.Logger
}

func NewDirectory(broadcaster *Broadcaster, maxNameLength int, retainEmpty bool, log *slog.Logger) *Directory {
	if maxNameLength <= 0 {
		maxNameLength = 32
	}
	validate := validator.New()
	if err := validate.RegisterValidation("roomname", isRoomName); err != nil {
		panic(fmt.Sprintf("chat: register room name validation: %v", err))
	}

	return &Directory{
		rooms:       make(map[string]*Room),
		broadcaster: broadcaster,
		validate:    validate,
		nameRule:    fmt.Sprintf("required,max=%d,roomname", maxNameLength),
		retainEmpty: retainEmpty,
		log:         log,
	}
}

func isRoomName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if strings.HasPrefix(name, "/") {
		return false
	}
	for _, r := range name {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func (d *Directory) validateName(name string) error {
	if err := d.validate.Var(name, d.nameRule); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRoomName, name)
	}
	return nil
}

// Join moves the session into the named room, creating it when absent.
// A session already in another room leaves it first, under the same lock.
func (d *Directory) Join(s *Session, name string) error {
	if err := d.validateName(name); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if s.terminated {
		return ErrSessionClosed
	}
	if s.room != nil {
		if s.room.Name == name {
			return fmt.Errorf("%w %s", ErrAlreadyInRoom, name)
		}
		d.leaveLocked(s)
	}

	room, ok := d.rooms[name]
	if !ok {
		room = newRoom(name)
		d.rooms[name] = room
		d.log.Debug("Room created", "room", name)
	}

	room.mu.Lock()
	room.members[s.ID] = s
	s.room = room
	d.broadcaster.notice(room, s.ID, fmt.Sprintf("%s joined %s", s.Username, name))
	room.mu.Unlock()

	d.log.Debug("Session joined room", "session", s.ID, "room", name)
	return nil
}

// Leave removes the session from its current room and returns the room name.
func (d *Directory) Leave(s *Session) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.room == nil {
		return "", ErrNotInRoom
	}
	return d.leaveLocked(s), nil
}

// detach marks the session terminated and drops its membership, if any.
func (d *Directory) detach(s *Session) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s.terminated = true
	if s.room == nil {
		return "", false
	}
	return d.leaveLocked(s), true
}

func (d *Directory) leaveLocked(s *Session) string {
	room := s.room

	room.mu.Lock()
	delete(room.members, s.ID)
	s.room = nil
	d.broadcaster.notice(room, s.ID, fmt.Sprintf("%s left %s", s.Username, room.Name))
	empty := len(room.members) == 0
	room.mu.Unlock()

	if empty && !d.retainEmpty {
		delete(d.rooms, room.Name)
		d.log.Debug("Room deleted", "room", room.Name)
	}

	d.log.Debug("Session left room", "session", s.ID, "room", room.Name)
	return room.Name
}

// List returns every room with its member count, sorted by name.
func (d *Directory) List() []RoomInfo {
	d.mu.Lock()
	infos := lo.MapToSlice(d.rooms, func(name string, room *Room) RoomInfo {
		return RoomInfo{Name: name, Members: len(room.members)}
	})
	d.mu.Unlock()

	slices.SortFunc(infos, func(a, b RoomInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos
}

// Users returns the usernames of the room's members, sorted.
func (d *Directory) Users(name string) ([]string, error) {
	d.mu.Lock()
	room, ok := d.rooms[name]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	names := lo.MapToSlice(room.members, func(_ string, s *Session) string {
		return s.Username
	})
	d.mu.Unlock()

	slices.Sort(names)
	return names, nil
}

// CurrentRoom reports the name of the session's room.
func (d *Directory) CurrentRoom(s *Session) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.room == nil {
		return "", false
	}
	return s.room.Name, true
}

// Broadcast sends text from sender to the other members of the named room.
func (d *Directory) Broadcast(name string, sender *Session, text string) error {
	d.mu.Lock()
	room, ok := d.rooms[name]
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	return d.broadcaster.Broadcast(room, sender, text)
}

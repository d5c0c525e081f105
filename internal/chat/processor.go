package chat

import (
	"errors"
	"fmt"
	"log/slog"
)

var helpLines = []string{
	"/join <room>  join or switch to a room",
	"/leave        leave the current room",
	"/list         list rooms with member counts",
	"/users        list users in the current room",
	"/quit         disconnect",
}

// Reply is what the sender of a command gets back.
type Reply struct {
	Lines []string
	Quit  bool
}

func replyLines(lines ...string) Reply {
	return Reply{Lines: lines}
}

func errorReply(err error) Reply {
	return replyLines("[error] " + err.Error())
}

// Processor applies parsed commands on behalf of a session.
type Processor struct {
	rooms *Directory
	log   *slog.Logger
}

func NewProcessor(rooms *Directory, log *slog.Logger) *Processor {
	return &Processor{rooms: rooms, log: log}
}

// Execute runs cmd for the session. Every failure becomes a sender-only reply.
func (p *Processor) Execute(s *Session, cmd Command) Reply {
	switch c := cmd.(type) {
	case JoinCommand:
		return p.join(s, c.Room)
	case LeaveCommand:
		return p.leave(s)
	case ListCommand:
		return p.list()
	case UsersCommand:
		return p.users(s)
	case HelpCommand:
		return replyLines(helpLines...)
	case QuitCommand:
		return Reply{Lines: []string{"bye"}, Quit: true}
	case TextCommand:
		return p.text(s, c.Body)
	case UnknownCommand:
		return errorReply(fmt.Errorf("%w %s", ErrUnknownCommand, c.Raw))
	default:
		panic(fmt.Sprintf("chat: unhandled command %T", cmd))
	}
}

func (p *Processor) join(s *Session, name string) Reply {
	if err := p.rooms.Join(s, name); err != nil {
		return errorReply(err)
	}
	return replyLines("joined " + name)
}

func (p *Processor) leave(s *Session) Reply {
	name, err := p.rooms.Leave(s)
	if err != nil {
		return errorReply(err)
	}
	return replyLines("left " + name)
}

func (p *Processor) list() Reply {
	infos := p.rooms.List()
	lines := make([]string, 0, len(infos))
	for _, info := range infos {
		lines = append(lines, info.String())
	}
	return Reply{Lines: lines}
}

func (p *Processor) users(s *Session) Reply {
	name, ok := p.rooms.CurrentRoom(s)
	if !ok {
		return errorReply(ErrNotInRoom)
	}
	names, err := p.rooms.Users(name)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Lines: names}
}

func (p *Processor) text(s *Session, body string) Reply {
	name, ok := p.rooms.CurrentRoom(s)
	if !ok {
		return errorReply(ErrNotInRoom)
	}
	if !s.allow() {
		return errorReply(ErrRateLimited)
	}

	if err := p.rooms.Broadcast(name, s, body); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			err = ErrNotInRoom
		}
		p.log.Debug("Broadcast rejected", "session", s.ID, "room", name, "err", err)
		return errorReply(err)
	}
	return Reply{}
}

package chat

import (
	"strings"
	"unicode"
)

// Command is the parsed form of one input line.
type Command interface {
	command()
}

// JoinCommand moves the sender into Room, leaving any current room.
type JoinCommand struct {
	Room string
}

// TextCommand is a chat line for the sender's current room.
type TextCommand struct {
	Body string
}

// UnknownCommand carries an unrecognized leading /token.
type UnknownCommand struct {
	Raw string
}

type LeaveCommand struct{}

type ListCommand struct{}

type UsersCommand struct{}

type HelpCommand struct{}

type QuitCommand struct{}

func (JoinCommand) command()    {}
func (LeaveCommand) command()   {}
func (ListCommand) command()    {}
func (UsersCommand) command()   {}
func (HelpCommand) command()    {}
func (QuitCommand) command()    {}
func (TextCommand) command()    {}
func (UnknownCommand) command() {}

// Parse turns a trimmed, non-empty line into a Command. Matching of the
// leading token is case-sensitive; the argument is everything after the
// first whitespace run.
func Parse(line string) Command {
	if !strings.HasPrefix(line, "/") {
		return TextCommand{Body: line}
	}

	token, arg := splitCommand(line)
	switch token {
	case "/join":
		return JoinCommand{Room: arg}
	case "/leave":
		return LeaveCommand{}
	case "/list":
		return ListCommand{}
	case "/users":
		return UsersCommand{}
	case "/help":
		return HelpCommand{}
	case "/quit":
		return QuitCommand{}
	default:
		return UnknownCommand{Raw: token}
	}
}

func splitCommand(line string) (string, string) {
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx:])
}

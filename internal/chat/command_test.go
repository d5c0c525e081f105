package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{line: "/list", want: ListCommand{}},
		{line: "/list extra", want: ListCommand{}},
		{line: "/leave", want: LeaveCommand{}},
		{line: "/users", want: UsersCommand{}},
		{line: "/help", want: HelpCommand{}},
		{line: "/quit", want: QuitCommand{}},
		{line: "/join general", want: JoinCommand{Room: "general"}},
		{line: "/join \t  general  ", want: JoinCommand{Room: "general"}},
		{line: "/join two words", want: JoinCommand{Room: "two words"}},
		{line: "/join", want: JoinCommand{Room: ""}},
		{line: "/join    ", want: JoinCommand{Room: ""}},
		{line: "/JOIN general", want: UnknownCommand{Raw: "/JOIN"}},
		{line: "/joingeneral", want: UnknownCommand{Raw: "/joingeneral"}},
		{line: "/", want: UnknownCommand{Raw: "/"}},
		{line: "/dance now", want: UnknownCommand{Raw: "/dance"}},
		{line: "hello there", want: TextCommand{Body: "hello there"}},
		{line: "list", want: TextCommand{Body: "list"}},
		{line: "a /join b", want: TextCommand{Body: "a /join b"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			require.Equal(t, tt.want, Parse(tt.line))
		})
	}
}

package chat

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomBroadcastDeliversToOtherMembers(t *testing.T) {
	hub := newTestHub()

	alice, aliceOut := hub.Connect("alice")
	bob, bobOut := hub.Connect("bob")
	joinAll(t, hub, "general", alice, bob)

	require.NoError(t, hub.Rooms.Broadcast("general", alice, "hello world"))

	require.Equal(t, "[12:00:00] alice: hello world", receive(t, bobOut))
	requireNoMessage(t, aliceOut)
}

func TestJoinNotifiesOtherMembers(t *testing.T) {
	hub := newTestHub()

	alice, aliceOut := hub.Connect("alice")
	bob, bobOut := hub.Connect("bob")

	require.NoError(t, hub.Rooms.Join(alice, "general"))
	require.NoError(t, hub.Rooms.Join(bob, "general"))

	require.Equal(t, "[12:00:00] [system] bob joined general", receive(t, aliceOut))
	requireNoMessage(t, bobOut)
}

func TestJoinSupersedesPreviousRoom(t *testing.T) {
	hub := newTestHub()

	alice, _ := hub.Connect("alice")
	bob, bobOut := hub.Connect("bob")
	carol, _ := hub.Connect("carol")
	joinAll(t, hub, "a", alice, bob)
	joinAll(t, hub, "b", carol)

	require.Equal(t, []RoomInfo{{Name: "a", Members: 2}, {Name: "b", Members: 1}}, hub.Rooms.List())

	require.NoError(t, hub.Rooms.Join(alice, "b"))

	require.Equal(t, []RoomInfo{{Name: "a", Members: 1}, {Name: "b", Members: 2}}, hub.Rooms.List())
	room, ok := hub.Rooms.CurrentRoom(alice)
	require.True(t, ok)
	require.Equal(t, "b", room)
	require.Contains(t, receive(t, bobOut), "alice left a")
}

func TestJoinValidatesRoomName(t *testing.T) {
	hub := newTestHub(WithMaxRoomNameLength(8))
	alice, _ := hub.Connect("alice")

	tests := []struct {
		name    string
		room    string
		wantErr bool
	}{
		{name: "empty", room: "", wantErr: true},
		{name: "whitespace inside", room: "a b", wantErr: true},
		{name: "tab", room: "a\tb", wantErr: true},
		{name: "leading slash", room: "/list", wantErr: true},
		{name: "control character", room: "a\x07", wantErr: true},
		{name: "too long", room: strings.Repeat("x", 9), wantErr: true},
		{name: "max length", room: strings.Repeat("x", 8)},
		{name: "unicode within limit", room: "카페-라운지"},
		{name: "punctuation", room: "go_dev.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hub.Rooms.Join(alice, tt.room)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRoomName)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestJoinSameRoomIsRejected(t *testing.T) {
	hub := newTestHub()
	alice, _ := hub.Connect("alice")

	require.NoError(t, hub.Rooms.Join(alice, "general"))
	require.ErrorIs(t, hub.Rooms.Join(alice, "general"), ErrAlreadyInRoom)
	require.Equal(t, []RoomInfo{{Name: "general", Members: 1}}, hub.Rooms.List())
}

func TestLeaveWhenIdle(t *testing.T) {
	hub := newTestHub()
	alice, _ := hub.Connect("alice")

	_, err := hub.Rooms.Leave(alice)
	require.ErrorIs(t, err, ErrNotInRoom)
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	hub := newTestHub()
	alice, aliceOut := hub.Connect("alice")
	bob, bobOut := hub.Connect("bob")
	joinAll(t, hub, "general", alice, bob)

	name, err := hub.Rooms.Leave(alice)
	require.NoError(t, err)
	require.Equal(t, "general", name)

	require.Equal(t, "[12:00:00] [system] alice left general", receive(t, bobOut))
	requireNoMessage(t, aliceOut)

	_, ok := hub.Rooms.CurrentRoom(alice)
	require.False(t, ok)
}

func TestEmptyRoomPolicy(t *testing.T) {
	t.Run("deleted by default", func(t *testing.T) {
		hub := newTestHub()
		alice, _ := hub.Connect("alice")
		require.NoError(t, hub.Rooms.Join(alice, "general"))

		_, err := hub.Rooms.Leave(alice)
		require.NoError(t, err)

		require.Empty(t, hub.Rooms.List())
		_, err = hub.Rooms.Users("general")
		require.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("retained when configured", func(t *testing.T) {
		hub := newTestHub(WithRetainEmptyRooms(true))
		alice, _ := hub.Connect("alice")
		require.NoError(t, hub.Rooms.Join(alice, "general"))

		_, err := hub.Rooms.Leave(alice)
		require.NoError(t, err)

		require.Equal(t, []RoomInfo{{Name: "general", Members: 0}}, hub.Rooms.List())
		users, err := hub.Rooms.Users("general")
		require.NoError(t, err)
		require.Empty(t, users)
	})
}

func TestListAndUsersAreSorted(t *testing.T) {
	hub := newTestHub()

	for _, name := range []string{"zed", "amy", "mia"} {
		s, _ := hub.Connect(name)
		require.NoError(t, hub.Rooms.Join(s, "lounge"))
	}
	s, _ := hub.Connect("kim")
	require.NoError(t, hub.Rooms.Join(s, "help"))

	require.Equal(t, []RoomInfo{{Name: "help", Members: 1}, {Name: "lounge", Members: 3}}, hub.Rooms.List())

	users, err := hub.Rooms.Users("lounge")
	require.NoError(t, err)
	require.Equal(t, []string{"amy", "mia", "zed"}, users)
}

func TestUsersUnknownRoom(t *testing.T) {
	hub := newTestHub()

	_, err := hub.Rooms.Users("nowhere")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSingleRoomInvariantUnderConcurrentJoins(t *testing.T) {
	hub := newTestHub(WithRetainEmptyRooms(true))
	rooms := []string{"r0", "r1", "r2", "r3"}

	sessions := make([]*Session, 0, 16)
	for i := range 16 {
		s, _ := hub.Connect(fmt.Sprintf("user%02d", i))
		sessions = append(sessions, s)
	}

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				room := rooms[(i+j)%len(rooms)]
				_ = hub.Rooms.Join(s, room)
				if j%7 == 0 {
					_, _ = hub.Rooms.Leave(s)
				}
			}
		}()
	}
	wg.Wait()

	hub.Rooms.mu.Lock()
	defer hub.Rooms.mu.Unlock()

	total := 0
	for _, s := range sessions {
		found := 0
		for _, room := range hub.Rooms.rooms {
			if _, ok := room.members[s.ID]; ok {
				found++
				require.Same(t, room, s.room, "membership must match the session's room")
			}
		}
		if s.room == nil {
			require.Zero(t, found)
		} else {
			require.Equal(t, 1, found)
			total++
		}
	}

	members := 0
	for _, room := range hub.Rooms.rooms {
		members += len(room.members)
	}
	require.Equal(t, total, members)
}

func TestJoinAfterDisconnectFails(t *testing.T) {
	hub := newTestHub()
	alice, _ := hub.Connect("alice")

	hub.Registry.Unregister(alice.ID)

	require.ErrorIs(t, hub.Rooms.Join(alice, "general"), ErrSessionClosed)
	require.Empty(t, hub.Rooms.List())
}

func TestNewDirectoryRegistersRoomNameRule(t *testing.T) {
	log := newTestHub().opts.log

	var rooms *Directory
	require.NotPanics(t, func() {
		rooms = NewDirectory(NewBroadcaster(0, nil, log), 8, false, log)
	})

	require.NoError(t, rooms.validateName("lobby"))
	require.ErrorIs(t, rooms.validateName("/lobby"), ErrInvalidRoomName)
	require.ErrorIs(t, rooms.validateName("two words"), ErrInvalidRoomName)
	require.ErrorIs(t, rooms.validateName("much-too-long"), ErrInvalidRoomName)
}

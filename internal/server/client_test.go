package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/npezzotti/ravenchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")
		assert.Len(t, c.send, 1, "expected a message to be sent to the client")
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_processMessage_Invalid(t *testing.T) {
	cs := newTestChatServer(t, permissiveStats())

	tcases := map[string]string{
		"malformed json": `{"join":`,
		"no event":       `{}`,
		"two events":     `{"join":{"participant":"carol","target":"dave"},"leave":{"participant":"carol"}}`,
	}

	for name, raw := range tcases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, cs, "carol")
			c.processMessage([]byte(raw))

			msgs := drain(c)
			require.Len(t, msgs, 1, "expected an error response")
			require.NotNil(t, msgs[0].Response)
			assert.Equal(t, http.StatusBadRequest, msgs[0].Response.ResponseCode)
		})
	}
}

func Test_processMessage_Join(t *testing.T) {
	tcases := []struct {
		name       string
		raw        string
		expectRoom string
	}{
		{
			name:       "valid join",
			raw:        `{"join":{"participant":"carol","target":"dave"}}`,
			expectRoom: "chat_carol_dave",
		},
		{
			name: "missing target",
			raw:  `{"join":{"participant":"carol"}}`,
		},
		{
			name: "other participant",
			raw:  `{"join":{"participant":"dave","target":"carol"}}`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cs := newTestChatServer(t, permissiveStats())
			c := newTestClient(t, cs, "carol")

			c.processMessage([]byte(tc.raw))

			if tc.expectRoom == "" {
				assert.Len(t, cs.eventChan, 0, "expected join to be dropped")
				assert.Empty(t, drain(c), "expected dropped events not to be answered")
				return
			}

			require.Len(t, cs.eventChan, 1, "expected join to be forwarded to the server")
			join := <-cs.eventChan
			assert.Equal(t, tc.expectRoom, join.roomId)
			assert.Equal(t, c, join.client)
		})
	}
}

func Test_processMessage_Publish(t *testing.T) {
	cs := newTestChatServer(t, permissiveStats())
	c := newTestClient(t, cs, "dave")

	c.processMessage([]byte(`{"message":{"sender":"dave","target":"carol","text":"hi"}}`))
	require.Len(t, cs.eventChan, 1, "expected message to be forwarded to the server")

	msg := <-cs.eventChan
	assert.NotEmpty(t, msg.Message.Id, "expected a generated message id")
	assert.False(t, msg.Message.Timestamp.IsZero(), "expected a generated timestamp")
	assert.Equal(t, "chat_carol_dave", msg.roomId)
	assert.Equal(t, c, msg.client)

	c.processMessage([]byte(`{"message":{"sender":"carol","target":"dave","text":"spoofed"}}`))
	c.processMessage([]byte(`{"message":{"sender":"dave","target":"carol","text":""}}`))
	assert.Len(t, cs.eventChan, 0, "expected invalid messages to be dropped")
}

func Test_processMessage_Leave(t *testing.T) {
	cs := newTestChatServer(t, permissiveStats())
	c := newTestClient(t, cs, "carol")

	c.processMessage([]byte(`{"leave":{"participant":"dave"}}`))
	assert.Len(t, cs.eventChan, 0, "expected leave for another participant to be dropped")

	c.processMessage([]byte(`{"leave":{"participant":"carol"}}`))
	require.Len(t, cs.eventChan, 1, "expected leave to be forwarded to the server")
	leave := <-cs.eventChan
	assert.Equal(t, "carol", leave.Leave.Participant)
	assert.Empty(t, leave.roomId, "expected the server to resolve the room")
}

func Test_dispatch_serverStopped(t *testing.T) {
	cs := newTestChatServer(t, permissiveStats())
	c := newTestClient(t, cs, "carol")

	// fill the queue so only the stopped server can release dispatch
	for i := 0; i < cap(cs.eventChan); i++ {
		cs.eventChan <- &ClientMessage{}
	}
	close(cs.done)

	finished := make(chan struct{})
	go func() {
		c.dispatch(&ClientMessage{Leave: &Leave{Participant: "carol"}, client: c})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("expected dispatch to return once the server stopped")
	}
}

func Test_addRoom_delRoom_getRoom(t *testing.T) {
	c := &Client{rooms: make(map[string]*Room)}
	r := &Room{id: "chat_a_b"}

	assert.True(t, c.addRoom(r))
	assert.Equal(t, r, c.getRoom("chat_a_b"))

	c.delRoom("chat_a_b")
	assert.Nil(t, c.getRoom("chat_a_b"))

	c.markClosed()
	assert.False(t, c.addRoom(r), "expected closed client not to join rooms")
	assert.Nil(t, c.getRoom("chat_a_b"))
}

func Test_leaveAllRooms(t *testing.T) {
	rooms := []*Room{
		{id: "chat_a_b", detachChan: make(chan *Client, 1), done: make(chan struct{})},
		{id: "chat_a_c", detachChan: make(chan *Client, 1), done: make(chan struct{})},
	}
	exited := &Room{id: "chat_a_d", detachChan: make(chan *Client), done: make(chan struct{})}
	close(exited.done)

	c := &Client{rooms: make(map[string]*Room)}
	for _, r := range append(rooms, exited) {
		c.addRoom(r)
	}

	c.leaveAllRooms()

	for _, r := range rooms {
		require.Len(t, r.detachChan, 1, "expected detach request for room %s", r.id)
		assert.Equal(t, c, <-r.detachChan)
	}
}

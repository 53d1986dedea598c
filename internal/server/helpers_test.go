package server

import (
	"testing"
	"time"

	"github.com/npezzotti/ravenchat/internal/stats"
	"github.com/npezzotti/ravenchat/internal/testutil"
	"github.com/stretchr/testify/mock"
)

// newTestChatServer creates a new ChatServer instance for testing purposes
func newTestChatServer(t *testing.T, su *stats.MockStatsUpdater) *ChatServer {
	t.Helper()
	su.On("RegisterMetric", mock.Anything).Return().Times(4)

	cs, err := NewChatServer(testutil.TestLogger(t), su)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

// permissiveStats accepts any counter update.
func permissiveStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

func newTestClient(t *testing.T, cs *ChatServer, username string) *Client {
	t.Helper()
	return NewClient(0, username, nil, cs, testutil.TestLogger(t))
}

// nextMessage returns the next queued frame matching match, discarding
// others.
func nextMessage(t *testing.T, c *Client, match func(*ServerMessage) bool) *ServerMessage {
	t.Helper()

	timeout := time.After(time.Second)
	for {
		select {
		case msg := <-c.send:
			if match(msg) {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for message on client %q", c.username)
			return nil
		}
	}
}

func isRoomMessage(msg *ServerMessage) bool { return msg.Message != nil }

func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

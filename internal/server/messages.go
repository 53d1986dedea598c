package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// ClientMessage is a frame sent by a client. Exactly one field is set.
type ClientMessage struct {
	Join    *Join    `json:"join,omitempty"`
	Message *Publish `json:"message,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`

	roomId string
	client *Client
}

type Join struct {
	Participant string `json:"participant"`
	Target      string `json:"target"`
}

type Publish struct {
	Sender    string    `json:"sender"`
	Target    string    `json:"target"`
	Text      string    `json:"text"`
	Id        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

type Leave struct {
	Participant string `json:"participant"`
}

func (m *ClientMessage) numSet() int {
	n := 0
	if m.Join != nil {
		n++
	}
	if m.Message != nil {
		n++
	}
	if m.Leave != nil {
		n++
	}
	return n
}

type ServerMessage struct {
	UserJoined *PresenceEvent `json:"user_joined,omitempty"`
	UserLeft   *PresenceEvent `json:"user_left,omitempty"`
	Message    *RoomMessage   `json:"message,omitempty"`
	Response   *Response      `json:"response,omitempty"`
	SkipClient *Client        `json:"-"`
}

type PresenceEvent struct {
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomMessage struct {
	Id        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	RoomId    string    `json:"room_id"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func ErrInvalidMessage() *ServerMessage {
	return &ServerMessage{
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}
}

func ErrServiceUnavailable() *ServerMessage {
	return &ServerMessage{
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

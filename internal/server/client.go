package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is one websocket session of an authenticated user.
type Client struct {
	id         string
	userId     int
	username   string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *zap.Logger
	send       chan *ServerMessage
	rooms      map[string]*Room
	roomsLock  sync.RWMutex
	closed     bool
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(userId int, username string, conn *websocket.Conn, cs *ChatServer, logger *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:         id,
		userId:     userId,
		username:   username,
		conn:       conn,
		chatServer: cs,
		log:        logger.With(zap.String("client", id), zap.String("username", username)),
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Username() string {
	return c.username
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error("failed to serialize message", zap.Error(err))
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn("ws read", zap.Error(err))
			}
			break
		}

		c.processMessage(raw)
	}
}

func (c *Client) processMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.numSet() != 1 {
		c.log.Debug("invalid message", zap.ByteString("raw", raw), zap.Error(err))
		c.queueMessage(ErrInvalidMessage())
		return
	}
	msg.client = c

	switch {
	case msg.Join != nil:
		c.handleJoin(&msg)
	case msg.Leave != nil:
		c.handleLeave(&msg)
	case msg.Message != nil:
		c.handlePublish(&msg)
	}
}

// owns reports whether the session may act as participant.
func (c *Client) owns(participant string) bool {
	if participant != c.username {
		c.log.Warn("dropping event for another participant", zap.String("participant", participant))
		return false
	}
	return true
}

func (c *Client) handleJoin(msg *ClientMessage) {
	j := msg.Join
	if j.Participant == "" || j.Target == "" {
		c.log.Debug("dropping join with missing identifiers")
		return
	}
	if !c.owns(j.Participant) {
		return
	}

	msg.roomId = RoomID(j.Participant, j.Target)
	c.dispatch(msg)
}

func (c *Client) handleLeave(msg *ClientMessage) {
	l := msg.Leave
	if l.Participant == "" {
		c.log.Debug("dropping leave with missing participant")
		return
	}
	if !c.owns(l.Participant) {
		return
	}

	// the server resolves the current room so the leave is ordered after
	// any join this session sent before it
	c.dispatch(msg)
}

func (c *Client) handlePublish(msg *ClientMessage) {
	p := msg.Message
	if p.Sender == "" || p.Target == "" || p.Text == "" {
		c.log.Debug("dropping message with missing fields")
		return
	}
	if !c.owns(p.Sender) {
		return
	}

	if p.Id == "" {
		p.Id = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = Now()
	}

	msg.roomId = RoomID(p.Sender, p.Target)
	c.dispatch(msg)
}

// dispatch passes an event to the server, which routes the events of all
// sessions in arrival order.
func (c *Client) dispatch(msg *ClientMessage) {
	select {
	case c.chatServer.eventChan <- msg:
	case <-c.chatServer.done:
		c.log.Debug("chat server stopped, dropping event")
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn("write message", zap.Error(err))
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanup runs once the connection is gone. It is safe to call more than
// once.
func (c *Client) cleanup() {
	c.markClosed()
	c.chatServer.deRegisterClient(c)
	c.leaveAllRooms()
	c.stopClient()
}

func (c *Client) markClosed() {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()
	c.closed = true
}

func (c *Client) roomList() []*Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	rooms := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (c *Client) detachFrom(r *Room) {
	select {
	case r.detachChan <- c:
	case <-r.done:
	}
}

func (c *Client) leaveAllRooms() {
	for _, r := range c.roomList() {
		c.detachFrom(r)
	}
}

func (c *Client) delRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}

// addRoom reports false once the client has been closed.
func (c *Client) addRoom(r *Room) bool {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	if c.closed {
		return false
	}
	c.rooms[r.id] = r
	return true
}

func (c *Client) getRoom(id string) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	return c.rooms[id]
}

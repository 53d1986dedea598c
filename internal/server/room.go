package server

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const idleRoomTimeout = time.Second * 5

// Room owns the sessions joined to one pair's room. All membership changes
// and broadcasts happen on the room's goroutine.
type Room struct {
	id         string
	cs         *ChatServer
	// eventChan carries joins, leaves and messages in the order the server
	// routed them
	eventChan  chan *ClientMessage
	detachChan chan *Client
	clients    map[*Client]struct{}
	userMap    map[string]map[*Client]struct{}
	clientLock sync.RWMutex
	log        *zap.Logger
	// killTimer unloads the room once it has been empty for idleRoomTimeout
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func newRoom(id string, cs *ChatServer) *Room {
	r := &Room{
		id:         id,
		cs:         cs,
		eventChan:  make(chan *ClientMessage, 256),
		detachChan: make(chan *Client, 256),
		clients:    make(map[*Client]struct{}),
		userMap:    make(map[string]map[*Client]struct{}),
		log:        cs.log.With(zap.String("room", id)),
		killTimer:  time.NewTimer(idleRoomTimeout),
		exit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	r.killTimer.Stop()

	return r
}

func (r *Room) start() {
	r.log.Debug("starting room")
	defer close(r.done)

	for {
		select {
		case ev := <-r.eventChan:
			r.handleEvent(ev)
		case c := <-r.detachChan:
			r.removeClient(c)
		case <-r.killTimer.C:
			if r.handleRoomTimeout() {
				r.handleRoomExit()
				return
			}
		case <-r.exit:
			r.handleRoomExit()
			return
		}
	}
}

// handleRoomTimeout removes the room from the server when it is still idle.
// Events are queued while holding the server's room lock, so checking the
// queue under that lock means no event is lost.
func (r *Room) handleRoomTimeout() bool {
	r.cs.roomsLock.Lock()
	defer r.cs.roomsLock.Unlock()

	if r.cs.rooms[r.id] != r {
		// shutting down, exit will follow
		return false
	}

	if r.clientCount() > 0 || len(r.eventChan) > 0 {
		return false
	}

	r.log.Info("room timed out")
	delete(r.cs.rooms, r.id)
	return true
}

func (r *Room) handleRoomExit() {
	r.log.Info("room is exiting")

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
	}
	r.clients = make(map[*Client]struct{})
	r.userMap = make(map[string]map[*Client]struct{})
	r.clientLock.Unlock()

	r.killTimer.Stop()
	r.cs.stats.Decr(metricActiveRooms)
}

func (r *Room) handleEvent(ev *ClientMessage) {
	switch {
	case ev.Join != nil:
		r.handleJoin(ev)
	case ev.Leave != nil:
		r.handleLeave(ev)
	case ev.Message != nil:
		r.handleMessage(ev)
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	if !r.addClient(c) {
		r.log.Debug("client closed before join", zap.String("client", c.id))
		r.resetTimerIfEmpty()
		return
	}

	r.broadcast(&ServerMessage{
		UserJoined: &PresenceEvent{
			Username:  join.Join.Participant,
			Timestamp: Now(),
		},
		SkipClient: c,
	})
}

func (r *Room) handleLeave(leave *ClientMessage) {
	participant := leave.Leave.Participant

	r.broadcast(&ServerMessage{
		UserLeft: &PresenceEvent{
			Username:  participant,
			Timestamp: Now(),
		},
		SkipClient: leave.client,
	})

	r.removeAllClientsForUser(participant)
}

func (r *Room) handleMessage(msg *ClientMessage) {
	if !r.hasClient(msg.client) {
		r.log.Debug("sender session not in room", zap.String("client", msg.client.id))
		return
	}

	p := msg.Message
	r.broadcast(&ServerMessage{
		Message: &RoomMessage{
			Id:        p.Id,
			Text:      p.Text,
			Sender:    p.Sender,
			Timestamp: p.Timestamp,
			RoomId:    r.id,
		},
	})
	r.cs.stats.Incr(metricMessagesRelayed)
}

func (r *Room) clientCount() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients)
}

func (r *Room) hasClient(c *Client) bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	_, ok := r.clients[c]
	return ok
}

func (r *Room) resetTimerIfEmpty() {
	if r.clientCount() == 0 {
		r.log.Debug("no clients in room, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// addClient reports false when the client disconnected before the join was
// processed.
func (r *Room) addClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if !c.addRoom(r) {
		return false
	}

	r.clients[c] = struct{}{}
	if r.userMap[c.username] == nil {
		r.userMap[c.username] = make(map[*Client]struct{})
	}
	r.userMap[c.username][c] = struct{}{}

	return true
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	if _, ok := r.clients[c]; !ok {
		r.clientLock.Unlock()
		return
	}

	delete(r.clients, c)
	c.delRoom(r.id)

	if userClients, ok := r.userMap[c.username]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.username)
		}
	}
	r.clientLock.Unlock()

	r.log.Debug("removed client", zap.String("client", c.id), zap.String("username", c.username))
	r.resetTimerIfEmpty()
}

func (r *Room) removeAllClientsForUser(username string) {
	r.clientLock.Lock()
	if userClients, ok := r.userMap[username]; ok {
		for c := range userClients {
			delete(r.clients, c)
			c.delRoom(r.id)
		}
		delete(r.userMap, username)
	}
	r.clientLock.Unlock()

	r.log.Debug("removed all clients for user", zap.String("username", username))
	r.resetTimerIfEmpty()
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for c := range r.clients {
		if c == msg.SkipClient {
			continue
		}

		c.queueMessage(msg)
	}
}

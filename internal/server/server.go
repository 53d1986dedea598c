// Package server relays realtime events between the websocket sessions of
// connected users.
package server

import (
	"context"
	"sync"

	"github.com/npezzotti/ravenchat/internal/stats"
	"go.uber.org/zap"
)

const (
	metricActiveClients   = "NumActiveClients"
	metricActiveRooms     = "NumActiveRooms"
	metricOnlineUsers     = "NumOnlineUsers"
	metricMessagesRelayed = "NumMessagesRelayed"
)

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the loaded rooms and the presence of every connected
// session.
type ChatServer struct {
	log            *zap.Logger
	stats          stats.StatsProvider
	presence       *Presence
	clients        map[*Client]struct{}
	clientsLock    sync.RWMutex
	eventChan      chan *ClientMessage
	registerChan   chan *Client
	deRegisterChan chan *Client
	rooms          map[string]*Room
	roomsLock      sync.RWMutex
	stop           chan stopReq
	done           chan struct{}
}

func NewChatServer(logger *zap.Logger, su stats.StatsProvider) (*ChatServer, error) {
	su.RegisterMetric(metricActiveClients)
	su.RegisterMetric(metricActiveRooms)
	su.RegisterMetric(metricOnlineUsers)
	su.RegisterMetric(metricMessagesRelayed)

	return &ChatServer{
		log:            logger,
		stats:          su,
		presence:       NewPresence(),
		clients:        make(map[*Client]struct{}),
		eventChan:      make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		rooms:          make(map[string]*Room),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Presence() *Presence {
	return cs.presence
}

func (cs *ChatServer) Run() {
	for {
		select {
		case ev := <-cs.eventChan:
			cs.routeEvent(ev)
		case c := <-cs.registerChan:
			cs.log.Debug("adding client", zap.String("client", c.id), zap.String("username", c.username))
			cs.addClient(c)
		case c := <-cs.deRegisterChan:
			cs.log.Debug("removing client", zap.String("client", c.id), zap.String("username", c.username))
			cs.removeClient(c)
		case req := <-cs.stop:
			cs.log.Info("shutting down rooms")
			cs.unloadAllRooms()
			close(cs.done)
			close(req.done)
			return
		}
	}
}

// RegisterClient attaches a new session. It must be called before the
// session's read loop starts so that presence exists for its first join.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) deRegisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

// routeEvent hands a session event to its room. Every event passes through
// here in arrival order and each room consumes its queue in order, so a
// session's join is applied before anything it sends afterwards.
func (cs *ChatServer) routeEvent(ev *ClientMessage) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	switch {
	case ev.Join != nil:
		cs.routeJoin(ev)
	case ev.Leave != nil:
		roomId, ok := cs.presence.ClearRoom(ev.Leave.Participant)
		if !ok {
			cs.log.Debug("leave without a current room", zap.String("participant", ev.Leave.Participant))
			return
		}
		ev.roomId = roomId
		cs.deliver(ev)
	case ev.Message != nil:
		cs.deliver(ev)
	}
}

// routeJoin loads the room if needed and moves the participant into it. A
// participant is in one room at a time, so all of its sessions leave the
// previous room.
func (cs *ChatServer) routeJoin(join *ClientMessage) {
	participant := join.Join.Participant

	prev, ok := cs.presence.SetRoom(participant, join.roomId)
	if !ok {
		cs.log.Warn("join from participant without a session", zap.String("participant", participant))
	}
	if prev != "" && prev != join.roomId {
		cs.deliver(&ClientMessage{
			Leave:  &Leave{Participant: participant},
			roomId: prev,
			client: join.client,
		})
	}

	room, ok := cs.rooms[join.roomId]
	if !ok {
		room = newRoom(join.roomId, cs)
		cs.rooms[room.id] = room
		cs.stats.Incr(metricActiveRooms)
		go room.start()
	}

	cs.enqueue(room, join)
}

// deliver queues ev on its loaded room and drops it otherwise. The caller
// holds roomsLock.
func (cs *ChatServer) deliver(ev *ClientMessage) {
	room, ok := cs.rooms[ev.roomId]
	if !ok {
		cs.log.Debug("room not loaded", zap.String("room", ev.roomId))
		return
	}

	cs.enqueue(room, ev)
}

func (cs *ChatServer) enqueue(room *Room, ev *ClientMessage) {
	select {
	case room.eventChan <- ev:
	default:
		cs.log.Warn("room event channel full", zap.String("room", room.id))
		ev.client.queueMessage(ErrServiceUnavailable())
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; ok {
		return
	}
	cs.clients[c] = struct{}{}

	wasOnline := cs.presence.Online(c.username)
	cs.presence.Attach(c.username, c)

	cs.stats.Incr(metricActiveClients)
	if !wasOnline {
		cs.stats.Incr(metricOnlineUsers)
	}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)

	cs.stats.Decr(metricActiveClients)
	if cs.presence.Detach(c.username, c) == 0 {
		cs.stats.Decr(metricOnlineUsers)
	}
}

func (cs *ChatServer) getClients() []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.clients))
	for c := range cs.clients {
		clients = append(clients, c)
	}
	return clients
}

func (cs *ChatServer) getRoom(id string) (*Room, bool) {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()

	r, ok := cs.rooms[id]
	return r, ok
}

func (cs *ChatServer) unloadAllRooms() {
	cs.roomsLock.Lock()
	rooms := make([]*Room, 0, len(cs.rooms))
	for id, r := range cs.rooms {
		rooms = append(rooms, r)
		delete(cs.rooms, id)
	}
	cs.roomsLock.Unlock()

	for _, r := range rooms {
		close(r.exit)
		<-r.done
	}
}

// Shutdown stops every session and room. It returns ctx.Err() if ctx ends
// first.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")
	for _, c := range cs.getClients() {
		c.stopClient()
	}

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package server

import "sync"

type participant struct {
	sessions map[*Client]struct{}
	room     string
}

// Presence tracks the live sessions of each participant and the room the
// participant is currently in. A participant is in at most one room.
type Presence struct {
	mu           sync.RWMutex
	participants map[string]*participant
}

func NewPresence() *Presence {
	return &Presence{participants: make(map[string]*participant)}
}

func (p *Presence) Attach(username string, c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pt, ok := p.participants[username]
	if !ok {
		pt = &participant{sessions: make(map[*Client]struct{})}
		p.participants[username] = pt
	}
	pt.sessions[c] = struct{}{}
}

// Detach removes a session and returns how many sessions the participant
// still has. The participant is forgotten once none remain. Detaching an
// unknown session is a no-op.
func (p *Presence) Detach(username string, c *Client) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pt, ok := p.participants[username]
	if !ok {
		return 0
	}

	delete(pt.sessions, c)
	if len(pt.sessions) == 0 {
		delete(p.participants, username)
		return 0
	}

	return len(pt.sessions)
}

// SetRoom records roomId as the participant's current room and returns the
// room it replaces, if any. It reports false when the participant has no
// session.
func (p *Presence) SetRoom(username, roomId string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pt, ok := p.participants[username]
	if !ok {
		return "", false
	}
	prev := pt.room
	pt.room = roomId
	return prev, true
}

func (p *Presence) Room(username string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pt, ok := p.participants[username]
	if !ok || pt.room == "" {
		return "", false
	}
	return pt.room, true
}

// ClearRoom removes and returns the participant's current room.
func (p *Presence) ClearRoom(username string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pt, ok := p.participants[username]
	if !ok || pt.room == "" {
		return "", false
	}

	room := pt.room
	pt.room = ""
	return room, true
}

func (p *Presence) Sessions(username string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if pt, ok := p.participants[username]; ok {
		return len(pt.sessions)
	}
	return 0
}

func (p *Presence) Online(username string) bool {
	return p.Sessions(username) > 0
}

// Len is the number of participants with at least one session.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.participants)
}

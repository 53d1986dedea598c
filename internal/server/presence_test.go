package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresence(t *testing.T) {
	p := NewPresence()
	s1, s2 := &Client{}, &Client{}

	_, ok := p.SetRoom("carol", "chat_carol_dave")
	assert.False(t, ok, "expected SetRoom to fail without a session")

	p.Attach("carol", s1)
	p.Attach("carol", s2)
	assert.Equal(t, 2, p.Sessions("carol"))
	assert.True(t, p.Online("carol"))

	_, ok = p.Room("carol")
	assert.False(t, ok, "expected no room before join")

	prev, ok := p.SetRoom("carol", "chat_carol_dave")
	assert.True(t, ok)
	assert.Empty(t, prev)
	prev, ok = p.SetRoom("carol", "chat_bob_carol")
	assert.True(t, ok)
	assert.Equal(t, "chat_carol_dave", prev, "expected join to replace the previous room")
	room, ok := p.Room("carol")
	assert.True(t, ok)
	assert.Equal(t, "chat_bob_carol", room)

	room, ok = p.ClearRoom("carol")
	assert.True(t, ok)
	assert.Equal(t, "chat_bob_carol", room)
	_, ok = p.ClearRoom("carol")
	assert.False(t, ok, "expected second ClearRoom to find nothing")

	assert.Equal(t, 1, p.Detach("carol", s1))
	assert.Equal(t, 0, p.Detach("carol", s2))
	assert.False(t, p.Online("carol"))
	assert.Equal(t, 0, p.Len(), "expected participant to be removed with its last session")

	// detaching again is a no-op
	assert.Equal(t, 0, p.Detach("carol", s2))
	assert.Equal(t, 0, p.Detach("nobody", s1))
}

func TestPresence_Concurrent(t *testing.T) {
	p := NewPresence()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &Client{}
			p.Attach("carol", c)
			p.SetRoom("carol", "chat_carol_dave")
			p.Room("carol")
			p.Detach("carol", c)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, p.Len())
}

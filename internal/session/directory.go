package session

import (
	"errors"
	"sync"
)

var ErrAlreadyBound = errors.New("connection already bound to a room")

// Binding is the room membership a connection speaks for.
type Binding struct {
	RoomID   string
	PlayerID string
}

type Directory struct {
	mu       sync.RWMutex
	byConn   map[string]Binding
	byPlayer map[Binding]string
}

func NewDirectory() *Directory {
	return &Directory{
		byConn:   make(map[string]Binding),
		byPlayer: make(map[Binding]string),
	}
}

// Bind attaches connID to b. A connection holds at most one binding.
func (d *Directory) Bind(connID string, b Binding) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byConn[connID]; ok {
		return ErrAlreadyBound
	}
	d.byConn[connID] = b
	d.byPlayer[b] = connID
	return nil
}

func (d *Directory) Lookup(connID string) (Binding, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.byConn[connID]
	return b, ok
}

func (d *Directory) ConnFor(roomID, playerID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byPlayer[Binding{RoomID: roomID, PlayerID: playerID}]
	return id, ok
}

// Unbind drops connID and returns what it was bound to.
func (d *Directory) Unbind(connID string) (Binding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	delete(d.byConn, connID)
	if d.byPlayer[b] == connID {
		delete(d.byPlayer, b)
	}
	return b, true
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byConn)
}

// Package session implements the single-slot admission gate for the duplex
// channel: one active connection at a time, a per-session message counter,
// and the echo replies sent back on data events.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Gate holds the duplex channel's session state. At most one session id is
// active at any time; a second connect attempt is rejected, not queued.
type Gate struct {
	// Label prefixes echo replies.
	Label string

	mu       sync.Mutex
	activeID string
	counter  int

	now func() time.Time
}

// NewGate returns an idle gate labelled label.
func NewGate(label string) *Gate {
	return &Gate{Label: label, now: time.Now}
}

// OnConnect reports whether a new connection may be admitted. Admission is
// granted only while no session is active.
func (g *Gate) OnConnect() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeID == ""
}

// OnReady records id as the active session.
func (g *Gate) OnReady(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activeID = id
}

// Admit combines OnConnect and OnReady under one lock. Connection handlers
// run concurrently, so the slot check and the id recording must be atomic
// or two clients could both pass the gate.
func (g *Gate) Admit(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeID != "" {
		return false
	}
	g.activeID = id
	return true
}

// OnClose frees the session slot. Idempotent. The message counter is
// session-scoped, so it resets here.
func (g *Gate) OnClose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activeID = ""
	g.counter = 0
}

// OnData counts an inbound message and returns the echo reply for it.
func (g *Gate) OnData(payload []byte) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s replies:%s server counter:%d", g.Label, g.now().Format(time.ANSIC), g.counter)
}

// ActiveID returns the current session id, empty when idle.
func (g *Gate) ActiveID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeID
}

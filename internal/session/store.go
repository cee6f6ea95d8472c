// Package session holds the process-wide browser session: the current
// control connection and the active surface.
package session

import (
	"sync"

	"github.com/roelfdiedericks/chatsweep/internal/cdp"
)

// Session is a snapshot of the store.
type Session struct {
	Conn      cdp.Connection
	Surface   cdp.Surface
	Connected bool
}

// Ready reports whether the session can be driven.
func (s Session) Ready() bool {
	return s.Connected && s.Conn != nil && s.Surface != nil
}

// Store owns the connection and surface handles. It does no I/O.
type Store struct {
	mu         sync.RWMutex
	conn       cdp.Connection
	surface    cdp.Surface
	connected  bool
	controlURL string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current session, or false if none exists.
func (s *Store) Get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return Session{}, false
	}
	return Session{Conn: s.conn, Surface: s.surface, Connected: s.connected}, true
}

// Set records a live connection and its active surface.
// surface may be nil while a connection is being set up.
func (s *Store) Set(conn cdp.Connection, surface cdp.Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.surface = surface
	s.connected = conn != nil
}

// Clear drops the session and the cached control address and returns what
// was held. Safe to call on an empty store.
func (s *Store) Clear() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := Session{Conn: s.conn, Surface: s.surface, Connected: s.connected}
	had := s.conn != nil
	s.conn = nil
	s.surface = nil
	s.connected = false
	s.controlURL = ""
	return prev, had
}

// ControlURL returns the cached websocket control address, if any.
func (s *Store) ControlURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controlURL
}

// SetControlURL caches the websocket control address.
func (s *Store) SetControlURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlURL = u
}

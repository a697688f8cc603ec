package game

import (
	"crypto/rand"
	"sync"
	"time"
)

// Registry owns every live session, keyed by room id, with at most one
// session per room at any time. Sessions idle longer than the configured
// timeout are evicted from memory by a background reaper; their latest
// snapshot remains in storage.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

// NewRegistry creates a registry. A positive idleTimeout starts the
// reaper; zero disables eviction.
func NewRegistry(idleTimeout time.Duration) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go r.reaperLoop()
	}
	return r
}

// Get returns the live session for a room, if any.
func (r *Registry) Get(roomID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[roomID]
	return s, ok
}

// Create inserts a new open session for the room. It refuses to displace
// a live session, keeping the one-session-per-room invariant.
func (r *Registry) Create(roomID string, source CardSource, saver Saver) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[roomID]; exists {
		return nil, false
	}
	s := NewSession(roomID, source, saver)
	r.sessions[roomID] = s
	return s, true
}

// Replace swaps in a new session for the room, used when a finished game
// restarts with the same roster.
func (r *Registry) Replace(roomID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[roomID] = s
}

// Restore loads persisted snapshots into the registry, skipping finished
// games and rooms that already have a live session. Returns how many
// sessions were restored.
func (r *Registry) Restore(snaps []Snapshot, source CardSource, saver Saver) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	restored := 0
	for _, snap := range snaps {
		if snap.Finished {
			continue
		}
		if _, exists := r.sessions[snap.Room]; exists {
			continue
		}
		r.sessions[snap.Room] = Load(snap, source, saver)
		restored++
	}
	return restored
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the reaper.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// NewRoomID generates a crypto-random room id and ensures it does not
// collide with a live session.
func (r *Registry) NewRoomID() string {
	for {
		id := randomRoomID(8)

		r.mu.Lock()
		_, exists := r.sessions[id]
		r.mu.Unlock()

		if !exists {
			return id
		}
	}
}

func randomRoomID(n int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const max = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}

	return string(out)
}

// reaperLoop periodically drops sessions that have been idle longer than
// the timeout.
func (r *Registry) reaperLoop() {
	ticker := time.NewTicker(r.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evictIdle(time.Now().Add(-r.idleTimeout))
		}
	}
}

func (r *Registry) evictIdle(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
		}
	}
}

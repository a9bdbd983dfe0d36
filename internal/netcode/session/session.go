// Package session owns the player roster and per-peer connection
// bookkeeping: join tokens, per-peer rate limiting, and the
// deadline-based timeout that turns a silent peer into a player-leave
// command. It deliberately knows nothing about the simulation itself —
// the controller packages own the simulation and the command log;
// session only tracks who is connected and moves bytes.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"spacelock/internal/netcode/sim"
)

const (
	DefaultDatagramsPerSecond = 240
	DefaultDatagramBurst      = 32
	DefaultPeerDeadline       = 10 * time.Second
	DefaultJoinTimeout        = 3 * time.Second
)

// PlayerID is the stable per-connection identity used as sim.Command's
// PlayerID. It is assigned by the server at join time and is distinct
// from any entity id the player's ship is eventually given.
type PlayerID = int32

// Peer is everything the session layer tracks about one connected
// player, independent of transport.
type Peer struct {
	ID        PlayerID
	JoinToken uuid.UUID
	JoinedAt  time.Time
	lastSeen  time.Time
	limiter   *rate.Limiter
	mu        sync.Mutex
	EntityID  sim.EntityID // the player's ship entity, once spawned
}

func newPeer(id PlayerID, perSecond, burst int) *Peer {
	now := time.Now()
	return &Peer{
		ID:        id,
		JoinToken: uuid.New(),
		JoinedAt:  now,
		lastSeen:  now,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Touch records that a datagram was just received from this peer and
// reports whether it is within its rate budget. A peer that exceeds its
// budget still counts as alive (Touch still updates lastSeen) — the
// budget governs how much of its traffic the controller processes, not
// whether it is considered connected.
func (p *Peer) Touch() (withinBudget bool) {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
	return p.limiter.Allow()
}

// Expired reports whether the peer has been silent longer than deadline.
func (p *Peer) Expired(deadline time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastSeen) > deadline
}

// Roster is the thread-safe set of connected players. Aside from the
// accept loop's Join/Leave on connection setup and teardown, mutating
// methods are meant to be called only from the controller's tick;
// Touch on an already-registered Peer is the exception, safe from any
// goroutine since it is independent of simulation state.
type Roster struct {
	mu        sync.RWMutex
	peers     map[PlayerID]*Peer
	nextID    PlayerID
	maxSize   int
	perSecond int
	burst     int
}

// NewRoster creates an empty roster with the default per-peer datagram
// budget. maxSize <= 0 means unbounded.
func NewRoster(maxSize int) *Roster {
	return &Roster{
		peers:     make(map[PlayerID]*Peer),
		nextID:    1,
		maxSize:   maxSize,
		perSecond: DefaultDatagramsPerSecond,
		burst:     DefaultDatagramBurst,
	}
}

// SetRateLimit overrides the per-peer datagram budget applied to peers
// admitted after the call. Non-positive values leave the corresponding
// default in place.
func (r *Roster) SetRateLimit(perSecond, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if perSecond > 0 {
		r.perSecond = perSecond
	}
	if burst > 0 {
		r.burst = burst
	}
}

// ErrSessionFull is returned by Join when the roster is at capacity.
type ErrSessionFull struct{}

func (ErrSessionFull) Error() string { return "session: full" }

// Join admits a new player and returns its freshly assigned Peer.
func (r *Roster) Join() (*Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize > 0 && len(r.peers) >= r.maxSize {
		return nil, ErrSessionFull{}
	}
	id := r.nextID
	r.nextID++
	p := newPeer(id, r.perSecond, r.burst)
	r.peers[id] = p
	return p, nil
}

// Leave removes a player from the roster.
func (r *Roster) Leave(id PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Get returns the peer for id, if connected.
func (r *Roster) Get(id PlayerID) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Each visits every connected peer. fn must not call back into the
// roster.
func (r *Roster) Each(fn func(*Peer)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.peers {
		fn(p)
	}
}

// Expired returns the ids of every peer that has exceeded deadline,
// for the controller to turn into player-leave commands at the next
// frame.
func (r *Roster) Expired(deadline time.Duration) []PlayerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []PlayerID
	for id, p := range r.peers {
		if p.Expired(deadline) {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of connected peers.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Package cmdlog implements the per-frame command log: a mapping from
// frame to an ordered set of commands, ordered lexicographically by
// (player_id, kind, payload) rather than by arrival order, with
// duplicate suppression and authoritative-override semantics.
//
// The per-frame ordered set is backed by github.com/google/btree, which
// gives Insert/Ascend/Delete in O(log n) without hand-rolling a sorted
// slice.
package cmdlog

import (
	"sync"

	"github.com/google/btree"

	"spacelock/internal/netcode/sim"
)

const btreeDegree = 32

// InsertResult reports what Insert did.
type InsertResult int

const (
	// Accepted means the command was new for its frame.
	Accepted InsertResult = iota
	// Duplicate means an equal command (including authoritativeness) was
	// already present; nothing changed.
	Duplicate
	// SupersededExisting means a non-authoritative command equal to this
	// one (ignoring authoritativeness) was replaced by this authoritative
	// one.
	SupersededExisting
	// RejectedOverCap means the frame's command set is already at the
	// configured per-frame capacity and the command was not inserted.
	RejectedOverCap
)

func less(a, b sim.Command) bool { return a.Less(b) }

// Log is a thread-safe frame -> ordered-set-of-commands index.
type Log struct {
	mu          sync.Mutex
	frames      map[sim.Frame]*btree.BTreeG[sim.Command]
	maxPerFrame int
}

// New returns an empty, unbounded command log.
func New() *Log {
	return &Log{frames: make(map[sim.Frame]*btree.BTreeG[sim.Command])}
}

// LimitPerFrame caps how many distinct commands a single frame's set
// accepts; n <= 0 means unbounded. Inserts beyond the cap return
// RejectedOverCap. Dedup and authoritative upgrades of already-present
// commands are unaffected, so a capped log never loses a command it
// already holds.
func (l *Log) LimitPerFrame(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxPerFrame = n
}

func (l *Log) treeFor(f sim.Frame, create bool) *btree.BTreeG[sim.Command] {
	t, ok := l.frames[f]
	if !ok {
		if !create {
			return nil
		}
		t = btree.NewG(btreeDegree, less)
		l.frames[f] = t
	}
	return t
}

// Insert applies the dedup/supersede rule: if an equal
// non-authoritative command already exists and the new one is
// authoritative, it replaces the existing entry; a truly identical
// command (including the authoritative flag) is a no-op; otherwise the
// command is inserted fresh.
func (l *Log) Insert(cmd sim.Command) InsertResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.treeFor(cmd.Frame, true)
	existing, ok := t.Get(cmd)
	if !ok {
		if l.maxPerFrame > 0 && t.Len() >= l.maxPerFrame {
			return RejectedOverCap
		}
		t.ReplaceOrInsert(cmd)
		return Accepted
	}
	if existing.Authoritative == cmd.Authoritative {
		return Duplicate
	}
	if !existing.Authoritative && cmd.Authoritative {
		t.ReplaceOrInsert(cmd)
		return SupersededExisting
	}
	// existing is authoritative, incoming is not: the authoritative
	// version always wins, so the incoming non-authoritative copy is
	// simply a duplicate from the log's point of view.
	return Duplicate
}

// Remove deletes a specific command (used by a client purging a local
// optimistic command that the server rejected as too late).
func (l *Log) Remove(cmd sim.Command) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.treeFor(cmd.Frame, false)
	if t == nil {
		return false
	}
	_, ok := t.Delete(cmd)
	return ok
}

// CommandsAt returns the commands assigned to frame f, in deterministic
// (player_id, kind, payload) order regardless of insertion order.
func (l *Log) CommandsAt(f sim.Frame) []sim.Command {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.treeFor(f, false)
	if t == nil {
		return nil
	}
	out := make([]sim.Command, 0, t.Len())
	t.Ascend(func(c sim.Command) bool {
		out = append(out, c)
		return true
	})
	return out
}

// Prune discards commands strictly before upTo.
func (l *Log) Prune(upTo sim.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for f := range l.frames {
		if f < upTo {
			delete(l.frames, f)
		}
	}
}

// Len returns the number of distinct frames currently tracked, mostly
// useful for tests and debug endpoints.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

// FrameCounts reports how many commands each tracked frame holds, for
// the admin surface's command-log endpoint.
func (l *Log) FrameCounts() map[sim.Frame]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[sim.Frame]int, len(l.frames))
	for f, t := range l.frames {
		out[f] = t.Len()
	}
	return out
}

package arbor

import (
	"context"
	"sync"
)

// Sink receives every operation a Peer applies locally, for forwarding to
// other peers. The core only ever calls it synchronously from inside
// Apply, so Apply does not return until the sink has returned.
type Sink func(op Operation)

// Loopback is a direct, synchronous, in-process transport connecting a set
// of peers: every op one member publishes is delivered to every other
// member's OpStore as OriginRemote. It is the concrete stand-in for the
// "network transport (simulated by direct delivery)" collaborator the core
// spec treats as external.
//
// Loopback accepts a context.Context on its send path even though delivery
// here is synchronous and cannot itself be cancelled mid-flight, since any
// real transport implementing the same Sink contract is I/O-shaped and
// callers should not have to special-case this one.
type Loopback struct {
	mu      sync.Mutex
	members map[string]*OpStore
}

// NewLoopback creates an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{members: make(map[string]*OpStore)}
}

// Join registers store under peerID and returns a Sink that, when passed to
// store's owner for publishing local ops, fans each one out to every other
// currently-joined member.
func (l *Loopback) Join(ctx context.Context, peerID string, store *OpStore) Sink {
	l.mu.Lock()
	l.members[peerID] = store
	l.mu.Unlock()

	return func(op Operation) {
		l.mu.Lock()
		targets := make([]*OpStore, 0, len(l.members)-1)
		for id, s := range l.members {
			if id != peerID {
				targets = append(targets, s)
			}
		}
		l.mu.Unlock()

		for _, target := range targets {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_ = target.Apply(op, OriginRemote)
		}
	}
}

// Leave removes peerID from the loopback so it no longer receives
// subsequently published ops.
func (l *Loopback) Leave(peerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.members, peerID)
}

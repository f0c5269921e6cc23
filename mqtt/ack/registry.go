// Package ack tracks which files have been acknowledged by the receiver.
package ack

import (
	"sync"
	"time"
)

// Registry is a set of acknowledged file names shared between the MQTT
// delivery goroutine, which records acks, and the sending loop, which
// consumes them. All methods are safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	acked map[string]struct{}
	// late holds, per name, the expiry of each ack still owed to a
	// repetition that has already timed out.
	late   map[string][]time.Time
	notify chan struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		acked:  make(map[string]struct{}),
		late:   make(map[string][]time.Time),
		notify: make(chan struct{}, 1),
	}
}

// NoteAck records that |name| has been acknowledged. Noting the same name
// twice before it is consumed is the same as noting it once. An ack owed to
// a forfeited repetition is dropped instead, and NoteAck returns false.
func (r *Registry) NoteAck(name string) bool {
	r.mu.Lock()
	if r.dropLate(name, time.Now()) {
		r.mu.Unlock()
		return false
	}
	r.acked[name] = struct{}{}
	r.mu.Unlock()
	// Wake a waiter, if any. A pending wakeup already covers this ack.
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return true
}

// dropLate consumes the oldest unexpired debt of |name|. r.mu must be held.
func (r *Registry) dropLate(name string, now time.Time) bool {
	owed := r.late[name]
	for len(owed) > 0 && !now.Before(owed[0]) {
		owed = owed[1:]
	}
	if len(owed) == 0 {
		delete(r.late, name)
		return false
	}
	if len(owed) == 1 {
		delete(r.late, name)
	} else {
		r.late[name] = owed[1:]
	}
	return true
}

// IsAcked reports whether |name| has an unconsumed ack.
func (r *Registry) IsAcked(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.acked[name]
	return ok
}

// Consume removes the ack of |name| and reports whether there was one.
// The check and the removal are atomic, so concurrent consumers never
// both observe the same ack.
func (r *Registry) Consume(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.acked[name]
	delete(r.acked, name)
	return ok
}

// ConsumeOrForfeit is Consume for a repetition whose deadline has passed.
// When no ack is present, the repetition is forfeited: the next ack for
// |name| noted before |until| belongs to it and is dropped by NoteAck. The
// check and the forfeit are atomic, so a racing ack is counted exactly
// once.
func (r *Registry) ConsumeOrForfeit(name string, until time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acked[name]; ok {
		delete(r.acked, name)
		return true
	}
	r.late[name] = append(r.late[name], until)
	return false
}

// Discard drops any stale ack of |name|.
func (r *Registry) Discard(name string) {
	r.mu.Lock()
	delete(r.acked, name)
	r.mu.Unlock()
}

// Notify returns a channel that receives a value after NoteAck. It is a
// hint: a receiver must still call Consume to learn which name was acked.
func (r *Registry) Notify() <-chan struct{} {
	return r.notify
}

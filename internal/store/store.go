// Package store holds conversation state: ordered message histories keyed
// by an opaque conversation id, with idle-TTL eviction and per-conversation
// serialization so concurrent turns on one id never tear history.
package store

import (
	"errors"
	"sync"

	"github.com/dmaher/parley/internal/domain"
)

// ErrNotFound is returned for unknown conversation ids.
var ErrNotFound = errors.New("conversation not found")

// ConversationStore is the contract the orchestration loop drives.
//
// History returns an immutable snapshot: later appends never mutate a
// previously returned slice, so eviction or concurrent turns cannot affect
// an in-flight turn that already holds one. Delete is idempotent.
type ConversationStore interface {
	// Create allocates a new empty conversation and returns its id.
	Create() (string, error)

	// Append adds a message to a conversation. Fails with ErrNotFound for
	// unknown ids. Messages are immutable once appended.
	Append(id string, msg domain.Message) error

	// History returns a snapshot of the ordered message history.
	History(id string) ([]domain.Message, error)

	// Exists reports whether the conversation id is known.
	Exists(id string) bool

	// Delete removes a conversation. Succeeds even if already absent.
	Delete(id string) error

	// Acquire serializes turns on one conversation id. It blocks until the
	// id's turn lock is free and returns the release function. Turns on
	// distinct ids never contend.
	Acquire(id string) (release func())

	// Close stops background eviction.
	Close() error
}

// keyedMutex provides a lock per key with refcounted cleanup so the lock
// table doesn't grow with every conversation ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

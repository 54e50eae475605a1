package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/logging"
)

// MemoryStore is the default in-memory ConversationStore. The map mutex
// guards only the bookkeeping; turn-level serialization per id goes through
// Acquire, so turns on distinct conversations proceed fully in parallel.
type MemoryStore struct {
	mu      sync.RWMutex
	convs   map[string]*domain.Conversation
	turns   *keyedMutex
	idleTTL time.Duration
	log     *logging.Logger

	stop chan struct{}
	once sync.Once
}

// NewMemoryStore creates an in-memory store evicting conversations idle
// longer than idleTTL. A zero TTL disables eviction.
func NewMemoryStore(idleTTL time.Duration, log *logging.Logger) *MemoryStore {
	s := &MemoryStore{
		convs:   make(map[string]*domain.Conversation),
		turns:   newKeyedMutex(),
		idleTTL: idleTTL,
		log:     log.Sub("store.memory"),
		stop:    make(chan struct{}),
	}
	if idleTTL > 0 {
		go s.evictLoop()
	}
	return s
}

func (s *MemoryStore) Create() (string, error) {
	now := time.Now()
	conv := &domain.Conversation{
		ID:         uuid.New().String(),
		CreatedAt:  now,
		LastActive: now,
	}

	s.mu.Lock()
	s.convs[conv.ID] = conv
	s.mu.Unlock()

	s.log.Debug().Str("conversationId", conv.ID).Msg("conversation created")
	return conv.ID, nil
}

func (s *MemoryStore) Append(id string, msg domain.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastActive = time.Now()
	return nil
}

func (s *MemoryStore) History(id string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Messages are immutable once appended, so a top-level copy is a
	// stable snapshot even while other turns keep appending.
	snapshot := make([]domain.Message, len(conv.Messages))
	copy(snapshot, conv.Messages)
	return snapshot, nil
}

func (s *MemoryStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.convs[id]
	return ok
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	delete(s.convs, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Acquire(id string) func() {
	return s.turns.Lock(id)
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if evicted := s.sweepIdle(time.Now()); evicted > 0 {
				s.log.Info().Int("evicted", evicted).Msg("evicted idle conversations")
			}
		case <-s.stop:
			return
		}
	}
}

// sweepIdle drops conversations whose last activity predates now - idleTTL.
func (s *MemoryStore) sweepIdle(now time.Time) int {
	cutoff := now.Add(-s.idleTTL)
	var evicted int
	s.mu.Lock()
	for id, conv := range s.convs {
		if conv.LastActive.Before(cutoff) {
			delete(s.convs, id)
			evicted++
		}
	}
	s.mu.Unlock()
	return evicted
}

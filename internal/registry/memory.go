package registry

import (
	"context"
	"sync"

	"github.com/park285/groupchess-bot/internal/domain"
)

// MemoryStore keeps slots in process memory with one mutex per conversation.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[domain.ConversationID]domain.Slot
	locks map[domain.ConversationID]*keyLock
}

// keyLock is dropped from the table once no goroutine holds or waits on it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[domain.ConversationID]domain.Slot),
		locks: make(map[domain.ConversationID]*keyLock),
	}
}

func (s *MemoryStore) Load(_ context.Context, conv domain.ConversationID) (domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSlot(s.slots[conv]), nil
}

func (s *MemoryStore) Update(ctx context.Context, conv domain.ConversationID, fn UpdateFunc) (domain.Slot, error) {
	l := s.acquire(conv)
	defer s.release(conv, l)

	if err := ctx.Err(); err != nil {
		return domain.Slot{}, err
	}
	s.mu.Lock()
	cur := cloneSlot(s.slots[conv])
	s.mu.Unlock()

	next, err := fn(cur)
	if err != nil {
		return cur, err
	}

	s.mu.Lock()
	if next.Empty() {
		delete(s.slots, conv)
	} else {
		s.slots[conv] = cloneSlot(next)
	}
	s.mu.Unlock()
	return next, nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	s.slots = make(map[domain.ConversationID]domain.Slot)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Len reports how many conversations hold a slot.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

func (s *MemoryStore) acquire(conv domain.ConversationID) *keyLock {
	s.mu.Lock()
	l, ok := s.locks[conv]
	if !ok {
		l = &keyLock{}
		s.locks[conv] = l
	}
	l.refs++
	s.mu.Unlock()
	l.mu.Lock()
	return l
}

func (s *MemoryStore) release(conv domain.ConversationID, l *keyLock) {
	l.mu.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, conv)
	}
	s.mu.Unlock()
}

package setlist

import (
	"context"
	"sync"
)

// Sequencer admits at most one order-mutating operation per room at a time.
// Operations for the same room run strictly in submission order; rooms
// never wait on each other. A failing operation returns its error to its
// own caller and leaves the chain intact for whatever is queued behind it.
//
// The only state is one tail channel per room with a live chain, guarded by
// a plain mutex. A single lock across all rooms would defeat the point;
// the map entry is dropped as soon as a room's chain drains.
type Sequencer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func NewSequencer() *Sequencer {
	return &Sequencer{tails: make(map[string]chan struct{})}
}

// Do runs op once every previously submitted operation for roomID has
// finished. If ctx is cancelled while queued, op never runs and the
// caller gets ctx.Err(); the slot is still released in order so the chain
// is not poisoned.
func (s *Sequencer) Do(ctx context.Context, roomID string, op func(context.Context) error) error {
	done := make(chan struct{})

	s.mu.Lock()
	prev := s.tails[roomID]
	s.tails[roomID] = done
	s.mu.Unlock()

	release := func() {
		close(done)
		s.mu.Lock()
		if s.tails[roomID] == done {
			delete(s.tails, roomID)
		}
		s.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep ordering for the operations queued behind us: the slot
			// must not open until the predecessor is done.
			go func() {
				<-prev
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return op(ctx)
}

// Pending reports whether roomID currently has a live chain. Test hook.
func (s *Sequencer) Pending(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tails[roomID]
	return ok
}

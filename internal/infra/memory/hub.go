package memory

import (
	"context"
	"sync"

	"proquiz-service/internal/domain"
)

// Hub is an in-process app.Notifier. Slow subscribers lose stale events
// rather than block publishers.
type Hub struct {
	mu   sync.Mutex
	subs map[int64]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan domain.Event]struct{})}
}

func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.QuizID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, quizID int64) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, 8)

	h.mu.Lock()
	set, ok := h.subs[quizID]
	if !ok {
		set = make(map[chan domain.Event]struct{})
		h.subs[quizID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		set := h.subs[quizID]
		if _, ok := set[ch]; !ok {
			return
		}
		delete(set, ch)
		close(ch)
		if len(set) == 0 {
			delete(h.subs, quizID)
		}
	}
	return ch, cancel, nil
}

// Subscribers reports how many live subscriptions a quiz has.
func (h *Hub) Subscribers(quizID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[quizID])
}

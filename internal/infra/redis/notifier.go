package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"proquiz-service/internal/domain"
	"proquiz-service/internal/infra/memory"
)

// Notifier publishes quiz events on a Redis channel so subscribers on every
// instance see them. Each instance holds one Redis subscription per quiz
// while it has local subscribers and fans messages out through a local hub.
type Notifier struct {
	client *redis.Client
	hub    *memory.Hub
	log    zerolog.Logger

	mu     sync.Mutex
	relays map[int64]*relay
}

type relay struct {
	refs   int
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewNotifier(client *redis.Client, log zerolog.Logger) *Notifier {
	return &Notifier{
		client: client,
		hub:    memory.NewHub(),
		log:    log.With().Str("component", "notifier").Logger(),
		relays: make(map[int64]*relay),
	}
}

func (n *Notifier) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, eventsChannel(ev.QuizID), payload).Err()
}

func (n *Notifier) Subscribe(ctx context.Context, quizID int64) (<-chan domain.Event, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.relays[quizID]
	if !ok {
		pubsub := n.client.Subscribe(ctx, eventsChannel(quizID))
		// wait for the confirmation so no event published after we return is missed
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return nil, nil, err
		}
		r = &relay{pubsub: pubsub, done: make(chan struct{})}
		n.relays[quizID] = r
		go n.pump(quizID, r)
	}
	r.refs++

	ch, cancelLocal, _ := n.hub.Subscribe(ctx, quizID)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelLocal()
			n.release(quizID, r)
		})
	}
	return ch, cancel, nil
}

func (n *Notifier) release(quizID int64, r *relay) {
	n.mu.Lock()
	r.refs--
	last := r.refs == 0
	if last {
		delete(n.relays, quizID)
	}
	n.mu.Unlock()

	if last {
		_ = r.pubsub.Close()
		<-r.done
	}
}

func (n *Notifier) pump(quizID int64, r *relay) {
	defer close(r.done)
	for msg := range r.pubsub.Channel() {
		var ev domain.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			n.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("decode event")
			continue
		}
		_ = n.hub.Publish(context.Background(), ev)
	}
}

// Relays reports how many quizzes this instance is subscribed to.
func (n *Notifier) Relays() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.relays)
}

func eventsChannel(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":events"
}

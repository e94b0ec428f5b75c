package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"proquiz-service/internal/domain"
)

func TestNotifierDeliversAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	listener := NewNotifier(newClient(mr), zerolog.Nop())
	publisher := NewNotifier(newClient(mr), zerolog.Nop())

	ch, cancel, err := listener.Subscribe(context.Background(), 3)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	ev := domain.Event{Type: domain.EventStatus, QuizID: 3, Status: domain.StatusStarted}
	if err := publisher.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.Type != domain.EventStatus || got.Status != domain.StatusStarted || got.QuizID != 3 {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestNotifierSharesOneRelayPerQuiz(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	n := NewNotifier(newClient(mr), zerolog.Nop())
	a, cancelA, err := n.Subscribe(context.Background(), 5)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b, cancelB, err := n.Subscribe(context.Background(), 5)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if n.Relays() != 1 {
		t.Fatalf("expected one relay, got %d", n.Relays())
	}

	standings := &domain.Standings{QuizID: 5, Status: domain.StatusStarted}
	if err := n.Publish(context.Background(), domain.Event{Type: domain.EventLeaderboard, QuizID: 5, Standings: standings}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, ch := range []<-chan domain.Event{a, b} {
		select {
		case got := <-ch:
			if got.Standings == nil || got.Standings.QuizID != 5 {
				t.Fatalf("unexpected event %+v", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event")
		}
	}

	cancelA()
	if n.Relays() != 1 {
		t.Fatalf("relay must survive while subscribers remain")
	}
	cancelB()
	cancelB()
	if n.Relays() != 0 {
		t.Fatalf("expected relay released, got %d", n.Relays())
	}
	if _, ok := <-b; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"proquiz-service/internal/domain"
)

func TestQuestionCacheStoresInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{questions: map[int64][]domain.Question{7: sampleQuestions()}}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute, zerolog.Nop())

	qs, err := cache.Questions(context.Background(), 7)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != 2 || qs[1].CorrectAnswer != "Paris" {
		t.Fatalf("unexpected questions %+v", qs)
	}
	if !mr.Exists("quiz:7:questions") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:7:questions"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	// Second call should hit the cache.
	qs, _ = cache.Questions(context.Background(), 7)
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if qs[0].Options[1] != "4" {
		t.Fatalf("options lost in cache round trip: %+v", qs[0])
	}
}

func TestQuestionCacheSharedAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{questions: map[int64][]domain.Question{7: sampleQuestions()}}
	first := NewQuestionCache(newClient(mr), loader, time.Minute, zerolog.Nop())
	second := NewQuestionCache(newClient(mr), loader, time.Minute, zerolog.Nop())

	if _, err := first.Questions(context.Background(), 7); err != nil {
		t.Fatalf("questions: %v", err)
	}
	if _, err := second.Questions(context.Background(), 7); err != nil {
		t.Fatalf("questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected one load across instances, got %d", loader.calls)
	}

	if err := second.Forget(context.Background(), 7); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if mr.Exists("quiz:7:questions") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, err := first.Questions(context.Background(), 7); err != nil {
		t.Fatalf("questions: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after forget, got %d", loader.calls)
	}
}

func TestQuestionCacheDoesNotCacheErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{questions: map[int64][]domain.Question{}}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute, zerolog.Nop())

	_, err = cache.Questions(context.Background(), 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists("quiz:99:questions") {
		t.Fatalf("missing quiz must not be cached")
	}
}

type countingLoader struct {
	questions map[int64][]domain.Question
	calls     int
}

func (l *countingLoader) LoadQuestions(_ context.Context, quizID int64) ([]domain.Question, error) {
	l.calls++
	qs, ok := l.questions[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	return qs, nil
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, QuizID: 7, Position: 0, Text: "What is 2 + 2?", Kind: domain.KindChoice, Options: []string{"3", "4"}, CorrectAnswer: "4"},
		{ID: 2, QuizID: 7, Position: 1, Text: "Capital of France?", Kind: domain.KindFreeText, CorrectAnswer: "Paris"},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"proquiz-service/internal/domain"
	"proquiz-service/internal/infra/memory"
)

// QuestionCache keeps question sets in Redis so every instance shares one
// copy, and falls back to the loader on a miss.
// Questions are stored as: SET quiz:{quizID}:questions <json array>
type QuestionCache struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	log    zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration, log zerolog.Logger) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log.With().Str("component", "question_cache").Logger(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	if qs, ok := c.lookup(ctx, quizID); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		// Re-check in case another instance filled it.
		if qs, ok := c.lookup(ctx, quizID); ok {
			return qs, nil
		}

		qs, err := c.loader.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(qs)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, questionsKey(quizID), payload, c.ttlWithJitter()).Err(); err != nil {
			c.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("cache questions")
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Forget drops the cached set so the next read reloads it.
func (c *QuestionCache) Forget(ctx context.Context, quizID int64) error {
	return c.client.Del(ctx, questionsKey(quizID)).Err()
}

func (c *QuestionCache) lookup(ctx context.Context, quizID int64) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, questionsKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("read cached questions")
		}
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		c.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("decode cached questions")
		return nil, false
	}
	return qs, true
}

func questionsKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10) + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

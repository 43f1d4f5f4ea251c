package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// ResultsStore pushes finished score entries into the leaderboard keys read
// by the historical ranking service:
//
//	ZADD quiz:{roomID}:leaderboard {rank score} {userID}
//	HSET quiz:{roomID}:result:{userID} score/correct/total/time/finished_at
//
// The sorted-set score bakes in the tie-break (higher score first, faster
// finish breaks ties) so ZREVRANGE yields the final ranking directly.
type ResultsStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultsStore(client *redis.Client, ttl time.Duration) *ResultsStore {
	return &ResultsStore{client: client, ttl: ttl}
}

func (s *ResultsStore) SaveResults(ctx context.Context, roomID string, entries []domain.ScoreEntry) error {
	boardKey := s.boardKey(roomID)

	pipe := s.client.Pipeline()
	for _, entry := range entries {
		pipe.ZAdd(ctx, boardKey, redis.Z{
			Score:  rankScore(entry),
			Member: entry.UserID,
		})
		detailKey := s.detailKey(roomID, entry.UserID)
		pipe.HSet(ctx, detailKey, map[string]interface{}{
			"display_name": entry.DisplayName,
			"score":        entry.Score,
			"correct":      entry.CorrectCount,
			"total":        entry.TotalQuestions,
			"time_taken":   entry.TimeTakenSeconds,
			"finished_at":  entry.FinishedAt.Unix(),
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, detailKey, s.ttl)
		}
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, boardKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}

// rankScore folds the time tie-break into the sorted-set score. Scores are
// 0..100 and time dominates nothing beyond equal scores as long as rooms
// stay under ~11 days long.
func rankScore(entry domain.ScoreEntry) float64 {
	return float64(entry.Score)*1e6 - float64(entry.TimeTakenSeconds)
}

func (s *ResultsStore) boardKey(roomID string) string {
	return "quiz:" + roomID + ":leaderboard"
}

func (s *ResultsStore) detailKey(roomID, userID string) string {
	return "quiz:" + roomID + ":result:" + userID
}

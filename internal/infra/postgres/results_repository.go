package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// ResultsRepository persists finished score entries for historical ranking.
type ResultsRepository struct {
	pool *pgxpool.Pool
}

func NewResultsRepository(pool *pgxpool.Pool) *ResultsRepository {
	return &ResultsRepository{pool: pool}
}

func (r *ResultsRepository) SaveResults(ctx context.Context, roomID string, entries []domain.ScoreEntry) error {
	for _, entry := range entries {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO quiz_results (quiz_id, user_id, display_name, score, correct_count, total_questions, time_taken, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (quiz_id, user_id, finished_at) DO NOTHING`,
			roomID, entry.UserID, entry.DisplayName, entry.Score, entry.CorrectCount,
			entry.TotalQuestions, entry.TimeTakenSeconds, entry.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("insert result for %s: %w", entry.UserID, err)
		}
	}
	return nil
}

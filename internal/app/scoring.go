package app

import (
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// ComputeScore derives a participant's final outcome from the question list
// and their recorded answers. Pure and deterministic: recomputing from the
// same inputs always yields the same entry. Missing answers count as
// incorrect, never as an error.
func ComputeScore(participant domain.Participant, questions []domain.Question, answers map[string]domain.Answer, startedAt, finishedAt time.Time) domain.ScoreEntry {
	correct := 0
	for _, q := range questions {
		answer, ok := answers[q.ID]
		if ok && answer.Option == q.Correct {
			correct++
		}
	}

	score := 0
	if len(questions) > 0 {
		score = 100 * correct / len(questions)
	}

	return domain.ScoreEntry{
		UserID:           participant.UserID,
		DisplayName:      participant.DisplayName,
		Score:            score,
		CorrectCount:     correct,
		TotalQuestions:   len(questions),
		TimeTakenSeconds: int64(finishedAt.Sub(startedAt).Seconds()),
		FinishedAt:       finishedAt,
	}
}

// RankEntries orders score entries highest score first, faster finishers
// breaking ties, then user ID for stability.
func RankEntries(entries []domain.ScoreEntry) []domain.ScoreEntry {
	ranked := make([]domain.ScoreEntry, len(entries))
	copy(ranked, entries)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].TimeTakenSeconds != ranked[j].TimeTakenSeconds {
			return ranked[i].TimeTakenSeconds < ranked[j].TimeTakenSeconds
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	return ranked
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"live-quiz-service/internal/domain"
)

// archivedResultRow is one participant's result in a finished session.
type archivedResultRow struct {
	bun.BaseModel `bun:"table:archived_results,alias:ar"`

	ID              int64           `bun:"id,pk,autoincrement"`
	QuizID          string          `bun:"quiz_id,notnull"`
	SessionCode     string          `bun:"session_code,notnull"`
	ParticipantName string          `bun:"participant_name,notnull"`
	Score           int             `bun:"score,notnull"`
	CompletedAt     time.Time       `bun:"completed_at,notnull"`
	Answers         []domain.Answer `bun:"answers,type:jsonb"`
}

// ArchiveStore mirrors archived session summaries into Postgres for reporting.
// It implements app.ArchiveRepository.
type ArchiveStore struct {
	db *bun.DB
}

func NewArchiveStore(db *bun.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

func (s *ArchiveStore) SaveSummary(ctx context.Context, summary domain.ArchivedSummary) error {
	if len(summary.Results) == 0 {
		return nil
	}
	rows := make([]archivedResultRow, 0, len(summary.Results))
	for _, r := range summary.Results {
		rows = append(rows, archivedResultRow{
			QuizID:          summary.QuizID,
			SessionCode:     summary.SessionCode,
			ParticipantName: r.ParticipantName,
			Score:           r.Score,
			CompletedAt:     r.CompletedAt,
			Answers:         r.Answers,
		})
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("%w: save archive: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// ListResults returns the mirrored results of a quiz, most recent first.
func (s *ArchiveStore) ListResults(ctx context.Context, quizID string) ([]domain.ArchivedResult, error) {
	var rows []archivedResultRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", quizID).
		OrderExpr("completed_at DESC, score DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list archive: %v", domain.ErrStoreUnavailable, err)
	}
	out := make([]domain.ArchivedResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ArchivedResult{
			ParticipantName: row.ParticipantName,
			Score:           row.Score,
			CompletedAt:     row.CompletedAt,
			Answers:         row.Answers,
		})
	}
	return out, nil
}

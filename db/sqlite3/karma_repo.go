package sqlite3

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/marginalia/karma"
)

const tableKarmaScores = "karma_scores"

type KarmaRepository struct {
	db *sql.DB
}

var _ karma.Repository = (*KarmaRepository)(nil)

func NewKarmaRepository(db *sql.DB) *KarmaRepository {
	return &KarmaRepository{db: db}
}

const (
	karmaFieldUserID    = "user_id"
	karmaFieldCommentID = "comment_id"
	karmaFieldScore     = "score"
	karmaFieldScoredAt  = "scored_at"
)

// Upsert writes the score in a single statement. The uniqueness of
// (user_id, comment_id) is a schema constraint, so concurrent votes by
// the same voter linearize at the store and the last committed one
// wins.
func (repo *KarmaRepository) Upsert(ctx context.Context, score *karma.Score) error {
	query := fmt.Sprintf(`
INSERT INTO %s (user_id, comment_id, score, scored_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, comment_id)
DO UPDATE SET
    score = excluded.score,
    scored_at = excluded.scored_at
`, tableKarmaScores)

	_, err := repo.db.ExecContext(
		ctx,
		query,
		score.UserID,
		score.CommentID,
		score.Score,
		score.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert karma score: %w", err)
	}

	return nil
}

func (repo *KarmaRepository) CountByComment(ctx context.Context, commentID string) (int, int, error) {
	q := sq.Select(karmaFieldScore, "COUNT(*)").
		From(tableKarmaScores).
		Where(sq.Eq{karmaFieldCommentID: commentID}).
		GroupBy(karmaFieldScore).
		RunWith(repo.db)

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query karma counts: %w", err)
	}

	defer closeRows(ctx, rows)

	good, bad := 0, 0

	for rows.Next() {
		var score, count int

		err := rows.Scan(&score, &count)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to scan karma count row: %w", err)
		}

		switch score {
		case 1:
			good = count
		case -1:
			bad = count
		}
	}

	err = rows.Err()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to iterate karma count rows: %w", err)
	}

	return good, bad, nil
}

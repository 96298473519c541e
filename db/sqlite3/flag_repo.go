package sqlite3

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nasermirzaei89/marginalia/flags"
)

const tableUserFlags = "user_flags"

type FlagRepository struct {
	db *sql.DB
}

var _ flags.Repository = (*FlagRepository)(nil)

func NewFlagRepository(db *sql.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// InsertIfAbsent inserts the flag unless the (user_id, comment_id) row
// already exists. The schema constraint decides, so of any number of
// concurrent first-time flags exactly one reports inserted.
func (repo *FlagRepository) InsertIfAbsent(ctx context.Context, flag *flags.UserFlag) (bool, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (user_id, comment_id, flagged_at)
VALUES (?, ?, ?)
ON CONFLICT(user_id, comment_id)
DO NOTHING
`, tableUserFlags)

	res, err := repo.db.ExecContext(ctx, query, flag.UserID, flag.CommentID, flag.FlaggedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert flag: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected > 0, nil
}

// CountByComment returns the number of flags on the comment.
func (repo *FlagRepository) CountByComment(ctx context.Context, commentID string) (int, error) {
	var count int

	err := repo.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE comment_id = ?", tableUserFlags),
		commentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count flags: %w", err)
	}

	return count, nil
}

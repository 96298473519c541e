package sqlite3

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/marginalia/moderation"
)

const tableModeratorDeletions = "moderator_deletions"

// DeletionRepository reads the moderation audit trail. Rows are written
// only by CommentRepository.DeleteWithAudit, inside the removal
// transaction.
type DeletionRepository struct {
	db *sql.DB
}

var _ moderation.DeletionRepository = (*DeletionRepository)(nil)

func NewDeletionRepository(db *sql.DB) *DeletionRepository {
	return &DeletionRepository{db: db}
}

const (
	deletionFieldID          = "id"
	deletionFieldModeratorID = "moderator_id"
	deletionFieldCommentID   = "comment_id"
	deletionFieldDeletedAt   = "deleted_at"
)

func deletionColumns() []string {
	return []string{
		deletionFieldID,
		deletionFieldModeratorID,
		deletionFieldCommentID,
		deletionFieldDeletedAt,
	}
}

func scanDeletion(row sq.RowScanner) (*moderation.Deletion, error) {
	var deletion moderation.Deletion

	err := row.Scan(
		&deletion.ID,
		&deletion.ModeratorID,
		&deletion.CommentID,
		&deletion.DeletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &deletion, nil
}

func (repo *DeletionRepository) List(ctx context.Context, params moderation.ListDeletionsParams) ([]*moderation.Deletion, error) {
	q := sq.Select(deletionColumns()...).
		From(tableModeratorDeletions).
		OrderBy(deletionFieldDeletedAt+" DESC", deletionFieldID+" ASC")

	if params.ModeratorID != "" {
		q = q.Where(sq.Eq{deletionFieldModeratorID: params.ModeratorID})
	}

	if params.CommentID != "" {
		q = q.Where(sq.Eq{deletionFieldCommentID: params.CommentID})
	}

	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	} else if params.Offset > 0 {
		q = q.Limit(math.MaxInt64)
	}

	if params.Offset > 0 {
		q = q.Offset(params.Offset)
	}

	q = q.RunWith(repo.db)

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	defer closeRows(ctx, rows)

	list := make([]*moderation.Deletion, 0)

	for rows.Next() {
		deletion, err := scanDeletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deletion: %w", err)
		}

		list = append(list, deletion)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return list, nil
}

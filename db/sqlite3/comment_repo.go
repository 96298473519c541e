package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/nasermirzaei89/marginalia/comments"
)

const tableComments = "comments"

type CommentRepository struct {
	db *sql.DB
}

var _ comments.CommentRepository = (*CommentRepository)(nil)

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const (
	commentFieldID          = "id"
	commentFieldUserID      = "user_id"
	commentFieldTargetType  = "target_type"
	commentFieldTargetID    = "target_id"
	commentFieldSite        = "site"
	commentFieldHeadline    = "headline"
	commentFieldBody        = "body"
	commentFieldValidRating = "valid_rating"
	commentFieldSubmittedAt = "submitted_at"
	commentFieldIsPublic    = "is_public"
	commentFieldIsRemoved   = "is_removed"
	commentFieldIPAddress   = "ip_address"
)

func commentRatingColumns() []string {
	cols := make([]string, 0, comments.NumRatingSlots)
	for i := 1; i <= comments.NumRatingSlots; i++ {
		cols = append(cols, fmt.Sprintf("rating%d", i))
	}

	return cols
}

func commentColumns() []string {
	cols := []string{
		commentFieldID,
		commentFieldUserID,
		commentFieldTargetType,
		commentFieldTargetID,
		commentFieldSite,
		commentFieldHeadline,
		commentFieldBody,
	}
	cols = append(cols, commentRatingColumns()...)

	return append(cols,
		commentFieldValidRating,
		commentFieldSubmittedAt,
		commentFieldIsPublic,
		commentFieldIsRemoved,
		commentFieldIPAddress,
	)
}

// commentOrderColumns whitelists the fields listings may be ordered by.
var commentOrderColumns = map[string]string{
	"":             commentFieldSubmittedAt,
	"submitted_at": commentFieldSubmittedAt,
	"headline":     commentFieldHeadline,
	"site":         commentFieldSite,
	"user_id":      commentFieldUserID,
}

func scanComment(row sq.RowScanner) (*comments.Comment, error) {
	var comment comments.Comment

	dest := []any{
		&comment.ID,
		&comment.UserID,
		&comment.Target.Type,
		&comment.Target.ID,
		&comment.Site,
		&comment.Headline,
		&comment.Body,
	}
	for i := range comment.Ratings {
		dest = append(dest, &comment.Ratings[i])
	}

	dest = append(dest,
		&comment.ValidRating,
		&comment.SubmittedAt,
		&comment.IsPublic,
		&comment.IsRemoved,
		&comment.IPAddress,
	)

	err := row.Scan(dest...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &comment, nil
}

func commentValues(comment *comments.Comment) []any {
	values := []any{
		comment.ID,
		comment.UserID,
		comment.Target.Type,
		comment.Target.ID,
		comment.Site,
		comment.Headline,
		comment.Body,
	}
	for _, r := range comment.Ratings {
		values = append(values, r)
	}

	return append(values,
		comment.ValidRating,
		comment.SubmittedAt,
		comment.IsPublic,
		comment.IsRemoved,
		comment.IPAddress,
	)
}

// Insert persists the comment. A comment carrying a valid rating first
// clears the flag on every prior comment for the same target, inside
// the same transaction, so a concurrent tally never observes zero or
// two valid-rated comments.
func (repo *CommentRepository) Insert(ctx context.Context, comment *comments.Comment) error {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer rollback(ctx, tx)

	if comment.ValidRating {
		_, err = sq.Update(tableComments).
			Set(commentFieldValidRating, false).
			Where(sq.Eq{
				commentFieldTargetType: comment.Target.Type,
				commentFieldTargetID:   comment.Target.ID,
			}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear prior valid ratings: %w", err)
		}
	}

	_, err = sq.Insert(tableComments).
		Columns(commentColumns()...).
		Values(commentValues(comment)...).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (repo *CommentRepository) Find(ctx context.Context, commentID string) (*comments.Comment, error) {
	q := sq.Select(commentColumns()...).
		From(tableComments).
		Where(sq.Eq{commentFieldID: commentID})

	q = q.RunWith(repo.db)

	comment, err := scanComment(q.QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, comments.CommentNotFoundError{ID: commentID}
		}

		return nil, fmt.Errorf("failed to scan comment: %w", err)
	}

	return comment, nil
}

func (repo *CommentRepository) List(ctx context.Context, params comments.ListParams) ([]*comments.Comment, error) {
	orderColumn, ok := commentOrderColumns[params.OrderBy]
	if !ok {
		return nil, comments.ValidationError{Field: "order_by", Reason: fmt.Sprintf("unknown field %q", params.OrderBy)}
	}

	direction := "DESC"
	if params.Asc {
		direction = "ASC"
	}

	q := sq.Select(commentColumns()...).
		From(tableComments).
		OrderBy(orderColumn+" "+direction, commentFieldID+" ASC")

	if params.Target != nil {
		q = q.Where(sq.Eq{
			commentFieldTargetType: params.Target.Type,
			commentFieldTargetID:   params.Target.ID,
		})
	}

	if params.Site != "" {
		q = q.Where(sq.Eq{commentFieldSite: params.Site})
	}

	if params.OnlyPublic {
		q = q.Where(sq.Eq{commentFieldIsPublic: true, commentFieldIsRemoved: false})
	}

	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	} else if params.Offset > 0 {
		// sqlite requires a LIMIT clause before OFFSET.
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

	list := make([]*comments.Comment, 0)

	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		list = append(list, comment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return list, nil
}

func (repo *CommentRepository) SetVisibility(ctx context.Context, commentID string, visible bool) error {
	return repo.setFlag(ctx, commentID, commentFieldIsPublic, visible)
}

func (repo *CommentRepository) SetRemoved(ctx context.Context, commentID string, removed bool) error {
	return repo.setFlag(ctx, commentID, commentFieldIsRemoved, removed)
}

func (repo *CommentRepository) setFlag(ctx context.Context, commentID, column string, value bool) error {
	res, err := sq.Update(tableComments).
		Set(column, value).
		Where(sq.Eq{commentFieldID: commentID}).
		RunWith(repo.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec update: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return comments.CommentNotFoundError{ID: commentID}
	}

	return nil
}

// DeleteWithAudit deletes the comment and appends the moderator
// deletion record as one transaction. Karma scores and flags cascade
// away with the comment; the audit row stays.
func (repo *CommentRepository) DeleteWithAudit(ctx context.Context, commentID, moderatorID string, deletedAt time.Time) error {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer rollback(ctx, tx)

	res, err := sq.Delete(tableComments).
		Where(sq.Eq{commentFieldID: commentID}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec delete: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return comments.CommentNotFoundError{ID: commentID}
	}

	_, err = sq.Insert(tableModeratorDeletions).
		Columns(deletionColumns()...).
		Values(uuid.NewString(), moderatorID, commentID, deletedAt).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to record moderator deletion: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (repo *CommentRepository) FindValidRated(ctx context.Context, target comments.ContentReference) (*comments.Comment, error) {
	q := sq.Select(commentColumns()...).
		From(tableComments).
		Where(sq.Eq{
			commentFieldTargetType:  target.Type,
			commentFieldTargetID:    target.ID,
			commentFieldValidRating: true,
			commentFieldIsPublic:    true,
			commentFieldIsRemoved:   false,
		}).
		OrderBy(commentFieldSubmittedAt + " DESC").
		Limit(1)

	q = q.RunWith(repo.db)

	comment, err := scanComment(q.QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, comments.CommentNotFoundError{ID: target.String()}
		}

		return nil, fmt.Errorf("failed to scan comment: %w", err)
	}

	return comment, nil
}

func rollback(ctx context.Context, tx *sql.Tx) {
	err := tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.ErrorContext(ctx, "failed to rollback transaction", "error", err)
	}
}

func closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		slog.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/marginalia/comments"
)

const tableFreeComments = "free_comments"

type FreeCommentRepository struct {
	db *sql.DB
}

var _ comments.FreeCommentRepository = (*FreeCommentRepository)(nil)

func NewFreeCommentRepository(db *sql.DB) *FreeCommentRepository {
	return &FreeCommentRepository{db: db}
}

const (
	freeCommentFieldID          = "id"
	freeCommentFieldPersonName  = "person_name"
	freeCommentFieldTargetType  = "target_type"
	freeCommentFieldTargetID    = "target_id"
	freeCommentFieldSite        = "site"
	freeCommentFieldBody        = "body"
	freeCommentFieldSubmittedAt = "submitted_at"
	freeCommentFieldIsPublic    = "is_public"
	freeCommentFieldApproved    = "approved"
	freeCommentFieldIPAddress   = "ip_address"
)

func freeCommentColumns() []string {
	return []string{
		freeCommentFieldID,
		freeCommentFieldPersonName,
		freeCommentFieldTargetType,
		freeCommentFieldTargetID,
		freeCommentFieldSite,
		freeCommentFieldBody,
		freeCommentFieldSubmittedAt,
		freeCommentFieldIsPublic,
		freeCommentFieldApproved,
		freeCommentFieldIPAddress,
	}
}

var freeCommentOrderColumns = map[string]string{
	"":             freeCommentFieldSubmittedAt,
	"submitted_at": freeCommentFieldSubmittedAt,
	"person_name":  freeCommentFieldPersonName,
	"site":         freeCommentFieldSite,
}

func scanFreeComment(row sq.RowScanner) (*comments.FreeComment, error) {
	var comment comments.FreeComment

	err := row.Scan(
		&comment.ID,
		&comment.PersonName,
		&comment.Target.Type,
		&comment.Target.ID,
		&comment.Site,
		&comment.Body,
		&comment.SubmittedAt,
		&comment.IsPublic,
		&comment.Approved,
		&comment.IPAddress,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &comment, nil
}

func (repo *FreeCommentRepository) Insert(ctx context.Context, comment *comments.FreeComment) error {
	q := sq.Insert(tableFreeComments).
		Columns(freeCommentColumns()...).
		Values(
			comment.ID,
			comment.PersonName,
			comment.Target.Type,
			comment.Target.ID,
			comment.Site,
			comment.Body,
			comment.SubmittedAt,
			comment.IsPublic,
			comment.Approved,
			comment.IPAddress,
		)

	q = q.RunWith(repo.db)

	_, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	return nil
}

func (repo *FreeCommentRepository) Find(ctx context.Context, commentID string) (*comments.FreeComment, error) {
	q := sq.Select(freeCommentColumns()...).
		From(tableFreeComments).
		Where(sq.Eq{freeCommentFieldID: commentID})

	q = q.RunWith(repo.db)

	comment, err := scanFreeComment(q.QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, comments.FreeCommentNotFoundError{ID: commentID}
		}

		return nil, fmt.Errorf("failed to scan free comment: %w", err)
	}

	return comment, nil
}

func (repo *FreeCommentRepository) List(ctx context.Context, params comments.ListParams) ([]*comments.FreeComment, error) {
	orderColumn, ok := freeCommentOrderColumns[params.OrderBy]
	if !ok {
		return nil, comments.ValidationError{Field: "order_by", Reason: fmt.Sprintf("unknown field %q", params.OrderBy)}
	}

	direction := "DESC"
	if params.Asc {
		direction = "ASC"
	}

	q := sq.Select(freeCommentColumns()...).
		From(tableFreeComments).
		OrderBy(orderColumn+" "+direction, freeCommentFieldID+" ASC")

	if params.Target != nil {
		q = q.Where(sq.Eq{
			freeCommentFieldTargetType: params.Target.Type,
			freeCommentFieldTargetID:   params.Target.ID,
		})
	}

	if params.Site != "" {
		q = q.Where(sq.Eq{freeCommentFieldSite: params.Site})
	}

	if params.OnlyPublic {
		q = q.Where(sq.Eq{freeCommentFieldIsPublic: true})
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

	list := make([]*comments.FreeComment, 0)

	for rows.Next() {
		comment, err := scanFreeComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan free comment: %w", err)
		}

		list = append(list, comment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return list, nil
}

func (repo *FreeCommentRepository) SetVisibility(ctx context.Context, commentID string, visible bool) error {
	return repo.setFlag(ctx, commentID, freeCommentFieldIsPublic, visible)
}

func (repo *FreeCommentRepository) SetApproved(ctx context.Context, commentID string, approved bool) error {
	return repo.setFlag(ctx, commentID, freeCommentFieldApproved, approved)
}

func (repo *FreeCommentRepository) setFlag(ctx context.Context, commentID, column string, value bool) error {
	res, err := sq.Update(tableFreeComments).
		Set(column, value).
		Where(sq.Eq{freeCommentFieldID: commentID}).
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
		return comments.FreeCommentNotFoundError{ID: commentID}
	}

	return nil
}

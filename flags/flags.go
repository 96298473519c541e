// Package flags lets users flag abusive comments. Flagging is
// idempotent per (user, comment), never applies to one's own comment,
// and notifies moderators at most once per pair.
package flags

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nasermirzaei89/marginalia/comments"
)

type FlagResult int

const (
	// Created is returned to exactly one caller per (flagger, comment)
	// pair; it is the only result that triggers a notification.
	Created FlagResult = iota
	AlreadyFlagged
	SelfFlagSkipped
)

func (res FlagResult) String() string {
	switch res {
	case Created:
		return "created"
	case AlreadyFlagged:
		return "already_flagged"
	case SelfFlagSkipped:
		return "self_flag_skipped"
	default:
		return fmt.Sprintf("FlagResult(%d)", int(res))
	}
}

// UserFlag is one user's abuse flag on one comment. At most one row per
// (user, comment) exists, enforced at the storage layer.
type UserFlag struct {
	UserID    string
	CommentID string
	FlaggedAt time.Time
}

type Repository interface {
	// InsertIfAbsent inserts the flag unless a row for
	// (UserID, CommentID) already exists, and reports whether a row was
	// written. Concurrent first-time flags resolve at the store: exactly
	// one caller observes inserted.
	InsertIfAbsent(ctx context.Context, flag *UserFlag) (inserted bool, err error)
}

// CommentFinder is the slice of the comment store the registry needs.
type CommentFinder interface {
	Find(ctx context.Context, commentID string) (comment *comments.Comment, err error)
}

// Notifier is the outbound moderator notification channel. Delivery is
// best effort; failures never affect the flag itself.
type Notifier interface {
	NotifyModerators(ctx context.Context, subject, body string) (err error)
}

type Service struct {
	repo     Repository
	comments CommentFinder
	notifier Notifier
}

func NewService(repo Repository, commentFinder CommentFinder, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		comments: commentFinder,
		notifier: notifier,
	}
}

// Flag records the flagger's abuse flag on the comment. Flagging your
// own comment is a silent no-op, and repeated flags by the same pair
// resolve to AlreadyFlagged without another notification.
func (svc *Service) Flag(ctx context.Context, flaggerID, commentID string) (FlagResult, error) {
	comment, err := svc.comments.Find(ctx, commentID)
	if err != nil {
		return 0, fmt.Errorf("failed to find comment: %w", err)
	}

	if comment.UserID == flaggerID {
		return SelfFlagSkipped, nil
	}

	inserted, err := svc.repo.InsertIfAbsent(ctx, &UserFlag{
		UserID:    flaggerID,
		CommentID: commentID,
		FlaggedAt: time.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert flag: %w", err)
	}

	if !inserted {
		return AlreadyFlagged, nil
	}

	body := fmt.Sprintf("This comment was flagged by %s:\n\n%s", flaggerID, comment.AsText())

	err = svc.notifier.NotifyModerators(ctx, "Comment flagged", body)
	if err != nil {
		// The flag is already persisted; the notification channel is
		// non-critical.
		slog.ErrorContext(ctx, "failed to notify moderators about flagged comment",
			"comment_id", commentID, "error", err)
	}

	return Created, nil
}

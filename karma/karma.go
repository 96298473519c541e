// Package karma keeps the per-user reputation scores on comments and
// the aggregate tallies derived from them.
package karma

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultKarma is the display score for comments nobody has scored
	// yet.
	DefaultKarma = 5

	// NeededBeforeDisplayed is the minimum number of votes before a
	// karma total is shown at all.
	NeededBeforeDisplayed = 3
)

// Score is one user's vote on one comment. There is at most one row per
// (user, comment); a re-vote overwrites score and timestamp.
type Score struct {
	UserID    string
	CommentID string
	Score     int
	ScoredAt  time.Time
}

type Repository interface {
	// Upsert inserts the score or, when a row for (UserID, CommentID)
	// already exists, overwrites its score and timestamp. The operation
	// is a single atomic store write.
	Upsert(ctx context.Context, score *Score) (err error)
	CountByComment(ctx context.Context, commentID string) (good, bad int, err error)
}

type InvalidScoreError struct {
	Score int
}

func (err InvalidScoreError) Error() string {
	return fmt.Sprintf("invalid karma score %d: must be -1, 0, or 1", err.Score)
}

// PrettyScore maps an average karma score, ranging over [-1, 1], onto
// the 1..10 display scale. A nil average yields DefaultKarma.
// Out-of-range input is clamped; ties round half up, so an average of
// 0.0 displays as 6.
func PrettyScore(avg *float64) int {
	if avg == nil {
		return DefaultKarma
	}

	score := min(max(*avg, -1), 1)

	return int(math.Round(4.5*score + 5.5))
}

// Package comments implements generic comments attachable to any
// entity: registered-user comments with rating slots, anonymous free
// comments, and the moderation operations over both.
package comments

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Option codes carried in the hidden form fields.
const (
	OptionPhotosRequired  = "pr"
	OptionPhotosOptional  = "pa"
	OptionRatingsRequired = "rr"
	OptionRatingsOptional = "ra"
	OptionIsPublic        = "ip"
)

const (
	MaxHeadlineLength   = 255
	MaxBodyLength       = 3000
	MaxPersonNameLength = 50

	// NumRatingSlots is the number of independent rating slots a
	// comment carries.
	NumRatingSlots = 8
)

// ContentReference identifies the entity a comment is attached to. It
// has no lifecycle of its own and is always embedded.
type ContentReference struct {
	Type string
	ID   string
}

func (ref ContentReference) String() string {
	return ref.Type + ":" + ref.ID
}

func (ref ContentReference) IsZero() bool {
	return ref.Type == "" && ref.ID == ""
}

// ParseContentReference parses the canonical "type:id" form.
func ParseContentReference(s string) (ContentReference, error) {
	typ, id, found := strings.Cut(s, ":")
	if !found || typ == "" || id == "" {
		return ContentReference{}, ValidationError{Field: "target", Reason: fmt.Sprintf("malformed content reference %q", s)}
	}

	return ContentReference{Type: typ, ID: id}, nil
}

// Comment is a comment by a registered user. SubmittedAt is set once at
// acceptance and never changes; the only mutations afterwards are the
// visibility and removal toggles and the valid-rating transfer.
type Comment struct {
	ID          string
	UserID      string
	Target      ContentReference
	Site        string
	Headline    string
	Body        string
	Ratings     [NumRatingSlots]*int
	ValidRating bool
	SubmittedAt time.Time
	IsPublic    bool
	IsRemoved   bool
	IPAddress   string
}

// HasRatings reports whether any rating slot is set.
func (c *Comment) HasRatings() bool {
	for _, r := range c.Ratings {
		if r != nil {
			return true
		}
	}

	return false
}

// AsText renders the comment as plain text, as used in moderator
// notifications.
func (c *Comment) AsText() string {
	return fmt.Sprintf("Posted by %s at %s\n\n%s", c.UserID, c.SubmittedAt.Format(time.RFC1123), c.Body)
}

// FreeComment is a comment by a non-registered person. It has no rating
// slots and no karma or flag relations; staff approval gates it instead.
type FreeComment struct {
	ID          string
	PersonName  string
	Target      ContentReference
	Site        string
	Body        string
	SubmittedAt time.Time
	IsPublic    bool
	Approved    bool
	IPAddress   string
}

// ListParams filters and orders comment listings. The zero value lists
// everything ordered by submission time, newest first.
type ListParams struct {
	Target     *ContentReference
	Site       string
	OnlyPublic bool

	// OrderBy names a declared field; empty means submission time.
	// Unknown fields fail with ValidationError.
	OrderBy string
	Asc     bool

	Offset uint64
	Limit  uint64
}

// RatingAggregate is the result of tallying a target: the rating slots
// of the single currently valid-rated comment, or the zero aggregate
// when the target has none.
type RatingAggregate struct {
	Target    ContentReference
	CommentID string
	Ratings   [NumRatingSlots]*int

	// Average is the mean over the set rating slots, nil when none are
	// set or the target has no valid-rated comment.
	Average *float64
}

type CommentRepository interface {
	// Insert persists the comment. When the comment carries a valid
	// rating, the repository clears the flag on every prior comment for
	// the same target in the same transaction.
	Insert(ctx context.Context, comment *Comment) (err error)
	Find(ctx context.Context, commentID string) (comment *Comment, err error)
	List(ctx context.Context, params ListParams) (comments []*Comment, err error)
	SetVisibility(ctx context.Context, commentID string, visible bool) (err error)
	SetRemoved(ctx context.Context, commentID string, removed bool) (err error)

	// DeleteWithAudit deletes the comment and appends the moderator
	// deletion record as a single transaction.
	DeleteWithAudit(ctx context.Context, commentID, moderatorID string, deletedAt time.Time) (err error)

	// FindValidRated returns the comment whose ratings count toward the
	// target's aggregate, or CommentNotFoundError when there is none.
	FindValidRated(ctx context.Context, target ContentReference) (comment *Comment, err error)
}

type FreeCommentRepository interface {
	Insert(ctx context.Context, comment *FreeComment) (err error)
	Find(ctx context.Context, commentID string) (comment *FreeComment, err error)
	List(ctx context.Context, params ListParams) (comments []*FreeComment, err error)
	SetVisibility(ctx context.Context, commentID string, visible bool) (err error)
	SetApproved(ctx context.Context, commentID string, approved bool) (err error)
}

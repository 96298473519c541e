// Package moderation holds the moderator-privilege decision and the
// append-only audit trail of moderator-initiated comment deletions.
package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/nasermirzaei89/marginalia/authorization"
)

// Casbin coordinates for the moderation capability.
const (
	Object         = "comments"
	ActionModerate = "moderate"

	// SuperusersGroup always holds the moderation capability;
	// additionally one configurable moderators group does.
	SuperusersGroup = "role:superusers"

	DefaultModeratorsGroup = "role:moderators"
)

// Authorizer decides whether an actor has moderation privileges: true
// for superusers and for members of the configured moderators group.
// The decision is pure; it never mutates policy.
type Authorizer struct {
	authzClient *authorization.Client
}

func NewAuthorizer(authzClient *authorization.Client) *Authorizer {
	return &Authorizer{authzClient: authzClient}
}

func (a *Authorizer) IsModerator(ctx context.Context, userID string) (bool, error) {
	ok, err := a.authzClient.Can(ctx, userID, Object, "*", ActionModerate)
	if err != nil {
		return false, fmt.Errorf("failed to check moderation capability: %w", err)
	}

	return ok, nil
}

// Authorize checks the context subject for the moderation capability and
// returns an AccessDeniedError when it is missing.
func (a *Authorizer) Authorize(ctx context.Context) error {
	err := a.authzClient.CheckAccess(ctx, Object, "*", ActionModerate)
	if err != nil {
		return fmt.Errorf("moderation denied: %w", err)
	}

	return nil
}

// Deletion is one append-only audit record of a moderator deleting a
// comment. Entries are never mutated or removed, and they outlive the
// deleted comment.
type Deletion struct {
	ID          string
	ModeratorID string
	CommentID   string
	DeletedAt   time.Time
}

// DeletionRepository reads the audit trail. Writing happens only inside
// the comment-removal transaction, never standalone.
type DeletionRepository interface {
	List(ctx context.Context, params ListDeletionsParams) (deletions []*Deletion, err error)
}

type ListDeletionsParams struct {
	ModeratorID string
	CommentID   string
	Offset      uint64
	Limit       uint64
}

package comments

import "fmt"

// ValidationError rejects a malformed submission: bad input, a failed
// security-hash verification, or a malformed rating spec. Nothing is
// written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (err ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", err.Field, err.Reason)
}

// PermissionDeniedError rejects a moderation action by an actor without
// moderation privileges.
type PermissionDeniedError struct {
	UserID string
	Action string
}

func (err PermissionDeniedError) Error() string {
	return fmt.Sprintf("user %q is not allowed to %s", err.UserID, err.Action)
}

type CommentNotFoundError struct {
	ID string
}

func (err CommentNotFoundError) Error() string {
	return fmt.Sprintf("comment %q not found", err.ID)
}

type FreeCommentNotFoundError struct {
	ID string
}

func (err FreeCommentNotFoundError) Error() string {
	return fmt.Sprintf("free comment %q not found", err.ID)
}

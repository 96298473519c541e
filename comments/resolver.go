package comments

import (
	"context"
	"fmt"
)

// Entity is the materialized target of a content reference, owned by an
// external content catalog.
type Entity struct {
	Ref   ContentReference
	Title string
	URL   string
}

// Resolver resolves a content reference against the external entity
// catalog. A dangling reference (deleted target) resolves to
// EntityNotFoundError, not a failure; display paths degrade by omitting
// the comment.
type Resolver interface {
	Resolve(ctx context.Context, ref ContentReference) (entity *Entity, err error)
}

type EntityNotFoundError struct {
	Ref ContentReference
}

func (err EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %q not found", err.Ref)
}

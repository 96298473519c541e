package comments_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nasermirzaei89/marginalia/comments"
	"github.com/nasermirzaei89/marginalia/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommentRepo struct {
	byID    map[string]*comments.Comment
	deleted []string
	audited []string
}

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{byID: make(map[string]*comments.Comment)}
}

func (r *fakeCommentRepo) Insert(_ context.Context, comment *comments.Comment) error {
	if comment.ValidRating {
		for _, existing := range r.byID {
			if existing.Target == comment.Target {
				existing.ValidRating = false
			}
		}
	}

	c := *comment
	r.byID[comment.ID] = &c

	return nil
}

func (r *fakeCommentRepo) Find(_ context.Context, commentID string) (*comments.Comment, error) {
	comment, ok := r.byID[commentID]
	if !ok {
		return nil, comments.CommentNotFoundError{ID: commentID}
	}

	return comment, nil
}

func (r *fakeCommentRepo) List(_ context.Context, _ comments.ListParams) ([]*comments.Comment, error) {
	list := make([]*comments.Comment, 0, len(r.byID))
	for _, c := range r.byID {
		list = append(list, c)
	}

	return list, nil
}

func (r *fakeCommentRepo) SetVisibility(_ context.Context, commentID string, visible bool) error {
	comment, ok := r.byID[commentID]
	if !ok {
		return comments.CommentNotFoundError{ID: commentID}
	}

	comment.IsPublic = visible

	return nil
}

func (r *fakeCommentRepo) SetRemoved(_ context.Context, commentID string, removed bool) error {
	comment, ok := r.byID[commentID]
	if !ok {
		return comments.CommentNotFoundError{ID: commentID}
	}

	comment.IsRemoved = removed

	return nil
}

func (r *fakeCommentRepo) DeleteWithAudit(_ context.Context, commentID, moderatorID string, _ time.Time) error {
	if _, ok := r.byID[commentID]; !ok {
		return comments.CommentNotFoundError{ID: commentID}
	}

	delete(r.byID, commentID)
	r.deleted = append(r.deleted, commentID)
	r.audited = append(r.audited, moderatorID)

	return nil
}

func (r *fakeCommentRepo) FindValidRated(_ context.Context, target comments.ContentReference) (*comments.Comment, error) {
	for _, c := range r.byID {
		if c.Target == target && c.ValidRating && c.IsPublic && !c.IsRemoved {
			return c, nil
		}
	}

	return nil, comments.CommentNotFoundError{ID: target.String()}
}

type fakeFreeCommentRepo struct {
	byID map[string]*comments.FreeComment
}

func newFakeFreeCommentRepo() *fakeFreeCommentRepo {
	return &fakeFreeCommentRepo{byID: make(map[string]*comments.FreeComment)}
}

func (r *fakeFreeCommentRepo) Insert(_ context.Context, comment *comments.FreeComment) error {
	c := *comment
	r.byID[comment.ID] = &c

	return nil
}

func (r *fakeFreeCommentRepo) Find(_ context.Context, commentID string) (*comments.FreeComment, error) {
	comment, ok := r.byID[commentID]
	if !ok {
		return nil, comments.FreeCommentNotFoundError{ID: commentID}
	}

	return comment, nil
}

func (r *fakeFreeCommentRepo) List(_ context.Context, _ comments.ListParams) ([]*comments.FreeComment, error) {
	list := make([]*comments.FreeComment, 0, len(r.byID))
	for _, c := range r.byID {
		list = append(list, c)
	}

	return list, nil
}

func (r *fakeFreeCommentRepo) SetVisibility(_ context.Context, commentID string, visible bool) error {
	comment, ok := r.byID[commentID]
	if !ok {
		return comments.FreeCommentNotFoundError{ID: commentID}
	}

	comment.IsPublic = visible

	return nil
}

func (r *fakeFreeCommentRepo) SetApproved(_ context.Context, commentID string, approved bool) error {
	comment, ok := r.byID[commentID]
	if !ok {
		return comments.FreeCommentNotFoundError{ID: commentID}
	}

	comment.Approved = approved

	return nil
}

type fakeResolver struct {
	known map[comments.ContentReference]bool
}

func (r *fakeResolver) Resolve(_ context.Context, ref comments.ContentReference) (*comments.Entity, error) {
	if !r.known[ref] {
		return nil, comments.EntityNotFoundError{Ref: ref}
	}

	return &comments.Entity{Ref: ref, URL: "/content/" + ref.ID}, nil
}

type fakeAuthorizer struct {
	moderators map[string]bool
}

func (a *fakeAuthorizer) IsModerator(_ context.Context, userID string) (bool, error) {
	return a.moderators[userID], nil
}

type serviceFixture struct {
	svc        *comments.Service
	repo       *fakeCommentRepo
	freeRepo   *fakeFreeCommentRepo
	hasher     *security.Hasher
	authorizer *fakeAuthorizer
}

func newFixture(known ...comments.ContentReference) *serviceFixture {
	repo := newFakeCommentRepo()
	freeRepo := newFakeFreeCommentRepo()
	hasher := security.NewHasher([]byte("test-secret"))

	resolver := &fakeResolver{known: make(map[comments.ContentReference]bool)}
	for _, ref := range known {
		resolver.known[ref] = true
	}

	authorizer := &fakeAuthorizer{moderators: map[string]bool{"mod": true}}

	return &serviceFixture{
		svc:        comments.NewService(repo, freeRepo, resolver, hasher, authorizer),
		repo:       repo,
		freeRepo:   freeRepo,
		hasher:     hasher,
		authorizer: authorizer,
	}
}

func (f *serviceFixture) signedRequest(target, options, ratingOptions string) comments.SubmitCommentRequest {
	return comments.SubmitCommentRequest{
		UserID:        "alice",
		Site:          "example.com",
		Body:          "a thoughtful comment",
		Target:        target,
		Options:       options,
		RatingOptions: ratingOptions,
		Digest:        f.hasher.Compute(options, "", ratingOptions, target),
	}
}

func intPtr(v int) *int { return &v }

func TestSubmitComment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	target := comments.ContentReference{Type: "events.event", ID: "5157"}

	t.Run("accepts a signed submission", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		comment, err := f.svc.SubmitComment(ctx, f.signedRequest(target.String(), "ip", ""))
		require.NoError(t, err)

		assert.NotEmpty(t, comment.ID)
		assert.Equal(t, target, comment.Target)
		assert.True(t, comment.IsPublic)
		assert.False(t, comment.ValidRating)
		assert.False(t, comment.SubmittedAt.IsZero())
		assert.Contains(t, f.repo.byID, comment.ID)
	})

	t.Run("rejects a tampered digest", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := f.signedRequest(target.String(), "ip", "")
		req.Options = "ip,ra"

		_, err := f.svc.SubmitComment(ctx, req)
		require.Error(t, err)

		validationErr := comments.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "security_hash", validationErr.Field)
		assert.Empty(t, f.repo.byID)
	})

	t.Run("rejects a dangling target", func(t *testing.T) {
		t.Parallel()

		f := newFixture()

		_, err := f.svc.SubmitComment(ctx, f.signedRequest(target.String(), "ip", ""))
		require.Error(t, err)

		notFoundErr := comments.EntityNotFoundError{}
		require.ErrorAs(t, err, &notFoundErr)
	})

	t.Run("rejects a malformed target", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		_, err := f.svc.SubmitComment(ctx, f.signedRequest("not-a-reference", "ip", ""))

		validationErr := comments.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "target", validationErr.Field)
	})

	t.Run("rejects an oversized body", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := f.signedRequest(target.String(), "ip", "")
		req.Body = strings.Repeat("x", comments.MaxBodyLength+1)

		_, err := f.svc.SubmitComment(ctx, req)

		validationErr := comments.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "body", validationErr.Field)
	})

	t.Run("length limits count characters not bytes", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		// Two bytes per rune; at the limit in characters, over it in bytes.
		req := f.signedRequest(target.String(), "ip", "")
		req.Headline = strings.Repeat("é", comments.MaxHeadlineLength)
		req.Body = strings.Repeat("é", comments.MaxBodyLength)

		_, err := f.svc.SubmitComment(ctx, req)
		require.NoError(t, err)
	})

	t.Run("strips markup from body and headline", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := f.signedRequest(target.String(), "ip", "")
		req.Body = "hello <b>world</b>"

		comment, err := f.svc.SubmitComment(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "hello world", comment.Body)
	})

	t.Run("ratings make the comment the valid-rated one", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		ratingOptions := "scale:1-10|Quality"

		first := f.signedRequest(target.String(), "ip,ra", ratingOptions)
		first.Ratings[0] = intPtr(3)

		a, err := f.svc.SubmitComment(ctx, first)
		require.NoError(t, err)
		assert.True(t, a.ValidRating)

		second := f.signedRequest(target.String(), "ip,ra", ratingOptions)
		second.Ratings[0] = intPtr(9)

		b, err := f.svc.SubmitComment(ctx, second)
		require.NoError(t, err)
		assert.True(t, b.ValidRating)

		// Only the latest submission counts toward the tally.
		aggregate, err := f.svc.Tally(ctx, target)
		require.NoError(t, err)
		assert.Equal(t, b.ID, aggregate.CommentID)
		require.NotNil(t, aggregate.Average)
		assert.InDelta(t, 9.0, *aggregate.Average, 0.001)

		assert.False(t, f.repo.byID[a.ID].ValidRating)
	})

	t.Run("rejects out-of-range ratings", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := f.signedRequest(target.String(), "ip,ra", "scale:1-10|Quality")
		req.Ratings[0] = intPtr(11)

		_, err := f.svc.SubmitComment(ctx, req)

		validationErr := comments.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "ratings", validationErr.Field)
	})

	t.Run("rejects ratings without a rating spec", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := f.signedRequest(target.String(), "ip", "")
		req.Ratings[0] = intPtr(5)

		_, err := f.svc.SubmitComment(ctx, req)

		validationErr := comments.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("rejects a malformed rating spec", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := f.signedRequest(target.String(), "ip,ra", "1-10|Quality")
		req.Ratings[0] = intPtr(5)

		_, err := f.svc.SubmitComment(ctx, req)

		validationErr := comments.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "rating_options", validationErr.Field)
	})

	t.Run("requires ratings when the form demands them", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := f.signedRequest(target.String(), "ip,rr", "scale:1-10|Quality")

		_, err := f.svc.SubmitComment(ctx, req)

		validationErr := comments.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "ratings", validationErr.Field)
	})
}

func TestSubmitFreeComment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	target := comments.ContentReference{Type: "post", ID: "p1"}

	newRequest := func(f *serviceFixture) comments.SubmitFreeCommentRequest {
		return comments.SubmitFreeCommentRequest{
			PersonName: "Anonymous Coward",
			Site:       "example.com",
			Body:       "first!",
			Target:     target.String(),
			Options:    "ip",
			Digest:     f.hasher.Compute("ip", "", "", target.String()),
		}
	}

	t.Run("accepts a signed submission", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		comment, err := f.svc.SubmitFreeComment(ctx, newRequest(f))
		require.NoError(t, err)

		assert.False(t, comment.Approved)
		assert.True(t, comment.IsPublic)
		assert.Contains(t, f.freeRepo.byID, comment.ID)
	})

	t.Run("rejects a tampered digest", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := newRequest(f)
		req.Target = "post:p2"

		_, err := f.svc.SubmitFreeComment(ctx, req)

		validationErr := comments.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "security_hash", validationErr.Field)
	})

	t.Run("rejects an oversized person name", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := newRequest(f)
		req.PersonName = strings.Repeat("x", comments.MaxPersonNameLength+1)

		_, err := f.svc.SubmitFreeComment(ctx, req)

		validationErr := comments.ValidationError{}
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "person_name", validationErr.Field)
	})

	t.Run("name limit counts characters not bytes", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := newRequest(f)
		req.PersonName = strings.Repeat("é", comments.MaxPersonNameLength)

		_, err := f.svc.SubmitFreeComment(ctx, req)
		require.NoError(t, err)
	})
}

func TestRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	target := comments.ContentReference{Type: "post", ID: "p1"}

	t.Run("moderator removes with audit", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		comment, err := f.svc.SubmitComment(ctx, f.signedRequest(target.String(), "ip", ""))
		require.NoError(t, err)

		require.NoError(t, f.svc.Remove(ctx, comment.ID, "mod"))

		assert.Equal(t, []string{comment.ID}, f.repo.deleted)
		assert.Equal(t, []string{"mod"}, f.repo.audited)
	})

	t.Run("non-moderator is denied", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		comment, err := f.svc.SubmitComment(ctx, f.signedRequest(target.String(), "ip", ""))
		require.NoError(t, err)

		err = f.svc.Remove(ctx, comment.ID, "alice")
		require.Error(t, err)

		deniedErr := comments.PermissionDeniedError{}
		require.ErrorAs(t, err, &deniedErr)
		assert.Equal(t, "alice", deniedErr.UserID)
		assert.Empty(t, f.repo.deleted)
	})
}

func TestTally(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	target := comments.ContentReference{Type: "post", ID: "p1"}

	t.Run("no valid-rated comment yields the zero aggregate", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		aggregate, err := f.svc.Tally(ctx, target)
		require.NoError(t, err)

		assert.Empty(t, aggregate.CommentID)
		assert.Nil(t, aggregate.Average)
	})

	t.Run("averages the set rating slots", func(t *testing.T) {
		t.Parallel()

		f := newFixture(target)

		req := f.signedRequest(target.String(), "ip,ra", "scale:1-10|Quality|Value")
		req.Ratings[0] = intPtr(4)
		req.Ratings[1] = intPtr(8)

		comment, err := f.svc.SubmitComment(ctx, req)
		require.NoError(t, err)

		aggregate, err := f.svc.Tally(ctx, target)
		require.NoError(t, err)

		assert.Equal(t, comment.ID, aggregate.CommentID)
		require.NotNil(t, aggregate.Average)
		assert.InDelta(t, 6.0, *aggregate.Average, 0.001)
	})
}

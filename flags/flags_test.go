package flags_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nasermirzaei89/marginalia/comments"
	"github.com/nasermirzaei89/marginalia/flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlagRepo struct {
	mu    sync.Mutex
	flags map[string]*flags.UserFlag
}

func newFakeFlagRepo() *fakeFlagRepo {
	return &fakeFlagRepo{flags: make(map[string]*flags.UserFlag)}
}

func (r *fakeFlagRepo) InsertIfAbsent(_ context.Context, flag *flags.UserFlag) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := flag.UserID + "/" + flag.CommentID
	if _, ok := r.flags[key]; ok {
		return false, nil
	}

	f := *flag
	r.flags[key] = &f

	return true, nil
}

type fakeCommentFinder struct {
	comment *comments.Comment
}

func (f *fakeCommentFinder) Find(_ context.Context, commentID string) (*comments.Comment, error) {
	if f.comment == nil || f.comment.ID != commentID {
		return nil, comments.CommentNotFoundError{ID: commentID}
	}

	return f.comment, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
	fail     error
}

func (n *recordingNotifier) NotifyModerators(_ context.Context, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.subjects = append(n.subjects, subject)

	return n.fail
}

func TestFlag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	comment := &comments.Comment{ID: "42", UserID: "carol", Body: "hot take"}

	t.Run("first flag notifies once", func(t *testing.T) {
		t.Parallel()

		repo := newFakeFlagRepo()
		notifier := &recordingNotifier{}
		svc := flags.NewService(repo, &fakeCommentFinder{comment: comment}, notifier)

		res, err := svc.Flag(ctx, "alice", "42")
		require.NoError(t, err)
		assert.Equal(t, flags.Created, res)

		res, err = svc.Flag(ctx, "alice", "42")
		require.NoError(t, err)
		assert.Equal(t, flags.AlreadyFlagged, res)

		res, err = svc.Flag(ctx, "alice", "42")
		require.NoError(t, err)
		assert.Equal(t, flags.AlreadyFlagged, res)

		assert.Len(t, repo.flags, 1)
		assert.Len(t, notifier.subjects, 1)
	})

	t.Run("self flag is a silent no-op", func(t *testing.T) {
		t.Parallel()

		repo := newFakeFlagRepo()
		notifier := &recordingNotifier{}
		svc := flags.NewService(repo, &fakeCommentFinder{comment: comment}, notifier)

		res, err := svc.Flag(ctx, "carol", "42")
		require.NoError(t, err)
		assert.Equal(t, flags.SelfFlagSkipped, res)

		assert.Empty(t, repo.flags)
		assert.Empty(t, notifier.subjects)
	})

	t.Run("notification failure does not fail the flag", func(t *testing.T) {
		t.Parallel()

		repo := newFakeFlagRepo()
		notifier := &recordingNotifier{fail: errors.New("smtp down")}
		svc := flags.NewService(repo, &fakeCommentFinder{comment: comment}, notifier)

		res, err := svc.Flag(ctx, "alice", "42")
		require.NoError(t, err)
		assert.Equal(t, flags.Created, res)
		assert.Len(t, repo.flags, 1)
	})

	t.Run("missing comment", func(t *testing.T) {
		t.Parallel()

		svc := flags.NewService(newFakeFlagRepo(), &fakeCommentFinder{}, &recordingNotifier{})

		_, err := svc.Flag(ctx, "alice", "missing")
		require.Error(t, err)

		notFoundErr := comments.CommentNotFoundError{}
		require.ErrorAs(t, err, &notFoundErr)
	})
}

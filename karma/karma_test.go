package karma_test

import (
	"context"
	"sync"
	"testing"

	"github.com/nasermirzaei89/marginalia/karma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu     sync.Mutex
	scores map[string]*karma.Score
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{scores: make(map[string]*karma.Score)}
}

func (r *fakeRepo) Upsert(_ context.Context, score *karma.Score) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := *score
	r.scores[score.UserID+"/"+score.CommentID] = &s

	return nil
}

func (r *fakeRepo) CountByComment(_ context.Context, commentID string) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	good, bad := 0, 0

	for _, s := range r.scores {
		if s.CommentID != commentID {
			continue
		}

		switch s.Score {
		case 1:
			good++
		case -1:
			bad++
		}
	}

	return good, bad, nil
}

// gatedRepo snapshots the counts, then blocks the first CountByComment
// caller until released, so a vote can commit in between.
type gatedRepo struct {
	inner   *fakeRepo
	mu      sync.Mutex
	gated   bool
	started chan struct{}
	release chan struct{}
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{
		inner:   newFakeRepo(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (r *gatedRepo) Upsert(ctx context.Context, score *karma.Score) error {
	return r.inner.Upsert(ctx, score)
}

func (r *gatedRepo) CountByComment(ctx context.Context, commentID string) (int, int, error) {
	good, bad, err := r.inner.CountByComment(ctx, commentID)

	r.mu.Lock()
	first := !r.gated
	r.gated = true
	r.mu.Unlock()

	if first {
		close(r.started)
		<-r.release
	}

	return good, bad, err
}

func TestVote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("invalid score", func(t *testing.T) {
		t.Parallel()

		svc, err := karma.NewService(newFakeRepo())
		require.NoError(t, err)

		err = svc.Vote(ctx, "alice", "42", 2)
		require.Error(t, err)

		invalidErr := karma.InvalidScoreError{}
		require.ErrorAs(t, err, &invalidErr)
		assert.Equal(t, 2, invalidErr.Score)
	})

	t.Run("revote overwrites", func(t *testing.T) {
		t.Parallel()

		repo := newFakeRepo()
		svc, err := karma.NewService(repo)
		require.NoError(t, err)

		require.NoError(t, svc.Vote(ctx, "alice", "42", 1))
		require.NoError(t, svc.Vote(ctx, "alice", "42", -1))

		require.Len(t, repo.scores, 1)
		assert.Equal(t, -1, repo.scores["alice/42"].Score)
	})

	t.Run("counts follow votes", func(t *testing.T) {
		t.Parallel()

		svc, err := karma.NewService(newFakeRepo())
		require.NoError(t, err)

		require.NoError(t, svc.Vote(ctx, "alice", "42", 1))
		require.NoError(t, svc.Vote(ctx, "bob", "42", -1))

		good, err := svc.GoodCount(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, 1, good)

		bad, err := svc.BadCount(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, 1, bad)

		// Alice changes her mind; the cached tally must not survive.
		require.NoError(t, svc.Vote(ctx, "alice", "42", 0))

		good, err = svc.GoodCount(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, 0, good)

		bad, err = svc.BadCount(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, 1, bad)
	})

	t.Run("slow count fill does not undo an invalidation", func(t *testing.T) {
		t.Parallel()

		repo := newGatedRepo()
		svc, err := karma.NewService(repo)
		require.NoError(t, err)

		require.NoError(t, svc.Vote(ctx, "alice", "42", 1))

		done := make(chan struct{})

		go func() {
			defer close(done)

			_, _ = svc.GoodCount(ctx, "42")
		}()

		<-repo.started

		// The re-vote commits and invalidates while the old counts are
		// still in flight; the fill must not cache them.
		require.NoError(t, svc.Vote(ctx, "alice", "42", 0))

		close(repo.release)
		<-done

		good, err := svc.GoodCount(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, 0, good)
	})

	t.Run("display threshold", func(t *testing.T) {
		t.Parallel()

		svc, err := karma.NewService(newFakeRepo())
		require.NoError(t, err)

		require.NoError(t, svc.Vote(ctx, "alice", "7", 1))
		require.NoError(t, svc.Vote(ctx, "bob", "7", 1))

		_, _, displayed, err := svc.Total(ctx, "7")
		require.NoError(t, err)
		assert.False(t, displayed)

		require.NoError(t, svc.Vote(ctx, "carol", "7", -1))

		good, bad, displayed, err := svc.Total(ctx, "7")
		require.NoError(t, err)
		assert.True(t, displayed)
		assert.Equal(t, 2, good)
		assert.Equal(t, 1, bad)
	})
}

func TestPrettyScore(t *testing.T) {
	t.Parallel()

	ptr := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		avg      *float64
		expected int
	}{
		{name: "absent", avg: nil, expected: karma.DefaultKarma},
		{name: "best", avg: ptr(1.0), expected: 10},
		{name: "worst", avg: ptr(-1.0), expected: 1},
		{name: "neutral rounds half up", avg: ptr(0.0), expected: 6},
		{name: "half positive", avg: ptr(0.5), expected: 8},
		{name: "half negative", avg: ptr(-0.5), expected: 3},
		{name: "clamped above", avg: ptr(3.0), expected: 10},
		{name: "clamped below", avg: ptr(-7.5), expected: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, karma.PrettyScore(tt.avg))
		})
	}
}

package karma

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultTallyCacheSize = 4096

type tally struct {
	good int
	bad  int
}

type Service struct {
	repo Repository

	// tallies caches good/bad counts per comment id and is dropped on
	// every vote for that comment. It only ever refills from the store,
	// so replicas may cache independently.
	tallies *lru.Cache[string, tally]

	// mu guards generations, bumped by every vote. A fill that raced a
	// vote started from an older generation and must not be stored, or
	// it would undo the vote's invalidation and serve stale counts.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewService(repo Repository) (*Service, error) {
	tallies, err := lru.New[string, tally](defaultTallyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create tally cache: %w", err)
	}

	return &Service{
		repo:        repo,
		tallies:     tallies,
		generations: make(map[string]uint64),
	}, nil
}

// Vote records the voter's score on the comment. A repeated vote by the
// same voter overwrites the earlier one; the duplicate resolves
// deterministically instead of erroring.
func (svc *Service) Vote(ctx context.Context, voterID, commentID string, score int) error {
	if score < -1 || score > 1 {
		return InvalidScoreError{Score: score}
	}

	err := svc.repo.Upsert(ctx, &Score{
		UserID:    voterID,
		CommentID: commentID,
		Score:     score,
		ScoredAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert karma score: %w", err)
	}

	svc.mu.Lock()
	svc.generations[commentID]++
	svc.tallies.Remove(commentID)
	svc.mu.Unlock()

	return nil
}

// GoodCount returns the number of +1 scores on the comment.
func (svc *Service) GoodCount(ctx context.Context, commentID string) (int, error) {
	t, err := svc.tallyFor(ctx, commentID)
	if err != nil {
		return 0, err
	}

	return t.good, nil
}

// BadCount returns the number of -1 scores on the comment.
func (svc *Service) BadCount(ctx context.Context, commentID string) (int, error) {
	t, err := svc.tallyFor(ctx, commentID)
	if err != nil {
		return 0, err
	}

	return t.bad, nil
}

// Total returns good and bad counts together with whether the total is
// large enough to display (NeededBeforeDisplayed).
func (svc *Service) Total(ctx context.Context, commentID string) (good, bad int, displayed bool, err error) {
	t, err := svc.tallyFor(ctx, commentID)
	if err != nil {
		return 0, 0, false, err
	}

	return t.good, t.bad, t.good+t.bad >= NeededBeforeDisplayed, nil
}

func (svc *Service) tallyFor(ctx context.Context, commentID string) (tally, error) {
	if t, ok := svc.tallies.Get(commentID); ok {
		return t, nil
	}

	svc.mu.Lock()
	gen := svc.generations[commentID]
	svc.mu.Unlock()

	good, bad, err := svc.repo.CountByComment(ctx, commentID)
	if err != nil {
		return tally{}, fmt.Errorf("failed to count karma scores: %w", err)
	}

	t := tally{good: good, bad: bad}

	svc.mu.Lock()
	if svc.generations[commentID] == gen {
		svc.tallies.Add(commentID, t)
	}
	svc.mu.Unlock()

	return t, nil
}

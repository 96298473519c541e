package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nasermirzaei89/marginalia/security"
)

// ModeratorAuthorizer decides whether an actor holds moderation
// privileges. The decision is pure; no mutation happens here.
type ModeratorAuthorizer interface {
	IsModerator(ctx context.Context, userID string) (ok bool, err error)
}

type Service struct {
	commentRepo     CommentRepository
	freeCommentRepo FreeCommentRepository
	resolver        Resolver
	hasher          *security.Hasher
	authorizer      ModeratorAuthorizer
	sanitizer       *bluemonday.Policy
}

func NewService(
	commentRepo CommentRepository,
	freeCommentRepo FreeCommentRepository,
	resolver Resolver,
	hasher *security.Hasher,
	authorizer ModeratorAuthorizer,
) *Service {
	return &Service{
		commentRepo:     commentRepo,
		freeCommentRepo: freeCommentRepo,
		resolver:        resolver,
		hasher:          hasher,
		authorizer:      authorizer,
		sanitizer:       bluemonday.StrictPolicy(),
	}
}

type SubmitCommentRequest struct {
	UserID   string
	Site     string
	Headline string
	Body     string
	Ratings  [NumRatingSlots]*int

	// Target and the option strings arrive exactly as rendered into the
	// form's hidden fields, together with the claimed digest over them.
	Target        string
	Options       string
	PhotoOptions  string
	RatingOptions string
	Digest        string

	IPAddress string
}

// SubmitComment validates and persists a registered-user submission.
// When the submission carries ratings, the new comment becomes the
// single valid-rated comment for its target; the transfer is atomic
// with respect to concurrent tally reads.
func (svc *Service) SubmitComment(ctx context.Context, req SubmitCommentRequest) (*Comment, error) {
	if !svc.hasher.Verify(req.Digest, req.Options, req.PhotoOptions, req.RatingOptions, req.Target) {
		return nil, ValidationError{Field: "security_hash", Reason: "digest does not match submitted options"}
	}

	if req.UserID == "" {
		return nil, ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	target, err := ParseContentReference(req.Target)
	if err != nil {
		return nil, err
	}

	if _, err := svc.resolver.Resolve(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to resolve target %q: %w", target, err)
	}

	if err := validateBody(req.Body); err != nil {
		return nil, err
	}

	if utf8.RuneCountInString(req.Headline) > MaxHeadlineLength {
		return nil, ValidationError{Field: "headline", Reason: fmt.Sprintf("must be at most %d characters", MaxHeadlineLength)}
	}

	validRating, err := svc.validateRatings(req)
	if err != nil {
		return nil, err
	}

	comment := &Comment{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Target:      target,
		Site:        req.Site,
		Headline:    svc.sanitizer.Sanitize(req.Headline),
		Body:        svc.sanitizer.Sanitize(req.Body),
		Ratings:     req.Ratings,
		ValidRating: validRating,
		SubmittedAt: time.Now(),
		IsPublic:    hasOption(req.Options, OptionIsPublic),
		IPAddress:   req.IPAddress,
	}

	err = svc.commentRepo.Insert(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	return comment, nil
}

type SubmitFreeCommentRequest struct {
	PersonName string
	Site       string
	Body       string

	Target       string
	Options      string
	PhotoOptions string
	Digest       string

	IPAddress string
}

// SubmitFreeComment validates and persists an anonymous submission.
// Free comments start unapproved; staff approval is a separate toggle.
func (svc *Service) SubmitFreeComment(ctx context.Context, req SubmitFreeCommentRequest) (*FreeComment, error) {
	if !svc.hasher.Verify(req.Digest, req.Options, req.PhotoOptions, "", req.Target) {
		return nil, ValidationError{Field: "security_hash", Reason: "digest does not match submitted options"}
	}

	if req.PersonName == "" {
		return nil, ValidationError{Field: "person_name", Reason: "must not be empty"}
	}

	if utf8.RuneCountInString(req.PersonName) > MaxPersonNameLength {
		return nil, ValidationError{Field: "person_name", Reason: fmt.Sprintf("must be at most %d characters", MaxPersonNameLength)}
	}

	target, err := ParseContentReference(req.Target)
	if err != nil {
		return nil, err
	}

	if _, err := svc.resolver.Resolve(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to resolve target %q: %w", target, err)
	}

	if err := validateBody(req.Body); err != nil {
		return nil, err
	}

	comment := &FreeComment{
		ID:          uuid.NewString(),
		PersonName:  svc.sanitizer.Sanitize(req.PersonName),
		Target:      target,
		Site:        req.Site,
		Body:        svc.sanitizer.Sanitize(req.Body),
		SubmittedAt: time.Now(),
		IsPublic:    hasOption(req.Options, OptionIsPublic),
		Approved:    false,
		IPAddress:   req.IPAddress,
	}

	err = svc.freeCommentRepo.Insert(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to insert free comment: %w", err)
	}

	return comment, nil
}

func (svc *Service) Find(ctx context.Context, commentID string) (*Comment, error) {
	comment, err := svc.commentRepo.Find(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}

	return comment, nil
}

func (svc *Service) List(ctx context.Context, params ListParams) ([]*Comment, error) {
	comments, err := svc.commentRepo.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	return comments, nil
}

func (svc *Service) ListFree(ctx context.Context, params ListParams) ([]*FreeComment, error) {
	comments, err := svc.freeCommentRepo.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list free comments: %w", err)
	}

	return comments, nil
}

func (svc *Service) SetVisibility(ctx context.Context, commentID string, visible bool) error {
	err := svc.commentRepo.SetVisibility(ctx, commentID, visible)
	if err != nil {
		return fmt.Errorf("failed to set comment visibility: %w", err)
	}

	return nil
}

func (svc *Service) SetFreeCommentVisibility(ctx context.Context, commentID string, visible bool) error {
	err := svc.freeCommentRepo.SetVisibility(ctx, commentID, visible)
	if err != nil {
		return fmt.Errorf("failed to set free comment visibility: %w", err)
	}

	return nil
}

func (svc *Service) ApproveFreeComment(ctx context.Context, commentID string, approved bool) error {
	err := svc.freeCommentRepo.SetApproved(ctx, commentID, approved)
	if err != nil {
		return fmt.Errorf("failed to set free comment approval: %w", err)
	}

	return nil
}

// SetRemoved toggles the "removed by a moderator" display flag. Only
// moderators may do this; the comment row itself stays.
func (svc *Service) SetRemoved(ctx context.Context, commentID string, removed bool, moderatorID string) error {
	ok, err := svc.authorizer.IsModerator(ctx, moderatorID)
	if err != nil {
		return fmt.Errorf("failed to check moderator privileges: %w", err)
	}

	if !ok {
		return PermissionDeniedError{UserID: moderatorID, Action: "mark comments as removed"}
	}

	err = svc.commentRepo.SetRemoved(ctx, commentID, removed)
	if err != nil {
		return fmt.Errorf("failed to set comment removed flag: %w", err)
	}

	return nil
}

// Remove deletes the comment on a moderator's behalf and appends the
// deletion to the moderation log in the same transaction. Karma scores
// and flags on the comment cascade away with it.
func (svc *Service) Remove(ctx context.Context, commentID, moderatorID string) error {
	ok, err := svc.authorizer.IsModerator(ctx, moderatorID)
	if err != nil {
		return fmt.Errorf("failed to check moderator privileges: %w", err)
	}

	if !ok {
		return PermissionDeniedError{UserID: moderatorID, Action: "delete comments"}
	}

	err = svc.commentRepo.DeleteWithAudit(ctx, commentID, moderatorID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	return nil
}

// Tally aggregates the rating slots of the single currently valid-rated
// comment for the target. Other comments on the target are excluded
// even when they carry ratings. A target without a valid-rated comment
// tallies to the zero aggregate.
func (svc *Service) Tally(ctx context.Context, target ContentReference) (*RatingAggregate, error) {
	comment, err := svc.commentRepo.FindValidRated(ctx, target)
	if err != nil {
		notFoundErr := CommentNotFoundError{}
		if errors.As(err, &notFoundErr) {
			return &RatingAggregate{Target: target}, nil
		}

		return nil, fmt.Errorf("failed to find valid-rated comment: %w", err)
	}

	aggregate := &RatingAggregate{
		Target:    target,
		CommentID: comment.ID,
		Ratings:   comment.Ratings,
	}

	sum, count := 0, 0

	for _, r := range comment.Ratings {
		if r != nil {
			sum += *r
			count++
		}
	}

	if count > 0 {
		avg := float64(sum) / float64(count)
		aggregate.Average = &avg
	}

	return aggregate, nil
}

func (svc *Service) validateRatings(req SubmitCommentRequest) (bool, error) {
	submitted := Comment{Ratings: req.Ratings}

	if !submitted.HasRatings() {
		if hasOption(req.Options, OptionRatingsRequired) {
			return false, ValidationError{Field: "ratings", Reason: "ratings are required for this form"}
		}

		return false, nil
	}

	if req.RatingOptions == "" {
		return false, ValidationError{Field: "ratings", Reason: "ratings submitted without a rating spec"}
	}

	parsed, err := security.ParseRatingOptions(req.RatingOptions)
	if err != nil {
		return false, ValidationError{Field: "rating_options", Reason: err.Error()}
	}

	for slot, r := range req.Ratings {
		if r == nil {
			continue
		}

		if !parsed.Contains(*r) {
			return false, ValidationError{
				Field:  "ratings",
				Reason: fmt.Sprintf("rating #%d is outside the allowed range %d-%d", slot+1, parsed.Low, parsed.High),
			}
		}
	}

	return true, nil
}

func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ValidationError{Field: "body", Reason: "must not be empty"}
	}

	if utf8.RuneCountInString(body) > MaxBodyLength {
		return ValidationError{Field: "body", Reason: fmt.Sprintf("must be at most %d characters", MaxBodyLength)}
	}

	return nil
}

func hasOption(options, code string) bool {
	for _, part := range strings.Split(options, ",") {
		if strings.TrimSpace(part) == code {
			return true
		}
	}

	return false
}

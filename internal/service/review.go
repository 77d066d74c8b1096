package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/repository"
	"github.com/jojo-app/realtime-server-go/internal/util"
)

type ReviewPage struct {
	Reviews    []model.Review
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// ReviewService lets the two sides of a completed call rate each other.
type ReviewService struct {
	calls   repository.CallRepository
	reviews repository.ReviewRepository
	options
}

func NewReviewService(calls repository.CallRepository, reviews repository.ReviewRepository, opts ...Option) *ReviewService {
	return &ReviewService{
		calls:   calls,
		reviews: reviews,
		options: newOptions(opts),
	}
}

// Submit records fromID's rating of the other participant. Only completed
// calls can be reviewed, once per participant.
func (s *ReviewService) Submit(ctx context.Context, fromID, callID string, rating int) (*model.Review, error) {
	if callID == "" {
		return nil, apperrors.MissingRequired("callId")
	}
	if rating < model.MinRating || rating > model.MaxRating {
		return nil, apperrors.InvalidInput("rating", fmt.Sprintf("must be between %d and %d", model.MinRating, model.MaxRating))
	}
	if !util.IsValidID(callID) {
		return nil, apperrors.NotFound("Call")
	}
	defer s.observe("review_submit", time.Now())

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	call, err := s.calls.FindByID(sctx, callID)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	if call == nil || !call.Involves(fromID) || call.Status != model.CallStatusCompleted {
		return nil, apperrors.NotFound("Call")
	}

	reviewType := model.ReviewByParticipant
	if call.CreatorID == fromID {
		reviewType = model.ReviewByCreator
	}

	review, err := s.reviews.Create(sctx, model.CreateReviewParams{
		ID:         s.newID(),
		CallID:     call.ID,
		FromUserID: fromID,
		ToUserID:   call.OtherParty(fromID),
		Rating:     rating,
		Type:       reviewType,
		Now:        s.clock(),
	})
	if err != nil {
		log.Error().Err(err).Str("callId", callID).Msg("failed to store review")
		return nil, apperrors.FromStore(err)
	}
	if review == nil {
		return nil, apperrors.AlreadyExists("Review")
	}

	log.Info().
		Str("callId", call.ID).
		Str("fromUserId", fromID).
		Int("rating", rating).
		Msg("review submitted")
	return review, nil
}

// List returns the reviews identityID wrote or received, newest first. An
// empty direction means received.
func (s *ReviewService) List(ctx context.Context, identityID string, direction model.ReviewDirection, page, limit int) (*ReviewPage, error) {
	if direction == "" {
		direction = model.ReviewsReceived
	}
	if !util.IsValidEnum(direction, model.ReviewDirections) {
		return nil, apperrors.InvalidInput("type", "must be given or received")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	find, count := s.reviews.FindReceived, s.reviews.CountReceived
	if direction == model.ReviewsGiven {
		find, count = s.reviews.FindGiven, s.reviews.CountGiven
	}

	reviews, err := find(sctx, identityID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	total, err := count(sctx, identityID)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}

	return &ReviewPage{
		Reviews:    reviews,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

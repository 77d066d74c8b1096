package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/repository"
)

var errHeartExists = errors.New("heart exists")

// HeartService keeps moment heart counters in step with the heart rows.
// Every event carries the resulting count, never a delta.
type HeartService struct {
	tx      Transactor
	moments repository.MomentRepository
	hearts  repository.HeartRepository
	events  EventPublisher
	options
}

func NewHeartService(
	tx Transactor,
	moments repository.MomentRepository,
	hearts repository.HeartRepository,
	events EventPublisher,
	opts ...Option,
) *HeartService {
	return &HeartService{
		tx:      tx,
		moments: moments,
		hearts:  hearts,
		events:  events,
		options: newOptions(opts),
	}
}

func (s *HeartService) AddHeart(ctx context.Context, userID, momentID string) (*model.HeartPayload, error) {
	defer s.observe("heart_add", time.Now())

	now := s.clock()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	var count *repository.HeartCount
	err := s.tx.WithTx(sctx, func(tx *sqlx.Tx) error {
		moments := s.moments.WithTx(tx)

		var err error
		count, err = moments.IncrementHearts(sctx, momentID, now)
		if err != nil {
			return err
		}
		if count == nil {
			m, err := moments.FindByID(sctx, momentID)
			if err != nil {
				return err
			}
			if m == nil {
				return apperrors.NotFound("Moment")
			}
			return apperrors.Expired("Moment")
		}

		inserted, err := s.hearts.WithTx(tx).Insert(sctx, userID, momentID, now)
		if err != nil {
			return err
		}
		if !inserted {
			return errHeartExists
		}
		return nil
	})
	if errors.Is(err, errHeartExists) {
		return nil, apperrors.Conflict("Already hearted this moment")
	}
	if err != nil {
		return nil, apperrors.FromStore(err)
	}

	s.metrics.RecordHeart("add")
	return s.announce(ctx, momentID, count), nil
}

// RemoveHeart is a no-op when the user has not hearted the moment; the
// current count is still published.
func (s *HeartService) RemoveHeart(ctx context.Context, userID, momentID string) (*model.HeartPayload, error) {
	defer s.observe("heart_remove", time.Now())

	now := s.clock()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	var count *repository.HeartCount
	err := s.tx.WithTx(sctx, func(tx *sqlx.Tx) error {
		moments := s.moments.WithTx(tx)

		removed, err := s.hearts.WithTx(tx).Delete(sctx, userID, momentID)
		if err != nil {
			return err
		}
		if removed {
			count, err = moments.DecrementHearts(sctx, momentID, now)
		} else {
			var m *model.Moment
			m, err = moments.FindByID(sctx, momentID)
			if m != nil {
				count = &repository.HeartCount{HeartCount: m.HeartCount, Category: m.Category}
			}
		}
		if err != nil {
			return err
		}
		if count == nil {
			return apperrors.NotFound("Moment")
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.FromStore(err)
	}

	s.metrics.RecordHeart("remove")
	return s.announce(ctx, momentID, count), nil
}

func (s *HeartService) announce(ctx context.Context, momentID string, count *repository.HeartCount) *model.HeartPayload {
	payload := &model.HeartPayload{MomentID: momentID, HeartCount: count.HeartCount}
	log.Debug().Str("momentId", momentID).Int("heartCount", count.HeartCount).Msg("heart count updated")
	s.events.PublishMoment(ctx, count.Category, model.EventHeartUpdated, payload)
	return payload
}

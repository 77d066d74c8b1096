package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/jojo-app/realtime-server-go/internal/audit"
	"github.com/jojo-app/realtime-server-go/internal/config"
	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/repository"
	"github.com/jojo-app/realtime-server-go/internal/util"
)

type CreateMomentInput struct {
	Category        model.Category
	SubCategory     string
	Content         string
	Languages       []string
	ScheduleType    model.ScheduleType
	ScheduledTime   *time.Time
	DurationMinutes int
}

// UpdateMomentInput carries optional edits; nil fields are left unchanged.
type UpdateMomentInput struct {
	SubCategory     *string
	Content         *string
	Languages       []string
	ScheduleType    *model.ScheduleType
	ScheduledTime   *time.Time
	DurationMinutes *int
}

type FeedParams struct {
	ViewerID string
	Category model.Category
	Limit    int
	Offset   int
}

// MomentService owns moment state transitions and the expiry sweep.
type MomentService struct {
	tx      Transactor
	moments repository.MomentRepository
	calls   repository.CallRepository
	events  EventPublisher
	options
}

func NewMomentService(
	tx Transactor,
	moments repository.MomentRepository,
	calls repository.CallRepository,
	events EventPublisher,
	opts ...Option,
) *MomentService {
	return &MomentService{
		tx:      tx,
		moments: moments,
		calls:   calls,
		events:  events,
		options: newOptions(opts),
	}
}

func (s *MomentService) Create(ctx context.Context, creatorID string, in CreateMomentInput) (*model.Moment, error) {
	now := s.clock()
	if err := validateMomentFields(in.Category, in.SubCategory, in.Content, in.Languages, in.DurationMinutes); err != nil {
		return nil, err
	}
	activationAt, err := activationFor(in.ScheduleType, in.ScheduledTime, now)
	if err != nil {
		return nil, err
	}
	if !model.ExpiresAtFor(activationAt, in.DurationMinutes).After(now) {
		return nil, apperrors.InvalidInput("scheduledTime", "moment would already be expired")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	defer s.observe("moment_create", time.Now())

	m, err := s.moments.Create(sctx, model.CreateMomentParams{
		ID:              s.newID(),
		CreatorID:       creatorID,
		Category:        in.Category,
		SubCategory:     strings.TrimSpace(in.SubCategory),
		Content:         in.Content,
		Languages:       uniqueLanguages(in.Languages),
		ScheduleType:    in.ScheduleType,
		ActivationAt:    activationAt,
		DurationMinutes: in.DurationMinutes,
		Now:             now,
	})
	if err != nil {
		log.Error().Err(err).Str("creatorId", creatorID).Msg("failed to create moment")
		return nil, apperrors.FromStore(err)
	}

	log.Info().
		Str("momentId", m.ID).
		Str("creatorId", creatorID).
		Str("category", string(m.Category)).
		Time("expiresAt", m.ExpiresAt).
		Msg("moment created")

	s.events.PublishMoment(ctx, m.Category, model.EventMomentCreated, m)
	return m, nil
}

func (s *MomentService) Update(ctx context.Context, creatorID, momentID string, in UpdateMomentInput) (*model.Moment, error) {
	now := s.clock()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	m, err := s.moments.FindByID(sctx, momentID)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	if m == nil || m.CreatorID != creatorID {
		return nil, apperrors.NotFound("Moment")
	}
	if m.Status != model.MomentStatusActive {
		if m.Status.Terminal() {
			return nil, apperrors.Expired("Moment")
		}
		return nil, apperrors.Conflict("Only active moments can be edited")
	}
	if m.CurrentCallID != nil {
		return nil, apperrors.Conflict("Cannot update moment with active call")
	}

	if in.SubCategory != nil {
		m.SubCategory = strings.TrimSpace(*in.SubCategory)
	}
	if in.Content != nil {
		m.Content = *in.Content
	}
	if in.Languages != nil {
		m.Languages = uniqueLanguages(in.Languages)
	}
	if in.DurationMinutes != nil {
		m.DurationMinutes = *in.DurationMinutes
	}
	scheduleChanged := in.ScheduleType != nil && *in.ScheduleType != m.ScheduleType
	if scheduleChanged || in.ScheduledTime != nil {
		scheduleType := m.ScheduleType
		if in.ScheduleType != nil {
			scheduleType = *in.ScheduleType
		}
		activationAt, err := activationFor(scheduleType, in.ScheduledTime, now)
		if err != nil {
			return nil, err
		}
		m.ScheduleType = scheduleType
		m.ActivationAt = activationAt
	}

	if err := validateMomentFields(m.Category, m.SubCategory, m.Content, m.Languages, m.DurationMinutes); err != nil {
		return nil, err
	}
	if !model.ExpiresAtFor(m.ActivationAt, m.DurationMinutes).After(now) {
		return nil, apperrors.InvalidInput("durationMinutes", "moment would already be expired")
	}

	updated, err := s.moments.UpdateDetails(sctx, m, now)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	if updated == nil {
		return nil, apperrors.Conflict("Moment changed while updating, retry")
	}

	log.Info().Str("momentId", momentID).Time("expiresAt", updated.ExpiresAt).Msg("moment updated")
	s.events.PublishMoment(ctx, updated.Category, model.EventMomentUpdated, updated)
	return updated, nil
}

// TogglePause pauses an active moment or resumes a paused one.
func (s *MomentService) TogglePause(ctx context.Context, creatorID, momentID string) (*model.Moment, error) {
	m, err := s.findOwned(ctx, creatorID, momentID)
	if err != nil {
		return nil, err
	}
	if m.Status == model.MomentStatusPaused {
		return s.Resume(ctx, creatorID, momentID)
	}
	return s.Pause(ctx, creatorID, momentID)
}

func (s *MomentService) Pause(ctx context.Context, creatorID, momentID string) (*model.Moment, error) {
	return s.transition(ctx, creatorID, momentID, model.MomentStatusActive, s.moments.Pause)
}

func (s *MomentService) Resume(ctx context.Context, creatorID, momentID string) (*model.Moment, error) {
	return s.transition(ctx, creatorID, momentID, model.MomentStatusPaused, s.moments.Resume)
}

type transitionFunc func(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error)

func (s *MomentService) transition(ctx context.Context, creatorID, momentID string, from model.MomentStatus, apply transitionFunc) (*model.Moment, error) {
	now := s.clock()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	m, err := apply(sctx, momentID, creatorID, now)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	if m == nil {
		return nil, s.classifyRejected(sctx, creatorID, momentID, from, now)
	}

	log.Info().
		Str("momentId", m.ID).
		Str("status", string(m.Status)).
		Bool("isAvailable", m.IsAvailable).
		Msg("moment status changed")

	s.events.PublishMoment(ctx, m.Category, model.EventMomentStatusChanged, model.MomentStatusPayload{
		MomentID: m.ID,
		Category: m.Category,
		Status:   m.Status,
	})
	return m, nil
}

// classifyRejected explains why a conditional transition matched nothing.
func (s *MomentService) classifyRejected(ctx context.Context, creatorID, momentID string, from model.MomentStatus, now time.Time) error {
	m, err := s.moments.FindByID(ctx, momentID)
	if err != nil {
		return apperrors.FromStore(err)
	}
	switch {
	case m == nil || m.CreatorID != creatorID:
		return apperrors.NotFound("Moment")
	case m.Status.Terminal() || !m.ExpiresAt.After(now):
		return apperrors.Expired("Moment")
	case m.Status != from:
		return apperrors.Conflict(fmt.Sprintf("Cannot change moment in status %s", m.Status))
	default:
		return apperrors.Conflict("Moment changed concurrently, retry")
	}
}

// Cancel ends a moment for good. An in-flight call is failed first, in the
// same transaction, and its participants are told.
func (s *MomentService) Cancel(ctx context.Context, creatorID, momentID string) (*model.Moment, error) {
	now := s.clock()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	defer s.observe("moment_cancel", time.Now())

	var (
		cancelled  *model.Moment
		failedCall *model.Call
	)
	err := s.tx.WithTx(sctx, func(tx *sqlx.Tx) error {
		moments := s.moments.WithTx(tx)
		calls := s.calls.WithTx(tx)

		m, err := moments.FindByID(sctx, momentID)
		if err != nil {
			return err
		}
		if m == nil || m.CreatorID != creatorID {
			return apperrors.NotFound("Moment")
		}
		if m.Status.Terminal() {
			return apperrors.Expired("Moment")
		}

		if m.CurrentCallID != nil {
			failedCall, err = calls.Fail(sctx, *m.CurrentCallID, now)
			if err != nil {
				return err
			}
		}

		cancelled, err = moments.Cancel(sctx, momentID, creatorID, now)
		if err != nil {
			return err
		}
		if cancelled == nil {
			return apperrors.Conflict("Moment changed concurrently, retry")
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.FromStore(err)
	}

	log.Info().Str("momentId", momentID).Msg("moment cancelled")

	if failedCall != nil {
		audit.Log(ctx, audit.Event{
			Type:       audit.EventMomentCancelled,
			IdentityID: creatorID,
			MomentID:   momentID,
			CallID:     failedCall.ID,
		})
		s.metrics.RecordCallEnded(string(failedCall.Status), failedCall.Duration)
		s.events.PublishToIdentities(ctx, failedCall.Participants(), model.EventCallStatusUpdated, model.CallStatusPayload{
			CallID: failedCall.ID,
			Status: failedCall.Status,
		})
	}

	s.events.PublishMoment(ctx, cancelled.Category, model.EventMomentDeleted, model.MomentStatusPayload{
		MomentID: cancelled.ID,
		Category: cancelled.Category,
		Status:   cancelled.Status,
	})
	return cancelled, nil
}

func (s *MomentService) ListByCreator(ctx context.Context, filter model.MomentFilter) ([]model.Moment, error) {
	if filter.Category != "" && !filter.Category.ValidFilter() {
		return nil, apperrors.InvalidInput("category", "unknown category")
	}
	if !util.IsValidEnum(filter.Status, model.MomentStatuses) {
		return nil, apperrors.InvalidInput("status", "unknown status")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	moments, err := s.moments.FindByCreator(sctx, filter)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	return moments, nil
}

// FeedPage is one page of the Wall of Joy plus the total across all pages.
type FeedPage struct {
	Moments []model.FeedMoment
	Total   int
}

// Feed lists the Wall of Joy for a viewer, newest first.
func (s *MomentService) Feed(ctx context.Context, p FeedParams) (*FeedPage, error) {
	category := p.Category
	if category == "" {
		category = model.CategoryAll
	}
	if !category.ValidFilter() {
		return nil, apperrors.InvalidInput("category", "unknown category")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	now := s.clock()
	feed, err := s.moments.FindFeed(sctx, model.FeedFilter{
		ViewerID: p.ViewerID,
		Category: category,
		Now:      now,
		Limit:    p.Limit,
		Offset:   p.Offset,
	})
	if err != nil {
		return nil, apperrors.FromStore(err)
	}

	// The feed and the per-category counts share one visibility predicate.
	counts, err := s.moments.CountAvailableByCategory(sctx, p.ViewerID, now)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	total := 0
	for _, c := range counts {
		if category == model.CategoryAll || c.Category == category {
			total += c.Count
		}
	}
	return &FeedPage{Moments: feed, Total: total}, nil
}

func (s *MomentService) CategoryCounts(ctx context.Context, viewerID string) ([]model.CategoryCount, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	counts, err := s.moments.CountAvailableByCategory(sctx, viewerID, s.clock())
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	return counts, nil
}

// ExpireDue runs one expiry sweep and announces every moment it expired.
func (s *MomentService) ExpireDue(ctx context.Context) (int, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	defer s.observe("moment_expire", time.Now())

	refs, err := s.moments.ExpireDue(sctx, s.clock())
	if err != nil {
		return 0, apperrors.FromStore(err)
	}

	for _, ref := range refs {
		s.events.PublishMoment(ctx, ref.Category, model.EventMomentStatusChanged, model.MomentStatusPayload{
			MomentID: ref.ID,
			Category: ref.Category,
			Status:   model.MomentStatusExpired,
		})
	}
	s.metrics.RecordMomentsExpired(len(refs))
	return len(refs), nil
}

func (s *MomentService) findOwned(ctx context.Context, creatorID, momentID string) (*model.Moment, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	m, err := s.moments.FindByID(sctx, momentID)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	if m == nil || m.CreatorID != creatorID {
		return nil, apperrors.NotFound("Moment")
	}
	if m.Status.Terminal() || !m.ExpiresAt.After(s.clock()) {
		return nil, apperrors.Expired("Moment")
	}
	return m, nil
}

func validateMomentFields(category model.Category, subCategory, content string, languages []string, durationMinutes int) error {
	if !category.Valid() {
		return apperrors.InvalidInput("category", "must be one of wishes, motivation, songs, blessings, celebrations")
	}
	if strings.TrimSpace(subCategory) == "" {
		return apperrors.MissingRequired("subCategory")
	}
	if utf8.RuneCountInString(content) > config.MaxMomentContentLength {
		return apperrors.InvalidInput("content", fmt.Sprintf("must be at most %d characters", config.MaxMomentContentLength))
	}
	if len(languages) == 0 {
		return apperrors.MissingRequired("languages")
	}
	for _, lang := range languages {
		if !model.ValidLanguage(lang) {
			return apperrors.ValidationError("One or more selected languages are invalid")
		}
	}
	if !model.ValidDuration(durationMinutes) {
		return apperrors.InvalidInput("durationMinutes", "must be 30, 60, 90 or 120")
	}
	return nil
}

// uniqueLanguages drops repeated entries, keeping first-seen order.
func uniqueLanguages(languages []string) model.LanguageSet {
	seen := make(map[string]struct{}, len(languages))
	out := make(model.LanguageSet, 0, len(languages))
	for _, lang := range languages {
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	return out
}

func activationFor(scheduleType model.ScheduleType, scheduledTime *time.Time, now time.Time) (time.Time, error) {
	switch scheduleType {
	case model.ScheduleImmediate:
		return now, nil
	case model.ScheduleLater:
		if scheduledTime == nil || scheduledTime.IsZero() {
			return time.Time{}, apperrors.ValidationError("Scheduled time is required for later moments")
		}
		return scheduledTime.UTC(), nil
	default:
		return time.Time{}, apperrors.InvalidInput("scheduleType", "must be immediate or later")
	}
}

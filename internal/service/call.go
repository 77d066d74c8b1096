package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/jojo-app/realtime-server-go/internal/audit"
	"github.com/jojo-app/realtime-server-go/internal/config"
	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/metrics"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/repository"
	"github.com/jojo-app/realtime-server-go/internal/rtc"
	"github.com/jojo-app/realtime-server-go/internal/util"
)

// errClaimLost means another participant won the compare-and-swap for a
// candidate. The transaction is rolled back and the next candidate is tried.
var errClaimLost = errors.New("claim lost")

const defaultCandidateLimit = 5

type ClaimResult struct {
	Call   *model.Call
	Moment *model.Moment
}

// ReportInput describes why a participant reported the other side of a call.
type ReportInput struct {
	IssueType   model.IssueType
	Description string
}

type ReportResult struct {
	Call   *model.Call
	Report *model.Report
}

type HistoryPage struct {
	Calls      []model.Call
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// CallService matches participants with available moments and drives the
// call lifecycle.
type CallService struct {
	tx             Transactor
	moments        repository.MomentRepository
	calls          repository.CallRepository
	reports        repository.ReportRepository
	events         EventPublisher
	tokens         rtc.TokenIssuer
	candidateLimit int
	options
}

func NewCallService(
	tx Transactor,
	moments repository.MomentRepository,
	calls repository.CallRepository,
	reports repository.ReportRepository,
	events EventPublisher,
	tokens rtc.TokenIssuer,
	candidateLimit int,
	opts ...Option,
) *CallService {
	if candidateLimit <= 0 {
		candidateLimit = defaultCandidateLimit
	}
	return &CallService{
		tx:             tx,
		moments:        moments,
		calls:          calls,
		reports:        reports,
		events:         events,
		tokens:         tokens,
		candidateLimit: candidateLimit,
		options:        newOptions(opts),
	}
}

// Claim reserves one available moment in category for the participant and
// opens a connected call on it. Candidates are tried oldest first; losing a
// race on one moves on to the next.
func (s *CallService) Claim(ctx context.Context, participantID string, category model.Category) (*ClaimResult, error) {
	if !category.ValidFilter() {
		return nil, apperrors.InvalidInput("category", "unknown category")
	}
	defer s.observe("call_claim", time.Now())

	now := s.clock()
	sctx, cancel := s.storeCtx(ctx)
	candidates, err := s.moments.FindClaimCandidates(sctx, model.ClaimFilter{
		ParticipantID: participantID,
		Category:      category,
		Now:           now,
		Limit:         s.candidateLimit,
	})
	cancel()
	if err != nil {
		s.metrics.RecordClaim(metrics.ClaimError)
		log.Error().Err(err).Str("participantId", participantID).Msg("failed to list claim candidates")
		return nil, apperrors.FromStore(err)
	}

	for _, candidate := range candidates {
		result, err := s.claimOne(ctx, participantID, &candidate, now)
		if errors.Is(err, errClaimLost) {
			log.Debug().Str("momentId", candidate.ID).Msg("claim lost to another participant")
			continue
		}
		if err != nil {
			s.metrics.RecordClaim(metrics.ClaimError)
			return nil, apperrors.FromStore(err)
		}

		s.metrics.RecordClaim(metrics.ClaimSuccess)
		log.Info().
			Str("callId", result.Call.ID).
			Str("momentId", result.Moment.ID).
			Str("creatorId", result.Call.CreatorID).
			Str("participantId", participantID).
			Msg("call connected")

		s.announceClaim(ctx, result)
		return result, nil
	}

	s.metrics.RecordClaim(metrics.ClaimNoAvailability)
	return nil, apperrors.NoAvailability(string(category))
}

func (s *CallService) claimOne(ctx context.Context, participantID string, candidate *model.Moment, now time.Time) (*ClaimResult, error) {
	callID := s.newID()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	var result ClaimResult
	err := s.tx.WithTx(sctx, func(tx *sqlx.Tx) error {
		moments := s.moments.WithTx(tx)
		calls := s.calls.WithTx(tx)

		won, err := moments.Claim(sctx, candidate.ID, callID, participantID, now)
		if err != nil {
			return err
		}
		if !won {
			return errClaimLost
		}

		call, err := calls.Create(sctx, model.CreateCallParams{
			ID:            callID,
			MomentID:      candidate.ID,
			CreatorID:     candidate.CreatorID,
			ParticipantID: participantID,
			Category:      candidate.Category,
			Now:           now,
		})
		if err != nil {
			return err
		}

		connected, err := calls.MarkConnected(sctx, call.ID, now)
		if err != nil {
			return err
		}
		if connected == nil {
			return apperrors.Conflict("Call left the initiated state during claim")
		}

		if err := moments.IncrementCallCount(sctx, candidate.ID, now); err != nil {
			return err
		}
		moment, err := moments.FindByID(sctx, candidate.ID)
		if err != nil {
			return err
		}

		result = ClaimResult{Call: connected, Moment: moment}
		return nil
	})
	if err == nil {
		return &result, nil
	}
	if errors.Is(err, errClaimLost) {
		return nil, err
	}

	// A commit that timed out may still have landed. Both writes below only
	// match rows owned by callID, so they are no-ops otherwise.
	s.compensateClaim(ctx, candidate.ID, callID)
	return nil, err
}

func (s *CallService) compensateClaim(ctx context.Context, momentID, callID string) {
	cctx, cancel := s.detachedStoreCtx(ctx)
	defer cancel()

	now := s.clock()
	if _, err := s.calls.Fail(cctx, callID, now); err != nil {
		log.Error().Err(err).Str("callId", callID).Msg("failed to fail call during claim rollback")
	}
	if _, err := s.moments.Release(cctx, momentID, callID, now); err != nil {
		log.Error().Err(err).Str("momentId", momentID).Str("callId", callID).Msg("failed to release moment during claim rollback")
		return
	}
	log.Warn().Str("momentId", momentID).Str("callId", callID).Msg("claim rolled back")
}

func (s *CallService) announceClaim(ctx context.Context, result *ClaimResult) {
	call := result.Call
	s.events.PublishToIdentity(ctx, call.CreatorID, model.EventCallInitiated, model.CallInitiatedPayload{
		Call:    call,
		Moment:  result.Moment,
		Channel: call.ID,
	})
	s.events.PublishToIdentities(ctx, call.Participants(), model.EventCallStatusUpdated, model.CallStatusPayload{
		CallID: call.ID,
		Status: call.Status,
	})
	if result.Moment != nil {
		s.events.PublishMoment(ctx, result.Moment.Category, model.EventMomentUpdated, result.Moment)
	}
}

// EndCall completes an in-flight call for one of its participants. The
// recorded duration never exceeds the call cap.
func (s *CallService) EndCall(ctx context.Context, identityID, callID string) (*model.Call, error) {
	if _, err := s.findInvolved(ctx, identityID, callID); err != nil {
		return nil, err
	}
	return s.finish(ctx, callID, "call_end", func(ctx context.Context, _ *sqlx.Tx, calls repository.CallRepository, call *model.Call, now time.Time) (*model.Call, error) {
		start := call.CreatedAt
		if call.StartTime != nil {
			start = *call.StartTime
		}
		return calls.Complete(ctx, call.ID, now, model.CappedDuration(start, now, config.MaxCallDuration))
	})
}

// FailCall marks an in-flight call failed on behalf of the media provider.
func (s *CallService) FailCall(ctx context.Context, callID string) (*model.Call, error) {
	call, err := s.finish(ctx, callID, "call_fail", func(ctx context.Context, _ *sqlx.Tx, calls repository.CallRepository, call *model.Call, now time.Time) (*model.Call, error) {
		return calls.Fail(ctx, call.ID, now)
	})
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.Event{
		Type:     audit.EventCallFailed,
		MomentID: call.MomentID,
		CallID:   call.ID,
	})
	return call, nil
}

// ReportCall files a report against the other participant. An in-flight call
// ends as reported in the same transaction; a call that already ended keeps
// its status. Each participant may report a call once.
func (s *CallService) ReportCall(ctx context.Context, identityID, callID string, in ReportInput) (*ReportResult, error) {
	in, err := validateReport(in)
	if err != nil {
		return nil, err
	}
	call, err := s.findInvolved(ctx, identityID, callID)
	if err != nil {
		return nil, err
	}

	var report *model.Report
	fileReport := func(ctx context.Context, tx *sqlx.Tx, call *model.Call, now time.Time) error {
		reports := s.reports
		if tx != nil {
			reports = reports.WithTx(tx)
		}
		created, err := reports.Create(ctx, model.CreateReportParams{
			ID:           s.newID(),
			CallID:       call.ID,
			ReportedBy:   identityID,
			ReportedUser: call.OtherParty(identityID),
			IssueType:    in.IssueType,
			Description:  in.Description,
			Now:          now,
		})
		if err != nil {
			return err
		}
		if created == nil {
			return apperrors.AlreadyExists("Report")
		}
		report = created
		return nil
	}

	if call.Status.InFlight() {
		call, err = s.finish(ctx, callID, "call_report", func(ctx context.Context, tx *sqlx.Tx, calls repository.CallRepository, call *model.Call, now time.Time) (*model.Call, error) {
			reported, err := calls.Report(ctx, call.ID, string(in.IssueType), now)
			if err != nil || reported == nil {
				return reported, err
			}
			return reported, fileReport(ctx, tx, call, now)
		})
	} else {
		err = s.fileAfterEnd(ctx, call, fileReport)
	}
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:       audit.EventCallReported,
		IdentityID: identityID,
		MomentID:   call.MomentID,
		CallID:     call.ID,
		Details: map[string]interface{}{
			"issueType":    string(in.IssueType),
			"reportedUser": report.ReportedUser,
		},
	})
	return &ReportResult{Call: call, Report: report}, nil
}

func (s *CallService) fileAfterEnd(ctx context.Context, call *model.Call, file func(context.Context, *sqlx.Tx, *model.Call, time.Time) error) error {
	defer s.observe("call_report", time.Now())

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := file(sctx, nil, call, s.clock()); err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Str("callId", call.ID).Msg("failed to file report")
		}
		return apperrors.FromStore(err)
	}
	return nil
}

func validateReport(in ReportInput) (ReportInput, error) {
	if in.IssueType == "" {
		return in, apperrors.MissingRequired("issueType")
	}
	if !util.IsValidEnum(in.IssueType, model.IssueTypes) {
		return in, apperrors.InvalidInput("issueType", "unknown issue type")
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return in, apperrors.MissingRequired("description")
	}
	n := utf8.RuneCountInString(in.Description)
	if n < model.MinReportDescription || n > model.MaxReportDescription {
		return in, apperrors.InvalidInput("description", fmt.Sprintf("must be between %d and %d characters", model.MinReportDescription, model.MaxReportDescription))
	}
	return in, nil
}

type finishFunc func(ctx context.Context, tx *sqlx.Tx, calls repository.CallRepository, call *model.Call, now time.Time) (*model.Call, error)

// finish applies a terminal call transition and releases the moment in one
// transaction. The moment becomes available again only while it is still
// active and unexpired.
func (s *CallService) finish(ctx context.Context, callID, op string, apply finishFunc) (*model.Call, error) {
	defer s.observe(op, time.Now())

	now := s.clock()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	var (
		finished *model.Call
		moment   *model.Moment
	)
	err := s.tx.WithTx(sctx, func(tx *sqlx.Tx) error {
		moments := s.moments.WithTx(tx)
		calls := s.calls.WithTx(tx)

		call, err := calls.FindByID(sctx, callID)
		if err != nil {
			return err
		}
		if call == nil {
			return apperrors.NotFound("Call")
		}
		if !call.Status.InFlight() {
			return apperrors.Conflict("Call is not in progress")
		}

		finished, err = apply(sctx, tx, calls, call, now)
		if err != nil {
			return err
		}
		if finished == nil {
			return apperrors.Conflict("Call is not in progress")
		}

		if _, err := moments.Release(sctx, call.MomentID, call.ID, now); err != nil {
			return err
		}
		moment, err = moments.FindByID(sctx, call.MomentID)
		return err
	})
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Str("callId", callID).Str("op", op).Msg("failed to finish call")
		}
		return nil, apperrors.FromStore(err)
	}

	log.Info().
		Str("callId", finished.ID).
		Str("momentId", finished.MomentID).
		Str("status", string(finished.Status)).
		Int("duration", finished.Duration).
		Msg("call finished")

	s.metrics.RecordCallEnded(string(finished.Status), finished.Duration)
	s.events.PublishToIdentities(ctx, finished.Participants(), model.EventCallStatusUpdated, model.CallStatusPayload{
		CallID: finished.ID,
		Status: finished.Status,
	})
	if moment != nil {
		s.events.PublishMoment(ctx, moment.Category, model.EventMomentUpdated, moment)
	}
	return finished, nil
}

// History lists completed calls involving identityID, newest first.
func (s *CallService) History(ctx context.Context, identityID string, page, limit int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	calls, err := s.calls.FindHistory(sctx, identityID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	total, err := s.calls.CountHistory(sctx, identityID)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}

	return &HistoryPage{
		Calls:      calls,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// IssueToken returns a media token for a participant of an in-flight call.
// The channel is the call id.
func (s *CallService) IssueToken(ctx context.Context, identityID, callID string) (*rtc.Token, error) {
	call, err := s.findInvolved(ctx, identityID, callID)
	if err != nil {
		return nil, err
	}
	if !call.Status.InFlight() {
		return nil, apperrors.Conflict("Call is not in progress")
	}

	token, err := s.tokens.IssueToken(call.ID, identityID, rtc.RolePublisher)
	if err != nil {
		log.Error().Err(err).Str("callId", call.ID).Msg("failed to issue rtc token")
		return nil, apperrors.External("rtc", err)
	}
	return token, nil
}

func (s *CallService) findInvolved(ctx context.Context, identityID, callID string) (*model.Call, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	call, err := s.calls.FindByID(sctx, callID)
	if err != nil {
		return nil, apperrors.FromStore(err)
	}
	if call == nil || !call.Involves(identityID) {
		return nil, apperrors.NotFound("Call")
	}
	return call, nil
}

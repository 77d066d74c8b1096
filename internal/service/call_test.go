package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/rtc"
)

func TestClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("connects participant and reserves the moment", func(t *testing.T) {
		h := newHarness(t)
		m := h.createMoment(t, "creator", model.CategoryWishes, 60)
		h.events.reset()

		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)

		assert.Equal(t, model.CallStatusConnected, res.Call.Status)
		require.NotNil(t, res.Call.StartTime)
		assert.True(t, res.Call.StartTime.Equal(h.clock.Now()))
		assert.Equal(t, "creator", res.Call.CreatorID)
		assert.Equal(t, "participant", res.Call.ParticipantID)

		assert.False(t, res.Moment.IsAvailable)
		require.NotNil(t, res.Moment.CurrentCallID)
		assert.Equal(t, res.Call.ID, *res.Moment.CurrentCallID)
		assert.Equal(t, 1, res.Moment.CallCount)
		assert.Equal(t, m.ID, res.Moment.ID)

		initiated, ok := h.events.last(model.EventCallInitiated)
		require.True(t, ok)
		assert.Equal(t, []string{"creator"}, initiated.To)
		assert.Equal(t, res.Call.ID, initiated.Payload.(model.CallInitiatedPayload).Channel)

		status, ok := h.events.last(model.EventCallStatusUpdated)
		require.True(t, ok)
		assert.ElementsMatch(t, []string{"creator", "participant"}, status.To)
		assert.Equal(t, model.CallStatusPayload{CallID: res.Call.ID, Status: model.CallStatusConnected}, status.Payload)
	})

	t.Run("all matches any category", func(t *testing.T) {
		h := newHarness(t)
		h.createMoment(t, "creator", model.CategoryCelebrations, 60)

		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryAll)
		require.NoError(t, err)
		assert.Equal(t, model.CategoryCelebrations, res.Call.Category)
	})

	t.Run("never claims own moment", func(t *testing.T) {
		h := newHarness(t)
		h.createMoment(t, "creator", model.CategoryWishes, 60)

		_, err := h.callSvc.Claim(ctx, "creator", model.CategoryWishes)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNoAvailability))
	})

	t.Run("scheduled moment is not claimable before activation", func(t *testing.T) {
		h := newHarness(t)
		at := h.clock.Now().Add(time.Hour)
		in := validInput()
		in.ScheduleType = model.ScheduleLater
		in.ScheduledTime = &at
		_, err := h.momentSvc.Create(ctx, "creator", in)
		require.NoError(t, err)

		_, err = h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNoAvailability))

		h.clock.Advance(time.Hour)
		_, err = h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		assert.NoError(t, err)
	})

	t.Run("oldest waiting moment first", func(t *testing.T) {
		h := newHarness(t)
		first := h.createMoment(t, "a", model.CategorySongs, 60)
		h.clock.Advance(time.Second)
		h.createMoment(t, "b", model.CategorySongs, 60)

		res, err := h.callSvc.Claim(ctx, "participant", model.CategorySongs)
		require.NoError(t, err)
		assert.Equal(t, first.ID, res.Moment.ID)
	})

	t.Run("unknown category", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.callSvc.Claim(ctx, "participant", "gossip")
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
	})
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.createMoment(t, "creator", model.CategoryWishes, 60)

	const participants = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for i := 0; i < participants; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := h.callSvc.Claim(ctx, id, model.CategoryWishes)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, res.Call.ID)
				return
			}
			if apperrors.Is(err, apperrors.ErrCodeNoAvailability) {
				losers++
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, participants-1, losers)

	reloaded := h.reload(t, m.ID)
	require.NotNil(t, reloaded.CurrentCallID)
	assert.Equal(t, winners[0], *reloaded.CurrentCallID)
	assert.Equal(t, 1, reloaded.CallCount)
}

func TestEndCall(t *testing.T) {
	ctx := context.Background()

	t.Run("duration is capped and moment becomes available again", func(t *testing.T) {
		h := newHarness(t)
		m := h.createMoment(t, "creator", model.CategoryWishes, 120)
		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)

		h.clock.Advance(5000 * time.Second)
		h.events.reset()

		call, err := h.callSvc.EndCall(ctx, "participant", res.Call.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CallStatusCompleted, call.Status)
		assert.Equal(t, 30, call.Duration)
		require.NotNil(t, call.EndTime)

		reloaded := h.reload(t, m.ID)
		assert.True(t, reloaded.IsAvailable)
		assert.Nil(t, reloaded.CurrentCallID)

		assert.Equal(t, []string{model.EventCallStatusUpdated, model.EventMomentUpdated}, h.events.types())
	})

	t.Run("short call keeps its real duration", func(t *testing.T) {
		h := newHarness(t)
		h.createMoment(t, "creator", model.CategoryWishes, 60)
		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)

		h.clock.Advance(12 * time.Second)
		call, err := h.callSvc.EndCall(ctx, "creator", res.Call.ID)
		require.NoError(t, err)
		assert.Equal(t, 12, call.Duration)
	})

	t.Run("moment past expiry stays unavailable", func(t *testing.T) {
		h := newHarness(t)
		m := h.createMoment(t, "creator", model.CategoryWishes, 30)
		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)

		h.clock.Advance(31 * time.Minute)
		_, err = h.momentSvc.ExpireDue(ctx)
		require.NoError(t, err)

		_, err = h.callSvc.EndCall(ctx, "participant", res.Call.ID)
		require.NoError(t, err)

		reloaded := h.reload(t, m.ID)
		assert.Equal(t, model.MomentStatusExpired, reloaded.Status)
		assert.False(t, reloaded.IsAvailable)
		assert.Nil(t, reloaded.CurrentCallID)
	})

	t.Run("outsiders and repeat ends", func(t *testing.T) {
		h := newHarness(t)
		h.createMoment(t, "creator", model.CategoryWishes, 60)
		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)

		_, err = h.callSvc.EndCall(ctx, "stranger", res.Call.ID)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))

		_, err = h.callSvc.EndCall(ctx, "participant", res.Call.ID)
		require.NoError(t, err)
		_, err = h.callSvc.EndCall(ctx, "participant", res.Call.ID)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeConflict))

		_, err = h.callSvc.EndCall(ctx, "participant", "missing")
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	})
}

func TestReportAndFailCall(t *testing.T) {
	ctx := context.Background()

	t.Run("report releases the moment", func(t *testing.T) {
		h := newHarness(t)
		m := h.createMoment(t, "creator", model.CategoryWishes, 60)
		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)

		reported, err := h.callSvc.ReportCall(ctx, "participant", res.Call.ID, ReportInput{
			IssueType:   model.IssueHarassment,
			Description: "  kept shouting at me  ",
		})
		require.NoError(t, err)
		assert.Equal(t, model.CallStatusReported, reported.Call.Status)
		require.NotNil(t, reported.Call.ReportReason)
		assert.Equal(t, "harassment", *reported.Call.ReportReason)
		assert.True(t, h.reload(t, m.ID).IsAvailable)

		require.NotNil(t, reported.Report)
		assert.Equal(t, "participant", reported.Report.ReportedBy)
		assert.Equal(t, "creator", reported.Report.ReportedUser)
		assert.Equal(t, model.IssueHarassment, reported.Report.IssueType)
		assert.Equal(t, "kept shouting at me", reported.Report.Description)
		assert.Equal(t, model.ReportPending, reported.Report.Status)
	})

	t.Run("report input is validated", func(t *testing.T) {
		h := newHarness(t)
		h.createMoment(t, "creator", model.CategoryWishes, 60)
		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)

		cases := []struct {
			name string
			in   ReportInput
			code apperrors.ErrorCode
		}{
			{"missing issue type", ReportInput{Description: "long enough text"}, apperrors.ErrCodeMissingRequired},
			{"unknown issue type", ReportInput{IssueType: "rude", Description: "long enough text"}, apperrors.ErrCodeInvalidInput},
			{"blank description", ReportInput{IssueType: model.IssueSpam, Description: "   "}, apperrors.ErrCodeMissingRequired},
			{"short description", ReportInput{IssueType: model.IssueSpam, Description: "too short"}, apperrors.ErrCodeInvalidInput},
			{"long description", ReportInput{IssueType: model.IssueSpam, Description: strings.Repeat("x", 1001)}, apperrors.ErrCodeInvalidInput},
		}
		for _, tc := range cases {
			_, err := h.callSvc.ReportCall(ctx, "participant", res.Call.ID, tc.in)
			assert.True(t, apperrors.Is(err, tc.code), tc.name)
		}

		reports, err := h.reports.FindByCall(ctx, res.Call.ID)
		require.NoError(t, err)
		assert.Empty(t, reports)
		call, err := h.calls.FindByID(ctx, res.Call.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CallStatusConnected, call.Status, "rejected reports leave the call running")
	})

	t.Run("ended calls can be reported once per participant", func(t *testing.T) {
		h := newHarness(t)
		h.createMoment(t, "creator", model.CategoryWishes, 60)
		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)
		_, err = h.callSvc.EndCall(ctx, "participant", res.Call.ID)
		require.NoError(t, err)

		in := ReportInput{IssueType: model.IssueFakeProfile, Description: strings.Repeat("y", 1000)}
		reported, err := h.callSvc.ReportCall(ctx, "creator", res.Call.ID, in)
		require.NoError(t, err)
		assert.Equal(t, model.CallStatusCompleted, reported.Call.Status, "an ended call keeps its status")
		assert.Equal(t, "participant", reported.Report.ReportedUser)

		_, err = h.callSvc.ReportCall(ctx, "creator", res.Call.ID, in)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeAlreadyExists))

		_, err = h.callSvc.ReportCall(ctx, "stranger", res.Call.ID, in)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))

		other, err := h.callSvc.ReportCall(ctx, "participant", res.Call.ID, in)
		require.NoError(t, err)
		assert.Equal(t, "creator", other.Report.ReportedUser)
	})

	t.Run("external failure releases the moment", func(t *testing.T) {
		h := newHarness(t)
		m := h.createMoment(t, "creator", model.CategoryWishes, 60)
		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)

		call, err := h.callSvc.FailCall(ctx, res.Call.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CallStatusFailed, call.Status)
		assert.True(t, h.reload(t, m.ID).IsAvailable)

		_, err = h.callSvc.FailCall(ctx, res.Call.ID)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeConflict))
	})
}

func TestHistoryAndToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.createMoment(t, "creator", model.CategoryWishes, 120)

	var last *ClaimResult
	for i := 0; i < 3; i++ {
		res, err := h.callSvc.Claim(ctx, "participant", model.CategoryWishes)
		require.NoError(t, err)
		last = res

		tok, err := h.callSvc.IssueToken(ctx, "creator", res.Call.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Call.ID, tok.ChannelName)
		assert.Equal(t, rtc.RolePublisher, tok.Role)

		h.clock.Advance(10 * time.Second)
		_, err = h.callSvc.EndCall(ctx, "participant", res.Call.ID)
		require.NoError(t, err)
	}

	page, err := h.callSvc.History(ctx, "creator", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Calls, 2)
	assert.Equal(t, last.Call.ID, page.Calls[0].ID)

	page, err = h.callSvc.History(ctx, "stranger", 0, 0)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Equal(t, 1, page.Page)

	_, err = h.callSvc.IssueToken(ctx, "creator", last.Call.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConflict))
	_, err = h.callSvc.IssueToken(ctx, "stranger", last.Call.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/jojo-app/realtime-server-go/internal/database"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/repository"
)

// inlineTx runs the function without a real transaction; mock repositories
// ignore the tx handle.
type inlineTx struct{}

func (inlineTx) WithTx(_ context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type mockMomentRepo struct {
	mock.Mock
}

func (m *mockMomentRepo) WithTx(*sqlx.Tx) repository.MomentRepository { return m }

func (m *mockMomentRepo) Create(ctx context.Context, params model.CreateMomentParams) (*model.Moment, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Moment), args.Error(1)
}

func (m *mockMomentRepo) FindByID(ctx context.Context, id string) (*model.Moment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Moment), args.Error(1)
}

func (m *mockMomentRepo) FindByCreator(ctx context.Context, filter model.MomentFilter) ([]model.Moment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Moment), args.Error(1)
}

func (m *mockMomentRepo) FindClaimCandidates(ctx context.Context, filter model.ClaimFilter) ([]model.Moment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Moment), args.Error(1)
}

func (m *mockMomentRepo) FindFeed(ctx context.Context, filter model.FeedFilter) ([]model.FeedMoment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FeedMoment), args.Error(1)
}

func (m *mockMomentRepo) CountAvailableByCategory(ctx context.Context, viewerID string, now time.Time) ([]model.CategoryCount, error) {
	args := m.Called(ctx, viewerID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CategoryCount), args.Error(1)
}

func (m *mockMomentRepo) UpdateDetails(ctx context.Context, moment *model.Moment, now time.Time) (*model.Moment, error) {
	args := m.Called(ctx, moment, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Moment), args.Error(1)
}

func (m *mockMomentRepo) Claim(ctx context.Context, momentID, callID, participantID string, now time.Time) (bool, error) {
	args := m.Called(ctx, momentID, callID, participantID, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockMomentRepo) Release(ctx context.Context, momentID, callID string, now time.Time) (bool, error) {
	args := m.Called(ctx, momentID, callID, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockMomentRepo) IncrementCallCount(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *mockMomentRepo) Pause(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error) {
	args := m.Called(ctx, id, creatorID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Moment), args.Error(1)
}

func (m *mockMomentRepo) Resume(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error) {
	args := m.Called(ctx, id, creatorID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Moment), args.Error(1)
}

func (m *mockMomentRepo) Cancel(ctx context.Context, id, creatorID string, now time.Time) (*model.Moment, error) {
	args := m.Called(ctx, id, creatorID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Moment), args.Error(1)
}

func (m *mockMomentRepo) ExpireDue(ctx context.Context, now time.Time) ([]model.MomentRef, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MomentRef), args.Error(1)
}

func (m *mockMomentRepo) IncrementHearts(ctx context.Context, id string, now time.Time) (*repository.HeartCount, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.HeartCount), args.Error(1)
}

func (m *mockMomentRepo) DecrementHearts(ctx context.Context, id string, now time.Time) (*repository.HeartCount, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.HeartCount), args.Error(1)
}

type mockCallRepo struct {
	mock.Mock
}

func (m *mockCallRepo) WithTx(*sqlx.Tx) repository.CallRepository { return m }

func (m *mockCallRepo) Create(ctx context.Context, params model.CreateCallParams) (*model.Call, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) FindByID(ctx context.Context, id string) (*model.Call, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) FindInFlightByMoment(ctx context.Context, momentID string) (*model.Call, error) {
	args := m.Called(ctx, momentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) FindHistory(ctx context.Context, identityID string, limit, offset int) ([]model.Call, error) {
	args := m.Called(ctx, identityID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Call), args.Error(1)
}

func (m *mockCallRepo) CountHistory(ctx context.Context, identityID string) (int, error) {
	args := m.Called(ctx, identityID)
	return args.Int(0), args.Error(1)
}

func (m *mockCallRepo) MarkConnected(ctx context.Context, id string, start time.Time) (*model.Call, error) {
	args := m.Called(ctx, id, start)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) Complete(ctx context.Context, id string, end time.Time, duration int) (*model.Call, error) {
	args := m.Called(ctx, id, end, duration)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) Fail(ctx context.Context, id string, end time.Time) (*model.Call, error) {
	args := m.Called(ctx, id, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) Report(ctx context.Context, id, reason string, end time.Time) (*model.Call, error) {
	args := m.Called(ctx, id, reason, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

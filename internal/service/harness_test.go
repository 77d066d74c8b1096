package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jojo-app/realtime-server-go/internal/database"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/repository"
	"github.com/jojo-app/realtime-server-go/internal/rtc"
	"github.com/jojo-app/realtime-server-go/internal/sse"
	"github.com/jojo-app/realtime-server-go/internal/testfixtures"
)

const (
	testAppID       = "970ca35de60c44645bbae8a215061b33"
	testCertificate = "5cfd2fd1755d40ecb72977518be15d3b"
)

type publishedEvent struct {
	Kind     string // moment, identity or identities
	Category model.Category
	To       []string
	Type     string
	Payload  any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) record(e publishedEvent) sse.PublishResult {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return sse.PublishResult{}
}

func (p *recordingPublisher) PublishMoment(_ context.Context, category model.Category, eventType string, payload any) sse.PublishResult {
	return p.record(publishedEvent{Kind: "moment", Category: category, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) PublishToIdentity(_ context.Context, identityID, eventType string, payload any) sse.PublishResult {
	return p.record(publishedEvent{Kind: "identity", To: []string{identityID}, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) PublishToIdentities(_ context.Context, identityIDs []string, eventType string, payload any) sse.PublishResult {
	return p.record(publishedEvent{Kind: "identities", To: identityIDs, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

func (p *recordingPublisher) last(eventType string) (publishedEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == eventType {
			return p.events[i], true
		}
	}
	return publishedEvent{}, false
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// harness wires the services to a migrated SQLite database.
type harness struct {
	db      *database.DB
	moments repository.MomentRepository
	calls   repository.CallRepository
	hearts  repository.HeartRepository
	reviews repository.ReviewRepository
	reports repository.ReportRepository
	events  *recordingPublisher
	clock   *testfixtures.Clock

	momentSvc *MomentService
	callSvc   *CallService
	heartSvc  *HeartService
	reviewSvc *ReviewService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testfixtures.NewSQLiteDB(t)
	h := &harness{
		db:      db,
		moments: repository.NewMomentRepository(db.DB),
		calls:   repository.NewCallRepository(db.DB),
		hearts:  repository.NewHeartRepository(db.DB),
		reviews: repository.NewReviewRepository(db.DB),
		reports: repository.NewReportRepository(db.DB),
		events:  &recordingPublisher{},
		clock:   testfixtures.NewClock(time.Time{}),
	}
	opts := []Option{WithClock(h.clock.NowFunc())}
	issuer := rtc.NewAgoraIssuer(testAppID, testCertificate, time.Hour).WithClock(h.clock.NowFunc())

	h.momentSvc = NewMomentService(db, h.moments, h.calls, h.events, opts...)
	h.callSvc = NewCallService(db, h.moments, h.calls, h.reports, h.events, issuer, 5, opts...)
	h.heartSvc = NewHeartService(db, h.moments, h.hearts, h.events, opts...)
	h.reviewSvc = NewReviewService(h.calls, h.reviews, opts...)
	return h
}

func (h *harness) createMoment(t *testing.T, creatorID string, category model.Category, minutes int) *model.Moment {
	t.Helper()
	m, err := h.momentSvc.Create(context.Background(), creatorID, CreateMomentInput{
		Category:        category,
		SubCategory:     "birthday",
		Content:         "hello there",
		Languages:       []string{"english"},
		ScheduleType:    model.ScheduleImmediate,
		DurationMinutes: minutes,
	})
	require.NoError(t, err)
	return m
}

func (h *harness) reload(t *testing.T, momentID string) *model.Moment {
	t.Helper()
	m, err := h.moments.FindByID(context.Background(), momentID)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

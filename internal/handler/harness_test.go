package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jojo-app/realtime-server-go/internal/identity"
	"github.com/jojo-app/realtime-server-go/internal/middleware"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/registry"
	"github.com/jojo-app/realtime-server-go/internal/repository"
	"github.com/jojo-app/realtime-server-go/internal/rtc"
	"github.com/jojo-app/realtime-server-go/internal/service"
	"github.com/jojo-app/realtime-server-go/internal/sse"
	"github.com/jojo-app/realtime-server-go/internal/testfixtures"
)

const (
	testJWTSecret      = "handler-test-secret"
	testInternalSecret = "internal-test-secret"
	testAppID          = "970ca35de60c44645bbae8a215061b33"
	testCertificate    = "5cfd2fd1755d40ecb72977518be15d3b"
)

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	router   http.Handler
	broker   *sse.Broker
	verifier *identity.JWTVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testfixtures.NewSQLiteDB(t)
	moments := repository.NewMomentRepository(db.DB)
	calls := repository.NewCallRepository(db.DB)
	hearts := repository.NewHeartRepository(db.DB)
	reviews := repository.NewReviewRepository(db.DB)
	reports := repository.NewReportRepository(db.DB)

	broker := sse.NewBroker(registry.New())
	t.Cleanup(broker.Close)

	verifier := identity.NewJWTVerifier(testJWTSecret)
	issuer := rtc.NewAgoraIssuer(testAppID, testCertificate, time.Hour)

	momentSvc := service.NewMomentService(db, moments, calls, broker)
	callSvc := service.NewCallService(db, moments, calls, reports, broker, issuer, 5)
	heartSvc := service.NewHeartService(db, moments, hearts, broker)
	reviewSvc := service.NewReviewService(calls, reviews)

	router := NewRouter(RouterDeps{
		Events:         NewEventsHandler(broker, identity.NewResolver(verifier)),
		Moments:        NewMomentHandler(momentSvc),
		Calls:          NewCallHandler(callSvc),
		Wall:           NewWallHandler(momentSvc, heartSvc),
		Reviews:        NewReviewHandler(reviewSvc),
		Health:         NewHealthHandler(db),
		Auth:           middleware.NewAuthMiddleware(verifier),
		RateLimit:      middleware.NewRateLimitMiddleware(middleware.NewMemoryLimiter(), 1000, "api"),
		InternalSecret: middleware.NewInternalSecretMiddleware(testInternalSecret),
	})

	return &testServer{router: router, broker: broker, verifier: verifier}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.verifier.Sign(userID, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request as userID. An empty userID sends no credential.
func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createMoment(t *testing.T, userID string, category model.Category) model.Moment {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/v1/moments", userID, map[string]any{
		"category":        category,
		"subCategory":     "birthday",
		"content":         "happy birthday to you",
		"languages":       []string{"english"},
		"durationMinutes": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Moment model.Moment `json:"moment"`
	}
	decode(t, rec, &resp)
	return resp.Moment
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	decode(t, rec, &resp)
	return resp.Code
}

var errPingFailed = errors.New("connection refused")

func newRequest(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(s *testServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func serveHandler(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/rtc"
)

type claimResponse struct {
	Call    model.Call   `json:"call"`
	Moment  model.Moment `json:"moment"`
	Channel string       `json:"channel"`
}

func claim(t *testing.T, s *testServer, userID string, body any) claimResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/calls", userID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp claimResponse
	decode(t, rec, &resp)
	return resp
}

func TestCallRoutes(t *testing.T) {
	t.Run("claims a moment in any category by default", func(t *testing.T) {
		s := newTestServer(t)
		m := s.createMoment(t, "creator", model.CategorySongs)

		resp := claim(t, s, "caller", nil)

		assert.Equal(t, m.ID, resp.Moment.ID)
		assert.False(t, resp.Moment.IsAvailable)
		assert.Equal(t, model.CallStatusConnected, resp.Call.Status)
		assert.Equal(t, "caller", resp.Call.ParticipantID)
		assert.Equal(t, resp.Call.ID, resp.Channel)
	})

	t.Run("reports no availability", func(t *testing.T) {
		s := newTestServer(t)
		s.createMoment(t, "creator", model.CategorySongs)

		rec := s.do(t, http.MethodPost, "/v1/calls", "caller", map[string]any{"category": "wishes"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NO_AVAILABILITY", errorCode(t, rec))

		rec = s.do(t, http.MethodPost, "/v1/calls", "creator", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "a creator never claims their own moment")
	})

	t.Run("ends a call and frees the moment", func(t *testing.T) {
		s := newTestServer(t)
		s.createMoment(t, "creator", model.CategoryWishes)
		resp := claim(t, s, "caller", map[string]any{"category": "wishes"})

		rec := s.do(t, http.MethodPost, "/v1/calls/"+resp.Call.ID+"/end", "creator", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var ended struct {
			Call model.Call `json:"call"`
		}
		decode(t, rec, &ended)
		assert.Equal(t, model.CallStatusCompleted, ended.Call.Status)
		assert.NotNil(t, ended.Call.EndTime)

		rec = s.do(t, http.MethodPost, "/v1/calls/"+resp.Call.ID+"/end", "caller", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		again := claim(t, s, "another-caller", nil)
		assert.Equal(t, resp.Moment.ID, again.Moment.ID)
	})

	t.Run("outsiders cannot see a call", func(t *testing.T) {
		s := newTestServer(t)
		s.createMoment(t, "creator", model.CategoryWishes)
		resp := claim(t, s, "caller", nil)

		for _, path := range []string{"/end", "/report"} {
			rec := s.do(t, http.MethodPost, "/v1/calls/"+resp.Call.ID+path, "outsider", map[string]any{"issueType": "spam", "description": "sent me links"})
			assert.Equal(t, http.StatusNotFound, rec.Code, path)
		}
		rec := s.do(t, http.MethodGet, "/v1/calls/"+resp.Call.ID+"/token", "outsider", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("report files an issue against the other side", func(t *testing.T) {
		s := newTestServer(t)
		s.createMoment(t, "creator", model.CategoryWishes)
		resp := claim(t, s, "caller", nil)
		path := "/v1/calls/" + resp.Call.ID + "/report"

		rec := s.do(t, http.MethodPost, path, "caller", map[string]any{"issueType": "spam", "description": "short"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_INPUT", errorCode(t, rec))

		rec = s.do(t, http.MethodPost, path, "caller", map[string]any{"issueType": "rude", "description": "kept insulting me"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.do(t, http.MethodPost, path, "caller", map[string]any{"issueType": "harassment", "description": "kept insulting me"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var reported struct {
			Call   model.Call   `json:"call"`
			Report model.Report `json:"report"`
		}
		decode(t, rec, &reported)
		assert.Equal(t, model.CallStatusReported, reported.Call.Status)
		assert.Equal(t, model.IssueHarassment, reported.Report.IssueType)
		assert.Equal(t, "creator", reported.Report.ReportedUser)
		assert.Equal(t, "kept insulting me", reported.Report.Description)

		rec = s.do(t, http.MethodPost, path, "caller", map[string]any{"issueType": "harassment", "description": "kept insulting me"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ALREADY_EXISTS", errorCode(t, rec))
	})

	t.Run("issues a media token for a participant", func(t *testing.T) {
		s := newTestServer(t)
		s.createMoment(t, "creator", model.CategoryWishes)
		resp := claim(t, s, "caller", nil)

		rec := s.do(t, http.MethodGet, "/v1/calls/"+resp.Call.ID+"/token", "creator", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var token rtc.Token
		decode(t, rec, &token)
		assert.Equal(t, resp.Call.ID, token.ChannelName)
		assert.Equal(t, "creator", token.UID)
		assert.Equal(t, testAppID, token.AppID)
		assert.NotEmpty(t, token.Token)
	})

	t.Run("pages call history", func(t *testing.T) {
		s := newTestServer(t)
		for i := 0; i < 3; i++ {
			s.createMoment(t, "creator", model.CategoryWishes)
			resp := claim(t, s, "caller", nil)
			rec := s.do(t, http.MethodPost, "/v1/calls/"+resp.Call.ID+"/end", "caller", nil)
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := s.do(t, http.MethodGet, "/v1/calls/history?page=2&limit=2", "caller", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var history struct {
			Calls       []model.Call `json:"calls"`
			Total       int          `json:"total"`
			CurrentPage int          `json:"currentPage"`
			TotalPages  int          `json:"totalPages"`
		}
		decode(t, rec, &history)
		assert.Len(t, history.Calls, 1)
		assert.Equal(t, 3, history.Total)
		assert.Equal(t, 2, history.CurrentPage)
		assert.Equal(t, 2, history.TotalPages)

		rec = s.do(t, http.MethodGet, "/v1/calls/history", "creator", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &history)
		assert.Equal(t, 3, history.Total, "both participants see the call")
	})
}

func TestInternalCallRoutes(t *testing.T) {
	t.Run("rejects a missing or wrong secret", func(t *testing.T) {
		s := newTestServer(t)

		for _, secret := range []string{"", "wrong"} {
			req := newRequest(http.MethodPost, "/internal/calls/some-call/fail", "")
			if secret != "" {
				req.Header.Set("X-Internal-Secret", secret)
			}
			rec := serve(s, req)
			assert.Equal(t, http.StatusForbidden, rec.Code, "secret %q", secret)
		}
	})

	t.Run("fails an in-flight call", func(t *testing.T) {
		s := newTestServer(t)
		s.createMoment(t, "creator", model.CategoryWishes)
		resp := claim(t, s, "caller", nil)

		req := newRequest(http.MethodPost, "/internal/calls/"+resp.Call.ID+"/fail", "")
		req.Header.Set("X-Internal-Secret", testInternalSecret)
		rec := serve(s, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var failed struct {
			Call model.Call `json:"call"`
		}
		decode(t, rec, &failed)
		assert.Equal(t, model.CallStatusFailed, failed.Call.Status)

		rec = serve(s, func() *http.Request {
			r := newRequest(http.MethodPost, "/internal/calls/unknown/fail", "")
			r.Header.Set("X-Internal-Secret", testInternalSecret)
			return r
		}())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

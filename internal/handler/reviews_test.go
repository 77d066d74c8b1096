package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jojo-app/realtime-server-go/internal/model"
)

func endedCall(t *testing.T, s *testServer, creatorID, callerID string) model.Call {
	t.Helper()
	s.createMoment(t, creatorID, model.CategoryWishes)
	resp := claim(t, s, callerID, nil)
	rec := s.do(t, http.MethodPost, "/v1/calls/"+resp.Call.ID+"/end", callerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return resp.Call
}

func TestReviewRoutes(t *testing.T) {
	t.Run("submits a review for a completed call", func(t *testing.T) {
		s := newTestServer(t)
		call := endedCall(t, s, "creator", "caller")

		rec := s.do(t, http.MethodPost, "/v1/reviews", "caller", map[string]any{"callId": call.ID, "rating": 5})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			Review model.Review `json:"review"`
		}
		decode(t, rec, &resp)
		assert.Equal(t, "creator", resp.Review.ToUserID)
		assert.Equal(t, model.ReviewByParticipant, resp.Review.Type)

		rec = s.do(t, http.MethodPost, "/v1/reviews", "caller", map[string]any{"callId": call.ID, "rating": 4})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ALREADY_EXISTS", errorCode(t, rec))
	})

	t.Run("rejects bad input", func(t *testing.T) {
		s := newTestServer(t)
		call := endedCall(t, s, "creator", "caller")

		rec := s.do(t, http.MethodPost, "/v1/reviews", "caller", map[string]any{"callId": call.ID, "rating": 9})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.do(t, http.MethodPost, "/v1/reviews", "outsider", map[string]any{"callId": call.ID, "rating": 3})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = s.do(t, http.MethodPost, "/v1/reviews", "", map[string]any{"callId": call.ID, "rating": 3})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("lists given and received reviews", func(t *testing.T) {
		s := newTestServer(t)
		call := endedCall(t, s, "creator", "caller")
		rec := s.do(t, http.MethodPost, "/v1/reviews", "caller", map[string]any{"callId": call.ID, "rating": 2})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		type listResponse struct {
			Reviews     []model.Review `json:"reviews"`
			Total       int            `json:"total"`
			CurrentPage int            `json:"currentPage"`
			TotalPages  int            `json:"totalPages"`
		}

		rec = s.do(t, http.MethodGet, "/v1/reviews", "creator", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var received listResponse
		decode(t, rec, &received)
		assert.Equal(t, 1, received.Total)
		assert.Equal(t, 1, received.CurrentPage)
		require.Len(t, received.Reviews, 1)
		assert.Equal(t, 2, received.Reviews[0].Rating)

		rec = s.do(t, http.MethodGet, "/v1/reviews?type=given", "caller", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var given listResponse
		decode(t, rec, &given)
		assert.Equal(t, 1, given.Total)

		rec = s.do(t, http.MethodGet, "/v1/reviews?type=given", "creator", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var empty listResponse
		decode(t, rec, &empty)
		assert.Zero(t, empty.Total)
		assert.NotNil(t, empty.Reviews)

		rec = s.do(t, http.MethodGet, "/v1/reviews?type=all", "creator", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

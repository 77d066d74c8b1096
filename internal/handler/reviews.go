package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/service"
)

type ReviewHandler struct {
	reviews *service.ReviewService
}

func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

func (h *ReviewHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Submit)
	r.Get("/", h.List)

	return r
}

type reviewRequest struct {
	CallID string `json:"callId"`
	Rating int    `json:"rating"`
}

// POST /v1/reviews
func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req reviewRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	review, err := h.reviews.Submit(r.Context(), id.ID, req.CallID, req.Rating)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"review": review})
}

// GET /v1/reviews?type=given|received&page=&limit=
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p := ParsePagination(r)
	direction := model.ReviewDirection(r.URL.Query().Get("type"))
	page, err := h.reviews.List(r.Context(), id.ID, direction, p.Page, p.Limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reviews":     page.Reviews,
		"total":       page.Total,
		"currentPage": page.Page,
		"totalPages":  totalPages(page.Total, page.Limit),
	})
}

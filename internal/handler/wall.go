package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/service"
)

// WallHandler serves the Wall of Joy feed and hearts.
type WallHandler struct {
	moments *service.MomentService
	hearts  *service.HeartService
}

func NewWallHandler(moments *service.MomentService, hearts *service.HeartService) *WallHandler {
	return &WallHandler{moments: moments, hearts: hearts}
}

func (h *WallHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/moments", h.Feed)
	r.Post("/moments/{id}/heart", h.AddHeart)
	r.Delete("/moments/{id}/heart", h.RemoveHeart)

	return r
}

// GET /v1/wall/moments?category=&page=&limit=
func (h *WallHandler) Feed(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p := ParsePagination(r)
	page, err := h.moments.Feed(r.Context(), service.FeedParams{
		ViewerID: id.ID,
		Category: model.Category(r.URL.Query().Get("category")),
		Limit:    p.Limit,
		Offset:   p.Offset(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"moments":     page.Moments,
		"total":       page.Total,
		"currentPage": p.Page,
		"totalPages":  totalPages(page.Total, p.Limit),
	})
}

// POST /v1/wall/moments/{id}/heart
func (h *WallHandler) AddHeart(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	momentID, err := pathID(r, "Moment")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.hearts.AddHeart(r.Context(), id.ID, momentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// DELETE /v1/wall/moments/{id}/heart
func (h *WallHandler) RemoveHeart(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	momentID, err := pathID(r, "Moment")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.hearts.RemoveHeart(r.Context(), id.ID, momentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

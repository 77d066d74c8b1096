package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/service"
)

type MomentHandler struct {
	moments *service.MomentService
}

func NewMomentHandler(moments *service.MomentService) *MomentHandler {
	return &MomentHandler{moments: moments}
}

func (h *MomentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/available", h.Available)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/pause-toggle", h.TogglePause)
	r.Delete("/{id}", h.Delete)

	return r
}

type createMomentRequest struct {
	Category        model.Category     `json:"category"`
	SubCategory     string             `json:"subCategory"`
	Content         string             `json:"content"`
	Languages       []string           `json:"languages"`
	ScheduleType    model.ScheduleType `json:"scheduleType"`
	ScheduledTime   *time.Time         `json:"scheduledTime"`
	DurationMinutes int                `json:"durationMinutes"`
}

type updateMomentRequest struct {
	SubCategory     *string             `json:"subCategory"`
	Content         *string             `json:"content"`
	Languages       []string            `json:"languages"`
	ScheduleType    *model.ScheduleType `json:"scheduleType"`
	ScheduledTime   *time.Time          `json:"scheduledTime"`
	DurationMinutes *int                `json:"durationMinutes"`
}

// POST /v1/moments
func (h *MomentHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createMomentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	if req.ScheduleType == "" {
		req.ScheduleType = model.ScheduleImmediate
	}

	m, err := h.moments.Create(r.Context(), id.ID, service.CreateMomentInput{
		Category:        req.Category,
		SubCategory:     req.SubCategory,
		Content:         req.Content,
		Languages:       req.Languages,
		ScheduleType:    req.ScheduleType,
		ScheduledTime:   req.ScheduledTime,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"moment": m})
}

// GET /v1/moments?status=&category=
func (h *MomentHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	moments, err := h.moments.ListByCreator(r.Context(), model.MomentFilter{
		CreatorID: id.ID,
		Status:    model.MomentStatus(q.Get("status")),
		Category:  model.Category(q.Get("category")),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"moments": moments})
}

// GET /v1/moments/available
func (h *MomentHandler) Available(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	counts, err := h.moments.CategoryCounts(r.Context(), id.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"categories": counts})
}

// PUT /v1/moments/{id}
func (h *MomentHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	var req updateMomentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	m, err := h.moments.Update(r.Context(), id.ID, momentID, service.UpdateMomentInput{
		SubCategory:     req.SubCategory,
		Content:         req.Content,
		Languages:       req.Languages,
		ScheduleType:    req.ScheduleType,
		ScheduledTime:   req.ScheduledTime,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"moment": m})
}

// POST /v1/moments/{id}/pause-toggle
func (h *MomentHandler) TogglePause(w http.ResponseWriter, r *http.Request) {
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

	m, err := h.moments.TogglePause(r.Context(), id.ID, momentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"moment": m})
}

// DELETE /v1/moments/{id}
func (h *MomentHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	m, err := h.moments.Cancel(r.Context(), id.ID, momentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"moment": m})
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/service"
)

type CallHandler struct {
	calls *service.CallService
}

func NewCallHandler(calls *service.CallService) *CallHandler {
	return &CallHandler{calls: calls}
}

func (h *CallHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Claim)
	r.Get("/history", h.History)
	r.Post("/{id}/end", h.End)
	r.Post("/{id}/report", h.Report)
	r.Get("/{id}/token", h.Token)

	return r
}

// InternalRoutes are mounted behind the internal secret middleware.
func (h *CallHandler) InternalRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{id}/fail", h.Fail)

	return r
}

type claimRequest struct {
	Category model.Category `json:"category"`
}

type reportRequest struct {
	IssueType   model.IssueType `json:"issueType"`
	Description string          `json:"description"`
}

// POST /v1/calls
func (h *CallHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req claimRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	if req.Category == "" {
		req.Category = model.CategoryAll
	}

	res, err := h.calls.Claim(r.Context(), id.ID, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"call":    res.Call,
		"moment":  res.Moment,
		"channel": res.Call.ID,
	})
}

// POST /v1/calls/{id}/end
func (h *CallHandler) End(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	callID, err := pathID(r, "Call")
	if err != nil {
		writeError(w, err)
		return
	}

	call, err := h.calls.EndCall(r.Context(), id.ID, callID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"call": call})
}

// POST /v1/calls/{id}/report
func (h *CallHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	callID, err := pathID(r, "Call")
	if err != nil {
		writeError(w, err)
		return
	}

	var req reportRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.calls.ReportCall(r.Context(), id.ID, callID, service.ReportInput{
		IssueType:   req.IssueType,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"call": res.Call, "report": res.Report})
}

// GET /v1/calls/history?page=&limit=
func (h *CallHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p := ParsePagination(r)
	page, err := h.calls.History(r.Context(), id.ID, p.Page, p.Limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"calls":       page.Calls,
		"total":       page.Total,
		"currentPage": page.Page,
		"totalPages":  page.TotalPages,
	})
}

// GET /v1/calls/{id}/token
func (h *CallHandler) Token(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	callID, err := pathID(r, "Call")
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.calls.IssueToken(r.Context(), id.ID, callID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// POST /internal/calls/{id}/fail
func (h *CallHandler) Fail(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "Call")
	if err != nil {
		writeError(w, err)
		return
	}

	call, err := h.calls.FailCall(r.Context(), callID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"call": call})
}

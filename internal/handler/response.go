package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/httputil"
	"github.com/jojo-app/realtime-server-go/internal/middleware"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/util"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON reads a request body into dst. An empty body is allowed when
// optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.ValidationError("Request body too large")
		}
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

// caller returns the authenticated identity placed on the context by the
// auth middleware.
func caller(r *http.Request) (model.Identity, error) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok || id.ID == "" {
		return model.Identity{}, apperrors.Unauthorized("Authentication required")
	}
	return id, nil
}

// pathID reads the {id} route parameter. Malformed ids cannot match a row, so
// they are reported as not found without a store round trip.
func pathID(r *http.Request, resource string) (string, error) {
	id := chi.URLParam(r, "id")
	if !util.IsValidID(id) {
		return "", apperrors.NotFound(resource)
	}
	return id, nil
}

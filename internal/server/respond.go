package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stashfs/stashfs/internal/apperr"
	"github.com/stashfs/stashfs/internal/logger"
)

// envelope is the wire shape of every JSON response except /health.
type envelope struct {
	Data  any        `json:"data"`
	Error *errorBody `json:"error"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		logger.Error("encoding response failed", "error", err)
	}
}

// writeError maps an error to its HTTP status and writes an error envelope.
// Internal errors are logged with the request id; the client sees only a
// generic message for those.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := envelope{Error: &errorBody{Code: status, Message: apperr.ClientMessage(err)}}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		logger.Error("encoding error response failed", "error", encErr)
	}
}

// decodeJSON decodes a request body into dst, mapping malformed input to a
// bad request.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.BadRequestf("Invalid JSON body: %v", err)
	}
	return nil
}

// maxBytesExceeded reports whether err came from the request body size cap.
func maxBytesExceeded(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

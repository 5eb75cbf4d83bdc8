package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/courier/errors"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, ErrorResponse{Error: message})
}

// writeWrappedError logs err and writes a response whose status follows the
// error's classification. Only validation errors raised by this service
// echo their text; everything else answers with a fixed message.
func writeWrappedError(w http.ResponseWriter, log *zap.SugaredLogger, err error, msg string) {
	status := errors.HTTPStatus(err)
	switch {
	case status >= http.StatusInternalServerError:
		log.Errorw(msg, "error", err, "detail", errors.FlattenDetails(err), "status", status)
		writeError(w, status, msg)
	case errors.IsUpstreamError(err):
		log.Warnw(msg, "error", err, "status", status)
		writeError(w, status, upstreamMessage(status))
	case errors.IsInvalidRequestError(err):
		log.Infow(msg, "error", err, "status", status)
		writeError(w, status, err.Error())
	default:
		log.Infow(msg, "error", err, "status", status)
		writeError(w, status, msg)
	}
}

// upstreamMessage is the caller-facing text for a request the broker refused.
func upstreamMessage(status int) string {
	if status == http.StatusNotFound {
		return "not found at broker"
	}
	return "broker rejected the request"
}

// readJSON decodes a JSON request body. An empty body decodes to the zero value.
func readJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return err
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return err
	}
	return nil
}

// requireMethod checks if the request method matches the expected method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// extractPathParts extracts path segments after removing a prefix
func extractPathParts(urlPath, prefix string) []string {
	return strings.Split(strings.Trim(strings.TrimPrefix(urlPath, prefix), "/"), "/")
}

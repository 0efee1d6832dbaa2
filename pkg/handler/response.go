package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/sirupsen/logrus"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Warnf("failed to write response: %v", err)
	}
}

// writeError maps err onto its stable code and HTTP status. Internal causes
// are logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)

	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if status >= http.StatusInternalServerError {
		logrus.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
		if code == apperr.CodeUnknown {
			msg = "internal error"
		}
	}

	writeJSON(w, status, ErrorBody{Code: code, Message: msg})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("malformed request body: %v", err)
	}
	if dec.More() {
		return apperr.Invalid("request body must be a single JSON object")
	}
	return nil
}

func formatSSE(event string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}

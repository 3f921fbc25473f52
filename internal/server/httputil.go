package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/dlovans/formtree/internal/store"
	"github.com/dlovans/formtree/pkg/form"
	"github.com/dlovans/formtree/pkg/schema"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("writeJSON encode error")
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Error: message})
}

// decodeJSON decodes the request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// errorStatus maps a form, schema or store error to a status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, form.ErrUnknownField), errors.Is(err, form.ErrIndexOutOfRange):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, form.ErrReadOnly):
		return http.StatusConflict, "read_only"
	case errors.Is(err, form.ErrInactive):
		return http.StatusConflict, "inactive"
	case errors.Is(err, form.ErrNotCollection), errors.Is(err, form.ErrNotField):
		return http.StatusConflict, "wrong_shape"
	case errors.Is(err, form.ErrNotReady):
		return http.StatusUnprocessableEntity, "not_ready"
	case errors.Is(err, schema.ErrInvalid):
		return http.StatusUnprocessableEntity, "invalid_schema"
	}
	return http.StatusInternalServerError, "internal"
}

// writeFormError writes err with the details a client can act on: the
// validation errors of a form that is not ready, or the schema problems of
// a rejected document.
func writeFormError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	body := errorBody{Code: code, Error: err.Error()}
	var ve form.ValidationErrors
	if errors.As(err, &ve) {
		body.Details = ve
	} else if es, ok := schema.AsErrors(err); ok {
		body.Details = es
	}
	writeJSON(w, status, body)
}

// requestLogger logs each request through log once it completes.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}

// Package server serves live forms over HTTP and WebSocket. Each session
// holds one compiled form; clients set values, add and remove rows, and
// submit, and receive the changed values back.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/dlovans/formtree/pkg/form"
	"github.com/dlovans/formtree/pkg/schema"
)

// Submissions stores submitted forms and reads them back.
type Submissions interface {
	form.Sink
	Get(ctx context.Context, id string) (form.Submission, error)
}

// Config holds server configuration.
type Config struct {
	Addr string
	// Document is compiled for sessions created without a document of
	// their own. May be nil.
	Document    *schema.Document
	Submissions Submissions
	FormOptions []form.Option
	Log         logrus.FieldLogger

	MaxAge      time.Duration // default 24h
	IdleTimeout time.Duration // default 30m
}

// Server routes requests to form sessions.
type Server struct {
	cfg      Config
	log      logrus.FieldLogger
	sessions *Sessions
	router   chi.Router
}

// New builds a server from cfg.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	s := &Server{
		cfg:      cfg,
		log:      cfg.Log,
		sessions: NewSessions(cfg.MaxAge, cfg.IdleTimeout),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Sessions returns the session manager.
func (s *Server) Sessions() *Sessions { return s.sessions }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Put("/values/*", s.setValue)
			r.Post("/rows/*", s.addRow)
			r.Delete("/rows/{index}/*", s.removeRow)
			r.Post("/submit", s.submit)
			r.Get("/ws", s.serveWS)
		})
	})
	r.Get("/v1/submissions/{id}", s.getSubmission)
	return r
}

// Run serves on cfg.Addr until ctx is done and expires idle sessions in
// the background.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.sessions.Cleanup(); n > 0 {
					s.log.WithField("expired", n).Info("sessions expired")
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	s.log.WithField("addr", s.cfg.Addr).Info("starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sessionView is the response body describing a session.
type sessionView struct {
	ID      string                 `json:"id"`
	Status  form.Status            `json:"status"`
	Values  map[string]any         `json:"values"`
	Entries []form.Entry           `json:"entries,omitempty"`
	Errors  []form.ValidationError `json:"errors,omitempty"`
}

func view(sess *Session, withEntries bool) sessionView {
	errs := sess.Form.Validate()
	v := sessionView{
		ID:     sess.ID,
		Status: form.StatusReady,
		Values: sess.Form.Value(),
		Errors: errs,
	}
	if len(errs) > 0 {
		v.Status = sess.Form.Status()
	}
	if withEntries {
		v.Entries = sess.Form.Entries()
	}
	return v
}

// createSession compiles the request body as a document, or the configured
// document when the body is empty.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Document json.RawMessage `json:"document"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	doc := s.cfg.Document
	if len(body.Document) > 0 {
		d, err := schema.Decode(body.Document)
		if err != nil {
			writeFormError(w, err)
			return
		}
		doc = d
	}
	if doc == nil {
		writeError(w, http.StatusBadRequest, "no_document", "no document given and none configured")
		return
	}

	opts := append([]form.Option{form.WithLogger(s.log)}, s.cfg.FormOptions...)
	f, err := form.Compile(doc, opts...)
	if err != nil {
		writeFormError(w, err)
		return
	}
	sess := s.sessions.Create(f)
	s.log.WithField("session", sess.ID).Info("session created")
	writeJSON(w, http.StatusCreated, view(sess, true))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) *Session {
	id := chi.URLParam(r, "id")
	sess := s.sessions.Get(id)
	if sess == nil {
		writeError(w, http.StatusNotFound, "no_session", "unknown or expired session "+id)
	}
	return sess
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, view(sess, true))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	s.sessions.Remove(sess.ID)
	s.log.WithField("session", sess.ID).Info("session closed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setValue(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var body struct {
		Value any `json:"value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := sess.Form.SetValue(chi.URLParam(r, "*"), body.Value); err != nil {
		writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess, false))
}

func (s *Server) addRow(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	idx, err := sess.Form.AddRow(chi.URLParam(r, "*"))
	if err != nil {
		writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Index int `json:"index"`
		sessionView
	}{idx, view(sess, false)})
}

func (s *Server) removeRow(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index", fmt.Sprintf("row index %q is not a number", chi.URLParam(r, "index")))
		return
	}
	if err := sess.Form.RemoveRow(chi.URLParam(r, "*"), idx); err != nil {
		writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess, false))
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if s.cfg.Submissions == nil {
		writeError(w, http.StatusServiceUnavailable, "no_store", "submissions are not configured")
		return
	}
	sub, err := sess.Form.Submit(r.Context(), s.cfg.Submissions)
	if err != nil {
		writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Submissions == nil {
		writeError(w, http.StatusServiceUnavailable, "no_store", "submissions are not configured")
		return
	}
	sub, err := s.cfg.Submissions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

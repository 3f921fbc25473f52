package form

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotReady is returned by Submit when the form has validation errors.
var ErrNotReady = errors.New("form is not ready")

// Submission is a snapshot of a ready form handed to a Sink.
type Submission struct {
	ID          string         `json:"id"`
	FormName    string         `json:"formName,omitempty"`
	Target      string         `json:"target,omitempty"`
	Status      Status         `json:"status"`
	Values      map[string]any `json:"values"`
	Params      map[string]any `json:"params,omitempty"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// Sink receives submissions. Delivery (a database, an API) is up to the
// implementation.
type Sink interface {
	Submit(ctx context.Context, s Submission) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s Submission) error

func (fn SinkFunc) Submit(ctx context.Context, s Submission) error { return fn(ctx, s) }

// Submit hands a snapshot of the form to sink. A form that is not ready is
// refused with its validation errors, which wrap ErrNotReady.
func (f *Form) Submit(ctx context.Context, sink Sink) (Submission, error) {
	f.mu.Lock()
	errs := f.root.collectErrors("", nil)
	if len(errs) > 0 {
		f.mu.Unlock()
		return Submission{}, fmt.Errorf("%w: %w", ErrNotReady, ValidationErrors(errs))
	}
	s := Submission{
		ID:          uuid.NewString(),
		FormName:    f.doc.AuditHistory.FormName,
		Status:      StatusReady,
		Values:      f.root.snapshot(),
		SubmittedAt: time.Now().UTC(),
	}
	if s.FormName == "" {
		s.FormName = f.doc.ID
	}
	if cfg := f.doc.FormConfig; cfg != nil {
		s.Target = cfg.StoredProcedure
		if s.Target == "" {
			s.Target = cfg.APIEndpoint
		}
		if len(cfg.SPParameters) > 0 {
			s.Params = make(map[string]any, len(cfg.SPParameters))
			for param, name := range cfg.SPParameters {
				s.Params[param] = s.Values[name]
			}
		}
	}
	log := f.opts.log
	f.mu.Unlock()

	if err := sink.Submit(ctx, s); err != nil {
		log.WithField("submission", s.ID).WithError(err).Warn("submission failed")
		return Submission{}, fmt.Errorf("submit %s: %w", s.ID, err)
	}
	log.WithFields(logrus.Fields{"submission": s.ID, "form": s.FormName}).Info("form submitted")
	return s, nil
}

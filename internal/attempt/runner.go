// Package attempt runs one extraction attempt for a session and records its
// outcome. It is the only place that moves a session through Extracting.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/session"
	"github.com/fedutinova/invoice-extractor/internal/upload"
)

type Extractor interface {
	Extract(ctx context.Context, file *upload.File, instruction string) (string, error)
}

type Runner struct {
	store     session.Store
	extractor Extractor
	timeout   time.Duration
}

// NewRunner builds a runner. A positive timeout bounds the provider call.
func NewRunner(store session.Store, extractor Extractor, timeout time.Duration) *Runner {
	return &Runner{store: store, extractor: extractor, timeout: timeout}
}

func (r *Runner) Current(ctx context.Context, id string) (*session.Session, error) {
	return r.store.Get(ctx, id)
}

func (r *Runner) Select(ctx context.Context, id string, file *upload.File) (*session.Session, error) {
	sess, err := r.store.Update(ctx, id, func(s *session.Session) error {
		return s.Select(file)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("file selected",
		"session_id", id,
		"file", file.Name,
		"media_type", file.MediaType,
		"size_bytes", file.Size())
	return sess, nil
}

func (r *Runner) Reset(ctx context.Context, id string) (*session.Session, error) {
	sess, err := r.store.Update(ctx, id, func(s *session.Session) error {
		return s.Reset()
	})
	if err != nil {
		return nil, err
	}
	slog.Info("session reset", "session_id", id)
	return sess, nil
}

// Run performs one attempt with the currently selected file. The returned
// error is the attempt's failure, already recorded on the session; a non-nil
// session is returned whenever the outcome was recorded. Errors from the
// state machine itself (attempt in progress) come back with a nil session.
func (r *Runner) Run(ctx context.Context, id, instruction string) (sess *session.Session, err error) {
	began, err := r.store.Update(ctx, id, func(s *session.Session) error {
		return s.Begin(instruction)
	})
	if err != nil {
		return nil, err
	}
	if began.State == session.StateFailed {
		slog.Warn("extraction triggered without a file", "session_id", id)
		return began, common.MissingInputError{}
	}

	// the outcome must be recorded even if the caller went away
	recordCtx := context.WithoutCancel(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic during extraction",
				"session_id", id,
				"panic", rec,
				"stack", string(debug.Stack()))
			err = &common.UnhandledProcessingError{Err: fmt.Errorf("panic: %v", rec)}
			sess = r.record(recordCtx, id, "", err)
		}
	}()

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	text, err := r.extractor.Extract(callCtx, began.File, instruction)
	if err != nil {
		err = common.WrapUnhandled(err)
	}
	return r.record(recordCtx, id, text, err), err
}

func (r *Runner) record(ctx context.Context, id, text string, attemptErr error) *session.Session {
	sess, err := r.store.Update(ctx, id, func(s *session.Session) error {
		if attemptErr != nil {
			return s.Fail(attemptErr)
		}
		return s.Succeed(text)
	})
	if err != nil {
		// the session expired or was dropped while the call was in flight
		slog.Error("failed to record attempt outcome",
			"session_id", id,
			"error", err,
			"attempt_error", attemptErr)
		return nil
	}

	if attemptErr != nil {
		slog.Warn("extraction failed",
			"session_id", id,
			"kind", common.KindOf(attemptErr),
			"error", attemptErr,
			"elapsed_ms", sess.Elapsed.Milliseconds())
	} else {
		slog.Info("extraction complete",
			"session_id", id,
			"attempt", sess.Attempts,
			"response_length", len(text),
			"elapsed_ms", sess.Elapsed.Milliseconds())
	}
	return sess
}

// IsBusy reports whether err means the session already has an attempt running.
func IsBusy(err error) bool {
	return errors.Is(err, session.ErrAttemptInProgress)
}

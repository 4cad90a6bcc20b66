// Package session holds the per-browser interaction state of the invoice
// page: the selected file, the last instruction and the outcome of the last
// extraction attempt.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/upload"
)

type State string

const (
	StateIdle         State = "idle"
	StateFileSelected State = "file_selected"
	StateExtracting   State = "extracting"
	StateSuccess      State = "success"
	StateFailed       State = "failed"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAttemptInProgress = errors.New("an extraction is already in progress")
	ErrNotFound          = errors.New("session not found")
)

// Failure is the rendered outcome of a failed attempt.
type Failure struct {
	Kind    common.Kind `json:"kind"`
	Message string      `json:"message"`
}

func NewFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Kind: common.KindOf(err), Message: common.UserMessage(err)}
}

// Session is a value owned by a Store. File is replaced, never mutated in
// place, so copies may share it.
type Session struct {
	ID          string        `json:"id"`
	State       State         `json:"state"`
	File        *upload.File  `json:"file,omitempty"`
	Instruction string        `json:"instruction,omitempty"`
	Result      string        `json:"result,omitempty"`
	Failure     *Failure      `json:"failure,omitempty"`
	Attempts    int           `json:"attempts"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func NewID() string {
	return uuid.New().String()
}

func New(id string) *Session {
	return &Session{ID: id, State: StateIdle, UpdatedAt: time.Now()}
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Failure != nil {
		f := *s.Failure
		cp.Failure = &f
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	return &cp
}

func (s *Session) HasFile() bool {
	return s.File != nil && len(s.File.Data) > 0
}

// Select replaces the current file. The previous outcome is cleared.
func (s *Session) Select(file *upload.File) error {
	if s.State == StateExtracting {
		return ErrAttemptInProgress
	}
	if file == nil {
		return fmt.Errorf("%w: select without a file", ErrInvalidTransition)
	}
	s.File = file
	s.Result = ""
	s.Failure = nil
	s.State = StateFileSelected
	s.touch()
	return nil
}

// Begin starts an attempt. Without a file the session goes straight to
// Failed with a missing input failure and no attempt is started.
func (s *Session) Begin(instruction string) error {
	if s.State == StateExtracting {
		return ErrAttemptInProgress
	}
	s.Instruction = instruction
	s.Result = ""
	s.Failure = nil
	s.Elapsed = 0

	if !s.HasFile() {
		s.Failure = NewFailure(common.MissingInputError{})
		s.State = StateFailed
		s.StartedAt = nil
		s.touch()
		return nil
	}

	now := time.Now()
	s.StartedAt = &now
	s.Attempts++
	s.State = StateExtracting
	s.touch()
	return nil
}

func (s *Session) Succeed(text string) error {
	if s.State != StateExtracting {
		return fmt.Errorf("%w: succeed from %s", ErrInvalidTransition, s.State)
	}
	s.Result = text
	s.Failure = nil
	s.State = StateSuccess
	s.finish()
	return nil
}

func (s *Session) Fail(err error) error {
	if s.State != StateExtracting {
		return fmt.Errorf("%w: fail from %s", ErrInvalidTransition, s.State)
	}
	if err == nil {
		err = &common.UnhandledProcessingError{Err: errors.New("attempt failed without an error")}
	}
	s.Result = ""
	s.Failure = NewFailure(err)
	s.State = StateFailed
	s.finish()
	return nil
}

// Reset drops the file and the outcome.
func (s *Session) Reset() error {
	if s.State == StateExtracting {
		return fmt.Errorf("%w: reset while extracting", ErrInvalidTransition)
	}
	s.File = nil
	s.Instruction = ""
	s.Result = ""
	s.Failure = nil
	s.StartedAt = nil
	s.Elapsed = 0
	s.State = StateIdle
	s.touch()
	return nil
}

func (s *Session) finish() {
	if s.StartedAt != nil {
		s.Elapsed = time.Since(*s.StartedAt)
	}
	s.touch()
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}

package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/upload"
)

func invoice() *upload.File {
	return &upload.File{Name: "invoice.png", Data: []byte("\x89PNG..."), MediaType: upload.MediaTypePNG}
}

func TestSession_HappyPath(t *testing.T) {
	s := New("s1")
	assert.Equal(t, StateIdle, s.State)

	require.NoError(t, s.Select(invoice()))
	assert.Equal(t, StateFileSelected, s.State)

	require.NoError(t, s.Begin("Extract invoice details"))
	assert.Equal(t, StateExtracting, s.State)
	assert.Equal(t, 1, s.Attempts)
	assert.NotNil(t, s.StartedAt)

	require.NoError(t, s.Succeed("Total: $45.00"))
	assert.Equal(t, StateSuccess, s.State)
	assert.Equal(t, "Total: $45.00", s.Result)
	assert.Nil(t, s.Failure)
}

func TestSession_BeginWithoutFileFails(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Begin("Extract invoice details"))

	assert.Equal(t, StateFailed, s.State)
	require.NotNil(t, s.Failure)
	assert.Equal(t, common.KindMissingInput, s.Failure.Kind)
	assert.Equal(t, "Error processing file: no file uploaded", s.Failure.Message)
	assert.Zero(t, s.Attempts)
}

func TestSession_OneAttemptAtATime(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Select(invoice()))
	require.NoError(t, s.Begin("x"))

	assert.ErrorIs(t, s.Begin("x"), ErrAttemptInProgress)
	assert.ErrorIs(t, s.Select(invoice()), ErrAttemptInProgress)
	assert.ErrorIs(t, s.Reset(), ErrInvalidTransition)
}

func TestSession_FailThenRetry(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Select(invoice()))
	require.NoError(t, s.Begin("x"))

	require.NoError(t, s.Fail(common.WrapExtraction("gemini", errors.New("timeout"))))
	assert.Equal(t, StateFailed, s.State)
	assert.Equal(t, common.KindExtraction, s.Failure.Kind)
	assert.Equal(t, "Error with extraction: gemini: timeout", s.Failure.Message)

	// same file, no reselection needed
	require.NoError(t, s.Begin("x"))
	assert.Nil(t, s.Failure)
	require.NoError(t, s.Succeed("ok"))
	assert.Equal(t, 2, s.Attempts)
}

func TestSession_InvalidTransitions(t *testing.T) {
	s := New("s1")
	assert.ErrorIs(t, s.Succeed("x"), ErrInvalidTransition)
	assert.ErrorIs(t, s.Fail(errors.New("x")), ErrInvalidTransition)
	assert.ErrorIs(t, s.Select(nil), ErrInvalidTransition)
}

func TestSession_SelectClearsOutcome(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Select(invoice()))
	require.NoError(t, s.Begin("x"))
	require.NoError(t, s.Succeed("old"))

	next := &upload.File{Name: "b.pdf", Data: []byte("%PDF"), MediaType: upload.MediaTypePDF}
	require.NoError(t, s.Select(next))
	assert.Equal(t, StateFileSelected, s.State)
	assert.Empty(t, s.Result)
	assert.Same(t, next, s.File)
}

func TestSession_Reset(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Select(invoice()))
	require.NoError(t, s.Begin("x"))
	require.NoError(t, s.Fail(errors.New("boom")))
	assert.Equal(t, common.KindUnhandled, s.Failure.Kind)

	require.NoError(t, s.Reset())
	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.File)
	assert.Nil(t, s.Failure)
	assert.Empty(t, s.Instruction)
}

func TestSession_FailWithNilError(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Select(invoice()))
	require.NoError(t, s.Begin("x"))
	require.NoError(t, s.Fail(nil))
	assert.Equal(t, common.KindUnhandled, s.Failure.Kind)
}

func TestClone_Independent(t *testing.T) {
	s := New("s1")
	require.NoError(t, s.Select(invoice()))
	require.NoError(t, s.Begin("x"))
	require.NoError(t, s.Fail(errors.New("boom")))

	cp := s.Clone()
	cp.Failure.Message = "changed"
	cp.State = StateIdle
	assert.NotEqual(t, "changed", s.Failure.Message)
	assert.Equal(t, StateFailed, s.State)
	assert.Nil(t, (*Session)(nil).Clone())
}

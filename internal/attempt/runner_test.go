package attempt

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/config"
	"github.com/fedutinova/invoice-extractor/internal/extract"
	"github.com/fedutinova/invoice-extractor/internal/fixtures"
	"github.com/fedutinova/invoice-extractor/internal/session"
	"github.com/fedutinova/invoice-extractor/internal/upload"
)

// scriptedProvider answers each call with the next step.
type scriptedProvider struct {
	calls atomic.Int32
	steps []func(ctx context.Context) (*extract.Result, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, req extract.Request) (*extract.Result, error) {
	i := int(p.calls.Add(1)) - 1
	if i >= len(p.steps) {
		return nil, errors.New("unexpected call")
	}
	return p.steps[i](ctx)
}

func reply(text string) func(context.Context) (*extract.Result, error) {
	return func(context.Context) (*extract.Result, error) {
		return &extract.Result{Text: text, Model: "scripted-1"}, nil
	}
}

func hang(ctx context.Context) (*extract.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type panicky struct{}

func (panicky) Extract(ctx context.Context, file *upload.File, instruction string) (string, error) {
	panic("nil map write")
}

func newRunner(t *testing.T, p extract.Provider, timeout time.Duration) *Runner {
	t.Helper()
	store := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	client := extract.NewClient(p, config.DefaultSystemInstruction, config.DefaultInstruction, nil)
	return NewRunner(store, client, timeout)
}

func jpeg() *upload.File {
	return &upload.File{Name: "invoice.jpg", Data: fixtures.InvoiceJPEG(10 << 10), MediaType: upload.MediaTypeJPEG}
}

func TestRun_MissingInputMakesNoCall(t *testing.T) {
	p := &scriptedProvider{}
	r := newRunner(t, p, time.Second)

	sess, err := r.Run(context.Background(), "s1", "Extract invoice details")
	assert.True(t, common.IsMissingInput(err))
	require.NotNil(t, sess)
	assert.Equal(t, session.StateFailed, sess.State)
	assert.Equal(t, "Error processing file: no file uploaded", sess.Failure.Message)
	assert.Zero(t, p.calls.Load())
}

func TestRun_SuccessPassesTextThrough(t *testing.T) {
	p := &scriptedProvider{steps: []func(context.Context) (*extract.Result, error){reply("Total: $45.00")}}
	r := newRunner(t, p, time.Second)
	ctx := context.Background()

	_, err := r.Select(ctx, "s1", jpeg())
	require.NoError(t, err)

	sess, err := r.Run(ctx, "s1", "Extract invoice details")
	require.NoError(t, err)
	assert.Equal(t, session.StateSuccess, sess.State)
	assert.Equal(t, "Total: $45.00", sess.Result)
	assert.Equal(t, "Extract invoice details", sess.Instruction)

	cur, err := r.Current(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Total: $45.00", cur.Result)
}

func TestRun_TimeoutThenRetrySucceeds(t *testing.T) {
	p := &scriptedProvider{steps: []func(context.Context) (*extract.Result, error){hang, reply("Total: $45.00")}}
	r := newRunner(t, p, 50*time.Millisecond)
	ctx := context.Background()

	_, err := r.Select(ctx, "s1", jpeg())
	require.NoError(t, err)

	sess, err := r.Run(ctx, "s1", "Extract invoice details")
	assert.True(t, common.IsExtraction(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, sess)
	assert.Equal(t, session.StateFailed, sess.State)
	assert.Equal(t, common.KindExtraction, sess.Failure.Kind)
	assert.Contains(t, sess.Failure.Message, "Error with extraction: ")

	// the file is still selected, retry without re-uploading
	sess, err = r.Run(ctx, "s1", "Extract invoice details")
	require.NoError(t, err)
	assert.Equal(t, session.StateSuccess, sess.State)
	assert.Equal(t, "Total: $45.00", sess.Result)
	assert.Equal(t, 2, sess.Attempts)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestRun_BusySessionRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	p := &scriptedProvider{steps: []func(context.Context) (*extract.Result, error){
		func(ctx context.Context) (*extract.Result, error) {
			close(started)
			<-release
			return &extract.Result{Text: "done"}, nil
		},
	}}
	r := newRunner(t, p, time.Second)
	ctx := context.Background()

	_, err := r.Select(ctx, "s1", jpeg())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, "s1", "x")
		done <- err
	}()
	<-started

	_, err = r.Run(ctx, "s1", "x")
	assert.True(t, IsBusy(err))
	_, err = r.Reset(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	close(release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestRun_PanicIsRecordedAsUnhandled(t *testing.T) {
	store := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	r := NewRunner(store, panicky{}, 0)
	ctx := context.Background()

	_, err := r.Select(ctx, "s1", jpeg())
	require.NoError(t, err)

	sess, err := r.Run(ctx, "s1", "x")
	assert.ErrorIs(t, err, common.ErrUnhandled)
	require.NotNil(t, sess)
	assert.Equal(t, session.StateFailed, sess.State)
	assert.Equal(t, common.KindUnhandled, sess.Failure.Kind)
	assert.Contains(t, sess.Failure.Message, "Failed to process invoice: panic: nil map write")

	// the session is still usable
	sess, err = r.Reset(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, sess.State)
}

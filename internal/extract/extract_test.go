package extract

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/fixtures"
	"github.com/fedutinova/invoice-extractor/internal/upload"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []Request
	text  string
	err   error
	nilOK bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.nilOK {
		return nil, nil
	}
	return &Result{Text: f.text, Model: "fake-1", TokensUsed: 7}, nil
}

func jpegFile() *upload.File {
	return &upload.File{Name: "invoice.jpg", Data: fixtures.InvoiceJPEG(10 << 10), MediaType: upload.MediaTypeJPEG}
}

func TestNewRequest_RequiresFile(t *testing.T) {
	_, err := NewRequest("sys", nil, "Extract invoice details")
	assert.True(t, common.IsMissingInput(err))

	_, err = NewRequest("sys", &upload.File{Name: "x.png", MediaType: upload.MediaTypePNG}, "Extract")
	assert.True(t, common.IsMissingInput(err))

	req, err := NewRequest("sys", jpegFile(), "Extract")
	require.NoError(t, err)
	assert.Equal(t, "sys", req.SystemInstruction)
	assert.Equal(t, "Extract", req.UserInstruction)
}

func TestClient_Extract_PassesTextThrough(t *testing.T) {
	// whitespace and markdown must survive untouched
	raw := "  **Invoice 0042**\n\nTotal: $45.00\n\t"
	p := &fakeProvider{text: raw}
	c := NewClient(p, "You are an expert in understanding invoices.", "Extract invoice details", nil)

	file := jpegFile()
	out, err := c.Extract(context.Background(), file, "List the line items")
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	require.Len(t, p.calls, 1)
	got := p.calls[0]
	assert.Equal(t, "You are an expert in understanding invoices.", got.SystemInstruction)
	assert.Equal(t, "List the line items", got.UserInstruction)
	assert.Same(t, file, got.File)
}

func TestClient_Extract_DefaultInstruction(t *testing.T) {
	p := &fakeProvider{text: "ok"}
	c := NewClient(p, "sys", "Extract invoice details", nil)

	_, err := c.Extract(context.Background(), jpegFile(), "   ")
	require.NoError(t, err)
	assert.Equal(t, "Extract invoice details", p.calls[0].UserInstruction)
	assert.Equal(t, "Extract invoice details", c.DefaultInstruction())
}

func TestClient_Extract_MissingFileNeverCallsProvider(t *testing.T) {
	p := &fakeProvider{text: "unused"}
	c := NewClient(p, "sys", "Extract invoice details", nil)

	_, err := c.Extract(context.Background(), nil, "Extract invoice details")
	assert.True(t, common.IsMissingInput(err))
	assert.Empty(t, p.calls)
}

func TestClient_Extract_ProviderFailureIsExtractionError(t *testing.T) {
	cause := context.DeadlineExceeded
	p := &fakeProvider{err: cause}
	c := NewClient(p, "sys", "Extract invoice details", nil)

	out, err := c.Extract(context.Background(), jpegFile(), "Extract invoice details")
	assert.Empty(t, out)
	assert.True(t, common.IsExtraction(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, common.UserMessage(err), "deadline exceeded")
	assert.Len(t, p.calls, 1, "no retry")
}

func TestClient_Extract_NilResultIsExtractionError(t *testing.T) {
	c := NewClient(&fakeProvider{nilOK: true}, "sys", "d", nil)

	_, err := c.Extract(context.Background(), jpegFile(), "x")
	assert.True(t, common.IsExtraction(err))
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("GOOGLE_API_KEY is not set")
	c := NewClient(Unavailable("gemini", cause), "sys", "d", nil)

	_, err := c.Extract(context.Background(), jpegFile(), "x")
	assert.True(t, common.IsExtraction(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "gemini", c.Provider())
}

package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fedutinova/invoice-extractor/internal/attempt"
	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/config"
	"github.com/fedutinova/invoice-extractor/internal/session"
	"github.com/fedutinova/invoice-extractor/internal/upload"
	"github.com/fedutinova/invoice-extractor/internal/validation"
)

// multipart overhead allowed on top of MaxUploadSize
const formOverhead = 1 << 20

type Handlers struct {
	Runner    *attempt.Runner
	Extractor attempt.Extractor
	Store     session.Store
	Provider  string
	Config    config.Config
}

// Routers mounts the page routes and the JSON API. limit wraps the routes
// that accept file bodies; pass nil for no limit.
func (h *Handlers) Routers(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r.Get("/", h.index)
	r.With(limit).Post("/upload", h.upload)
	r.With(limit).Post("/extract", h.extract)
	r.Post("/reset", h.reset)
	r.Get("/preview", h.preview)

	r.With(limit).Post("/v1/extract", h.apiExtract)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
}

func (h *Handlers) limits() validation.Limits {
	return validation.Limits{
		MaxFileSize:   h.Config.MaxUploadSize,
		MaxTextLength: h.Config.MaxInstructionLen,
	}
}

func (h *Handlers) index(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(w, r)
	sess, err := h.Runner.Current(r.Context(), id)
	if err != nil {
		slog.Error("failed to load session", "session_id", id, "error", err)
		h.renderError(w, r, http.StatusInternalServerError, common.WrapUnhandled(err))
		return
	}
	h.render(w, http.StatusOK, h.view(sess, ""))
}

func (h *Handlers) upload(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(w, r)

	fh, err := h.parseFile(w, r)
	if err != nil {
		h.renderNotice(w, r, id, http.StatusBadRequest, err)
		return
	}
	if fh == nil {
		h.renderNotice(w, r, id, http.StatusBadRequest, common.MissingInputError{})
		return
	}

	if _, err := h.selectFile(r.Context(), id, fh); err != nil {
		h.renderNotice(w, r, id, statusFor(err), err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// extract runs one attempt. A file sent with the same form replaces the
// current selection first, so the page also works as a single form.
func (h *Handlers) extract(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(w, r)

	fh, err := h.parseFile(w, r)
	if err != nil {
		h.renderNotice(w, r, id, http.StatusBadRequest, err)
		return
	}

	instruction := r.FormValue("instruction")
	if errs := validation.ValidateInstruction(instruction, h.limits()); len(errs) > 0 {
		h.renderNotice(w, r, id, http.StatusBadRequest, errs)
		return
	}

	if fh != nil {
		if _, err := h.selectFile(r.Context(), id, fh); err != nil {
			h.renderNotice(w, r, id, statusFor(err), err)
			return
		}
	}

	sess, err := h.Runner.Run(r.Context(), id, instruction)
	if sess == nil {
		// nothing was recorded: busy session or store failure
		if err == nil {
			err = common.WrapUnhandled(errors.New("attempt outcome was not recorded"))
		}
		h.renderNotice(w, r, id, statusFor(err), err)
		return
	}

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	h.render(w, status, h.view(sess, ""))
}

func (h *Handlers) reset(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(w, r)
	if _, err := h.Runner.Reset(r.Context(), id); err != nil {
		h.renderNotice(w, r, id, statusFor(err), err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) preview(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(w, r)
	sess, err := h.Runner.Current(r.Context(), id)
	if err != nil {
		slog.Error("failed to load session", "session_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !sess.HasFile() {
		http.Error(w, "no file uploaded", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", sess.File.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", sess.File.Name))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(sess.File.Data)
}

// parseFile reads the optional "file" part. A nil header with a nil error
// means the form carried no file.
func (h *Handlers) parseFile(w http.ResponseWriter, r *http.Request) (*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFormMemory())

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return nil, validation.ValidationErrors{{Field: "form", Message: "failed to parse form"}}
		}
		return nil, nil
	}

	// everything the body limit admits stays in memory, nothing spills to disk
	if err := r.ParseMultipartForm(h.maxFormMemory()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, validation.ValidationErrors{{
				Field:   "file",
				Message: fmt.Sprintf("upload exceeds maximum size of %d bytes", h.Config.MaxUploadSize),
			}}
		}
		return nil, validation.ValidationErrors{{Field: "form", Message: "failed to parse form"}}
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > 1 {
		return nil, validation.ValidationErrors{{Field: "file", Message: "only one file per attempt"}}
	}
	return files[0], nil
}

func (h *Handlers) maxFormMemory() int64 {
	return h.Config.MaxUploadSize + formOverhead
}

func (h *Handlers) selectFile(ctx context.Context, id string, fh *multipart.FileHeader) (*session.Session, error) {
	if errs := validation.ValidateUpload(fh, h.limits()); len(errs) > 0 {
		slog.Warn("upload rejected", "session_id", id, "file", fh.Filename, "error", errs)
		return nil, errs
	}
	file, err := upload.FromMultipart(fh)
	if err != nil {
		return nil, err
	}
	return h.Runner.Select(ctx, id, file)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case attempt.IsBusy(err), errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	}
	switch common.KindOf(err) {
	case common.KindMissingInput, common.KindValidation:
		return http.StatusBadRequest
	case common.KindExtraction:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/upload"
	"github.com/fedutinova/invoice-extractor/internal/validation"
)

type extractResponse struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
}

type errorResponse struct {
	Error   string                   `json:"error"`
	Kind    common.Kind              `json:"kind"`
	Details []common.ValidationError `json:"details,omitempty"`
}

// apiExtract is the stateless variant of the page flow: one multipart
// request carries the file and the instruction, no session is touched.
func (h *Handlers) apiExtract(w http.ResponseWriter, r *http.Request) {
	fh, err := h.parseFile(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	instruction := r.FormValue("instruction")
	if errs := validation.ValidateInstruction(instruction, h.limits()); len(errs) > 0 {
		writeError(w, errs)
		return
	}

	if fh == nil {
		writeError(w, common.MissingInputError{})
		return
	}
	if errs := validation.ValidateUpload(fh, h.limits()); len(errs) > 0 {
		writeError(w, errs)
		return
	}
	file, err := upload.FromMultipart(fh)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	if h.Config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Config.RequestTimeout)
		defer cancel()
	}

	text, err := h.Extractor.Extract(ctx, file, instruction)
	if err != nil {
		err = common.WrapUnhandled(err)
		slog.Warn("api extraction failed", "kind", common.KindOf(err), "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{Text: text, Provider: h.Provider})
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Kind: common.KindOf(err)}
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Error = "validation failed"
		resp.Details = verrs
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

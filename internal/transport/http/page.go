package http

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fedutinova/invoice-extractor/internal/common"
	"github.com/fedutinova/invoice-extractor/internal/session"
	"github.com/fedutinova/invoice-extractor/internal/validation"
)

const (
	SessionCookie  = "invoice_session"
	SuccessMessage = "Extraction complete!"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageView struct {
	State       session.State
	FileName    string
	MediaType   string
	SizeKB      string
	IsImage     bool
	HasFile     bool
	Extracting  bool
	Instruction string
	Placeholder string
	Result      string
	Success     string
	Error       string
	Notice      string
	Formats     string
	MaxUploadMB int64
	Provider    string
	Attempts    int
	Elapsed     string
}

func (h *Handlers) view(sess *session.Session, notice string) pageView {
	v := pageView{
		State:       sess.State,
		Instruction: sess.Instruction,
		Placeholder: h.Config.DefaultInstruction,
		Notice:      notice,
		Formats:     strings.Join(validation.AllowedExtensions, ", "),
		MaxUploadMB: h.Config.MaxUploadSize >> 20,
		Provider:    h.Provider,
		Attempts:    sess.Attempts,
		Extracting:  sess.State == session.StateExtracting,
	}
	if sess.HasFile() {
		v.HasFile = true
		v.FileName = sess.File.Name
		v.MediaType = sess.File.MediaType
		v.IsImage = sess.File.IsImage()
		v.SizeKB = formatKB(sess.File.Size())
	}
	switch sess.State {
	case session.StateSuccess:
		v.Result = sess.Result
		v.Success = SuccessMessage
	case session.StateFailed:
		if sess.Failure != nil {
			v.Error = sess.Failure.Message
		}
	}
	if sess.Elapsed > 0 {
		v.Elapsed = sess.Elapsed.Round(100 * time.Millisecond).String()
	}
	return v
}

func (h *Handlers) render(w http.ResponseWriter, status int, v pageView) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, v); err != nil {
		slog.Error("failed to render page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderNotice shows the current session with a message about a request
// that did not change it.
func (h *Handlers) renderNotice(w http.ResponseWriter, r *http.Request, id string, status int, err error) {
	sess, loadErr := h.Runner.Current(r.Context(), id)
	if loadErr != nil {
		slog.Error("failed to load session", "session_id", id, "error", loadErr)
		sess = session.New(id)
	}
	h.render(w, status, h.view(sess, noticeMessage(err)))
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.render(w, status, h.view(session.New(""), noticeMessage(err)))
}

func noticeMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrAttemptInProgress):
		return "An extraction is already in progress. Please wait for it to finish."
	case errors.Is(err, session.ErrInvalidTransition):
		return "This action is not available while an extraction is in progress."
	}
	return common.UserMessage(err)
}

// sessionID returns the id from the session cookie, issuing a new id when it
// is missing or malformed. The cookie is re-sent on every request so its
// lifetime slides with the store's ttl.
func (h *Handlers) sessionID(w http.ResponseWriter, r *http.Request) string {
	id := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			id = c.Value
		}
	}
	if id == "" {
		id = session.NewID()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.Config.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	return id
}

func formatKB(n int) string {
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}

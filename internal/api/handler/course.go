package handler

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coursevault/coursevault/internal/domain"
	"github.com/coursevault/coursevault/internal/store"
)

// CourseHandler serves per-course sync state. Each request opens the
// course database read-mostly and closes it when done; state databases
// are small and SQLite opens are cheap.
type CourseHandler struct {
	stateDir string
	logger   *slog.Logger
}

// NewCourseHandler creates a course handler over the state directory.
func NewCourseHandler(stateDir string, logger *slog.Logger) *CourseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CourseHandler{stateDir: stateDir, logger: logger}
}

// LessonResponse is the JSON shape of one lesson.
type LessonResponse struct {
	ID           int64      `json:"id"`
	ModuleID     int64      `json:"module_id"`
	Slug         string     `json:"slug"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Position     int        `json:"position"`
	Locked       bool       `json:"locked"`
	Status       string     `json:"status"`
	Protocol     string     `json:"protocol,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ScannedAt    *time.Time `json:"scanned_at,omitempty"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	FileSize     int64      `json:"file_size,omitempty"`
}

func toLessonResponse(l *domain.Lesson) LessonResponse {
	return LessonResponse{
		ID:           l.ID,
		ModuleID:     l.ModuleID,
		Slug:         l.Slug,
		Name:         l.Name,
		URL:          l.URL,
		Position:     l.Position,
		Locked:       l.Locked,
		Status:       string(l.Status),
		Protocol:     l.Protocol.String(),
		ErrorMessage: l.ErrorMessage,
		ErrorCode:    l.ErrorCode,
		ScannedAt:    l.ScannedAt,
		DownloadedAt: l.DownloadedAt,
		FileSize:     l.FileSize,
	}
}

// List handles GET /api/v1/courses.
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.stateDir)
	if os.IsNotExist(err) {
		writeJSON(w, http.StatusOK, map[string][]string{"courses": {}})
		return
	}
	if err != nil {
		h.logger.Error("list courses", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list courses")
		return
	}

	slugs := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".db") {
			slugs = append(slugs, strings.TrimSuffix(e.Name(), ".db"))
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"courses": slugs})
}

// Summary handles GET /api/v1/courses/{slug}/summary.
func (h *CourseHandler) Summary(w http.ResponseWriter, r *http.Request) {
	st, ok := h.open(w, r)
	if !ok {
		return
	}
	defer st.Close()

	summary, err := st.Summary(r.Context())
	if err != nil {
		h.logger.Error("course summary", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read course state")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Lessons handles GET /api/v1/courses/{slug}/lessons. The optional
// error_code query parameter narrows the list to errored lessons with
// that code.
func (h *CourseHandler) Lessons(w http.ResponseWriter, r *http.Request) {
	st, ok := h.open(w, r)
	if !ok {
		return
	}
	defer st.Close()

	var lessons []*domain.Lesson
	var err error
	if code := r.URL.Query().Get("error_code"); code != "" {
		lessons, err = st.LessonsByErrorCode(r.Context(), code)
	} else {
		lessons, err = st.Lessons(r.Context())
	}
	if err != nil {
		h.logger.Error("list lessons", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read course state")
		return
	}

	out := make([]LessonResponse, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, toLessonResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string][]LessonResponse{"lessons": out})
}

// ResetErrors handles POST /api/v1/courses/{slug}/reset-errors.
func (h *CourseHandler) ResetErrors(w http.ResponseWriter, r *http.Request) {
	st, ok := h.open(w, r)
	if !ok {
		return
	}
	defer st.Close()

	n, err := st.ResetErrors(r.Context())
	if err != nil {
		h.logger.Error("reset errors", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset errors")
		return
	}

	h.logger.Info("errors reset", "course", chi.URLParam(r, "slug"), "count", n)
	writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

// open resolves the course database for the request, writing the error
// response itself when the course is unknown.
func (h *CourseHandler) open(w http.ResponseWriter, r *http.Request) (*store.Store, bool) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "course slug is required")
		return nil, false
	}

	path := filepath.Join(h.stateDir, store.SanitizeSlug(slug)+".db")
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "unknown course: "+slug)
		return nil, false
	}

	st, err := store.Open(h.stateDir, slug, h.logger)
	if err != nil {
		h.logger.Error("open course state", "course", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to open course state")
		return nil, false
	}
	return st, true
}

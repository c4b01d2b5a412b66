package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/coursevault/coursevault/internal/domain"
	"github.com/coursevault/coursevault/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedCourse creates a course database with three lessons: one
// downloaded, one pending, one errored with AUTH_EXPIRED.
func seedCourse(t *testing.T, stateDir, slug string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(stateDir, slug, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	m := &domain.Module{Slug: "module-1", Name: "Module 1", Position: 1}
	if err := st.UpsertModule(ctx, m); err != nil {
		t.Fatalf("UpsertModule: %v", err)
	}

	ids := make([]int64, 3)
	for i, slug := range []string{"a", "b", "c"} {
		l := &domain.Lesson{
			ModuleID: m.ID,
			Slug:     slug,
			Name:     slug,
			URL:      "https://school.example.com/l/" + slug,
			Position: i + 1,
		}
		if err := st.UpsertLesson(ctx, l); err != nil {
			t.Fatalf("UpsertLesson: %v", err)
		}
		ids[i] = l.ID
	}

	if err := st.MarkScanned(ctx, ids[0], domain.ProtocolHLS, "https://cdn/a.m3u8"); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkDownloaded(ctx, ids[0], 100); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkError(ctx, ids[2], "signed url expired", domain.CodeAuthExpired); err != nil {
		t.Fatal(err)
	}
	if err := st.SetMeta(ctx, "name", "Test Course"); err != nil {
		t.Fatal(err)
	}
}

func courseRouter(stateDir string) *chi.Mux {
	h := NewCourseHandler(stateDir, testLogger())
	r := chi.NewRouter()
	r.Get("/courses", h.List)
	r.Get("/courses/{slug}/summary", h.Summary)
	r.Get("/courses/{slug}/lessons", h.Lessons)
	r.Post("/courses/{slug}/reset-errors", h.ResetErrors)
	return r
}

func TestSummary(t *testing.T) {
	stateDir := t.TempDir()
	seedCourse(t, stateDir, "go-course")
	r := courseRouter(stateDir)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses/go-course/summary", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var sum domain.CourseSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Total != 3 {
		t.Errorf("total = %d, want 3", sum.Total)
	}
	if sum.Name != "Test Course" {
		t.Errorf("name = %q", sum.Name)
	}
	if sum.ByStatus[domain.LessonError] != 1 || sum.ByStatus[domain.LessonDownloaded] != 1 {
		t.Errorf("by_status = %v", sum.ByStatus)
	}
}

func TestSummary_UnknownCourse(t *testing.T) {
	r := courseRouter(t.TempDir())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses/nope/summary", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestLessons_ErrorCodeFilter(t *testing.T) {
	stateDir := t.TempDir()
	seedCourse(t, stateDir, "go-course")
	r := courseRouter(stateDir)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/courses/go-course/lessons?error_code=AUTH_EXPIRED", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Lessons []LessonResponse `json:"lessons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Lessons) != 1 {
		t.Fatalf("lessons = %d, want 1", len(body.Lessons))
	}
	if body.Lessons[0].ErrorCode != domain.CodeAuthExpired {
		t.Errorf("error_code = %q", body.Lessons[0].ErrorCode)
	}
}

func TestLessons_All(t *testing.T) {
	stateDir := t.TempDir()
	seedCourse(t, stateDir, "go-course")
	r := courseRouter(stateDir)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses/go-course/lessons", nil))

	var body struct {
		Lessons []LessonResponse `json:"lessons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Lessons) != 3 {
		t.Errorf("lessons = %d, want 3", len(body.Lessons))
	}
}

func TestResetErrors(t *testing.T) {
	stateDir := t.TempDir()
	seedCourse(t, stateDir, "go-course")
	r := courseRouter(stateDir)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/courses/go-course/reset-errors", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["reset"] != 1 {
		t.Errorf("reset = %d, want 1", body["reset"])
	}

	// The errored lesson is pending again.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/courses/go-course/lessons?error_code=AUTH_EXPIRED", nil))
	var after struct {
		Lessons []LessonResponse `json:"lessons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(after.Lessons) != 0 {
		t.Errorf("errored lessons after reset = %d, want 0", len(after.Lessons))
	}
}

func TestList(t *testing.T) {
	stateDir := t.TempDir()
	seedCourse(t, stateDir, "go-course")
	seedCourse(t, stateDir, "rust-course")
	r := courseRouter(stateDir)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses", nil))

	var body map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body["courses"]) != 2 {
		t.Errorf("courses = %v, want 2 entries", body["courses"])
	}
}

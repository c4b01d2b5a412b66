// Package store persists per-course sync state in one SQLite database
// per course. All mutations are independent single-row statements; the
// orchestrator guarantees at most one in-flight task per lesson, so no
// cross-row transactions are needed.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coursevault/coursevault/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS course_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS modules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	locked INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS lessons (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	module_id INTEGER NOT NULL REFERENCES modules(id),
	slug TEXT NOT NULL,
	name TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	position INTEGER NOT NULL DEFAULT 0,
	locked INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	protocol TEXT NOT NULL DEFAULT '',
	video_url TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	error_code TEXT NOT NULL DEFAULT '',
	scanned_at TEXT NOT NULL DEFAULT '',
	downloaded_at TEXT NOT NULL DEFAULT '',
	file_size INTEGER NOT NULL DEFAULT 0,
	UNIQUE(module_id, slug)
);
CREATE INDEX IF NOT EXISTS idx_lessons_status ON lessons(status);
CREATE INDEX IF NOT EXISTS idx_lessons_error_code ON lessons(error_code);
CREATE INDEX IF NOT EXISTS idx_lessons_module ON lessons(module_id);
`

// Store is the durable sync state for one course.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates or opens the course database under stateDir, named by
// the sanitized course slug, and applies the schema.
func Open(stateDir, courseSlug string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(stateDir, SanitizeSlug(courseSlug)+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// UpsertModule inserts or updates a module by slug and fills in its id.
func (s *Store) UpsertModule(ctx context.Context, m *domain.Module) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO modules (slug, name, position, locked)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			position = excluded.position,
			locked = excluded.locked`,
		m.Slug, m.Name, m.Position, boolInt(m.Locked),
	)
	if err != nil {
		return fmt.Errorf("upsert module: %w", err)
	}

	return s.db.QueryRowContext(ctx,
		"SELECT id FROM modules WHERE slug = ?", m.Slug,
	).Scan(&m.ID)
}

// UpsertLesson inserts or updates a lesson by url and fills in its id.
// A re-scan upsert refreshes name, position and locked but never
// touches lifecycle columns, so a downloaded lesson stays downloaded.
func (s *Store) UpsertLesson(ctx context.Context, l *domain.Lesson) error {
	status := l.Status
	if status == "" {
		status = domain.LessonPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lessons (module_id, slug, name, url, position, locked, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			module_id = excluded.module_id,
			slug = excluded.slug,
			name = excluded.name,
			position = excluded.position,
			locked = excluded.locked`,
		l.ModuleID, l.Slug, l.Name, l.URL, l.Position, boolInt(l.Locked), status,
	)
	if err != nil {
		return fmt.Errorf("upsert lesson: %w", err)
	}

	return s.db.QueryRowContext(ctx,
		"SELECT id FROM lessons WHERE url = ?", l.URL,
	).Scan(&l.ID)
}

// MarkScanned moves a pending lesson to scanned with its resolved
// protocol and stream URL.
func (s *Store) MarkScanned(ctx context.Context, id int64, protocol domain.Protocol, videoURL string) error {
	return s.update(ctx, `
		UPDATE lessons SET status = ?, protocol = ?, video_url = ?, scanned_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		domain.LessonScanned, protocol.String(), videoURL, now(),
		id, domain.LessonPending, domain.LessonScanned,
	)
}

// MarkSkipped records that extraction found no video for the lesson.
func (s *Store) MarkSkipped(ctx context.Context, id int64) error {
	return s.update(ctx, `
		UPDATE lessons SET status = ?, scanned_at = ?
		WHERE id = ? AND status = ?`,
		domain.LessonSkipped, now(), id, domain.LessonPending,
	)
}

// MarkValidated records a fully resolved and authenticated stream URL.
func (s *Store) MarkValidated(ctx context.Context, id int64, videoURL string) error {
	return s.update(ctx, `
		UPDATE lessons SET status = ?, video_url = ?
		WHERE id = ? AND status IN (?, ?)`,
		domain.LessonValidated, videoURL,
		id, domain.LessonScanned, domain.LessonValidated,
	)
}

// MarkDownloaded records a verified successful write. It must only be
// called after the output file has been confirmed on disk.
func (s *Store) MarkDownloaded(ctx context.Context, id int64, fileSize int64) error {
	return s.update(ctx, `
		UPDATE lessons SET status = ?, downloaded_at = ?, file_size = ?,
			error_message = '', error_code = ''
		WHERE id = ? AND status IN (?, ?)`,
		domain.LessonDownloaded, now(), fileSize,
		id, domain.LessonScanned, domain.LessonValidated,
	)
}

// MarkError records an unrecoverable failure from any state.
func (s *Store) MarkError(ctx context.Context, id int64, message, code string) error {
	return s.update(ctx, `
		UPDATE lessons SET status = ?, error_message = ?, error_code = ?
		WHERE id = ?`,
		domain.LessonError, message, code, id,
	)
}

// SetLocked flips a lesson's locked flag without touching its status.
func (s *Store) SetLocked(ctx context.Context, id int64, locked bool) error {
	return s.update(ctx,
		"UPDATE lessons SET locked = ? WHERE id = ?", boolInt(locked), id,
	)
}

// ResetErrors returns all errored lessons to pending and reports how
// many were reset.
func (s *Store) ResetErrors(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lessons SET status = ?, error_message = '', error_code = ''
		WHERE status = ?`,
		domain.LessonPending, domain.LessonError,
	)
	if err != nil {
		return 0, fmt.Errorf("reset errors: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// GetLesson retrieves one lesson by id.
func (s *Store) GetLesson(ctx context.Context, id int64) (*domain.Lesson, error) {
	row := s.db.QueryRowContext(ctx, lessonSelect+" WHERE l.id = ?", id)
	l, err := scanLesson(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrLessonNotFound
	}
	return l, err
}

// NeedsScan lists unlocked pending lessons in course order.
func (s *Store) NeedsScan(ctx context.Context) ([]*domain.Lesson, error) {
	return s.queryLessons(ctx, lessonSelect+`
		JOIN modules m ON m.id = l.module_id
		WHERE l.status = ? AND l.locked = 0
		ORDER BY m.position, l.position`,
		domain.LessonPending,
	)
}

// ReadyToDownload lists unlocked scanned/validated lessons in course order.
func (s *Store) ReadyToDownload(ctx context.Context) ([]*domain.Lesson, error) {
	return s.queryLessons(ctx, lessonSelect+`
		JOIN modules m ON m.id = l.module_id
		WHERE l.status IN (?, ?) AND l.locked = 0
		ORDER BY m.position, l.position`,
		domain.LessonScanned, domain.LessonValidated,
	)
}

// Lessons lists every lesson in course order.
func (s *Store) Lessons(ctx context.Context) ([]*domain.Lesson, error) {
	return s.queryLessons(ctx, lessonSelect+`
		JOIN modules m ON m.id = l.module_id
		ORDER BY m.position, l.position`)
}

// LessonsByErrorCode lists errored lessons carrying the given code.
func (s *Store) LessonsByErrorCode(ctx context.Context, code string) ([]*domain.Lesson, error) {
	return s.queryLessons(ctx, lessonSelect+`
		WHERE l.status = ? AND l.error_code = ?
		ORDER BY l.module_id, l.position`,
		domain.LessonError, code,
	)
}

// Summary aggregates lesson state for the course.
func (s *Store) Summary(ctx context.Context) (*domain.CourseSummary, error) {
	summary := &domain.CourseSummary{
		ByStatus: make(map[domain.LessonStatus]int),
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM lessons GROUP BY status",
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary.ByStatus[domain.LessonStatus(status)] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM lessons WHERE locked = 1",
	).Scan(&summary.Locked); err != nil {
		return nil, err
	}

	summary.Name, _ = s.GetMeta(ctx, "name")
	summary.URL, _ = s.GetMeta(ctx, "url")
	if raw, err := s.GetMeta(ctx, "last_sync"); err == nil && raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			summary.LastSyncAt = &ts
		}
	}

	return summary, nil
}

// SetMeta stores one course metadata key.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

// GetMeta retrieves one course metadata key; missing keys yield "".
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM course_meta WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetLastSync records the course's last sync time.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.SetMeta(ctx, "last_sync", t.UTC().Format(time.RFC3339))
}

const lessonSelect = `
	SELECT l.id, l.module_id, l.slug, l.name, l.url, l.position, l.locked,
		l.status, l.protocol, l.video_url, l.error_message, l.error_code,
		l.scanned_at, l.downloaded_at, l.file_size
	FROM lessons l`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLesson(row rowScanner) (*domain.Lesson, error) {
	var l domain.Lesson
	var locked int
	var status, protocol, scannedAt, downloadedAt string

	err := row.Scan(&l.ID, &l.ModuleID, &l.Slug, &l.Name, &l.URL, &l.Position,
		&locked, &status, &protocol, &l.VideoURL, &l.ErrorMessage,
		&l.ErrorCode, &scannedAt, &downloadedAt, &l.FileSize)
	if err != nil {
		return nil, err
	}

	l.Locked = locked != 0
	l.Status = domain.LessonStatus(status)
	l.Protocol = domain.Protocol(protocol)
	l.ScannedAt = parseTime(scannedAt)
	l.DownloadedAt = parseTime(downloadedAt)
	return &l, nil
}

func (s *Store) queryLessons(ctx context.Context, query string, args ...any) ([]*domain.Lesson, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	var lessons []*domain.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// update runs a single-row update, mapping zero affected rows to
// ErrLessonNotFound (missing row or disallowed transition).
func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrLessonNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

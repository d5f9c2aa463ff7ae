package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kmsgrab/internal/config"
)

// Store manages capture log persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Entry is one recorded capture.
type Entry struct {
	ID            int64
	CaptureID     string
	OutputPath    string
	DevicePath    string
	CrtcID        uint32
	FramebufferID uint32
	Width         int
	Height        int
	Pitch         uint32
	BitsPerPixel  uint32
	PixelFormat   string
	OutputBytes   int64
	Duration      time.Duration
	CreatedAt     time.Time
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.History.Path
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const entryColumns = "id, capture_id, output_path, device_path, crtc_id, framebuffer_id, width, height, pitch, bits_per_pixel, pixel_format, output_bytes, duration_ms, created_at"

// Record inserts one capture row and returns it as stored. Durations are
// kept at millisecond precision.
func (s *Store) Record(ctx context.Context, entry Entry) (*Entry, error) {
	if strings.TrimSpace(entry.CaptureID) == "" {
		return nil, errors.New("capture id required")
	}
	if strings.TrimSpace(entry.OutputPath) == "" {
		return nil, errors.New("output path required")
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO captures (
            capture_id, output_path, device_path, crtc_id, framebuffer_id,
            width, height, pitch, bits_per_pixel, pixel_format,
            output_bytes, duration_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CaptureID,
		entry.OutputPath,
		entry.DevicePath,
		entry.CrtcID,
		entry.FramebufferID,
		entry.Width,
		entry.Height,
		entry.Pitch,
		entry.BitsPerPixel,
		entry.PixelFormat,
		entry.OutputBytes,
		entry.Duration.Milliseconds(),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert capture: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a capture row by identifier. Missing rows return nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM captures WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get capture: %w", err)
	}
	return entry, nil
}

// List returns recorded captures, newest first. A limit <= 0 returns every
// row.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM captures ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Count reports the number of recorded captures.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM captures`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count captures: %w", err)
	}
	return count, nil
}

// Prune deletes all but the newest keep rows and reports how many were
// removed. A keep <= 0 disables pruning.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM captures WHERE id NOT IN (SELECT id FROM captures ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune captures: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry      Entry
		durationMS int64
		createdRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.CaptureID,
		&entry.OutputPath,
		&entry.DevicePath,
		&entry.CrtcID,
		&entry.FramebufferID,
		&entry.Width,
		&entry.Height,
		&entry.Pitch,
		&entry.BitsPerPixel,
		&entry.PixelFormat,
		&entry.OutputBytes,
		&durationMS,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return &entry, nil
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mgpai22/bilingo/internal/subtitle"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the default single-file backend.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

func OpenSQLite(ctx context.Context, dsn string, timeout time.Duration) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, persistenceError("open", "", fmt.Errorf("create db directory: %w", err))
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, persistenceError("open", "", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, timeout: timeout}
	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.init(initCtx); err != nil {
		_ = db.Close()
		return nil, persistenceError("migrate", "", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		version := migrationVersion(entry.Name())
		if entry.IsDir() || version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES (?)`, version,
		); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// leading integer of a migration filename ("001_init.sql" -> 1)
func migrationVersion(name string) int {
	end := 0
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(name[:end])
	return n
}

func (s *SQLiteStore) UpsertTrack(ctx context.Context, track subtitle.Track) (int, error) {
	if err := checkTrack(track); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistenceError("upsert", track.VideoID, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subtitle_videos (video_id, lang_primary, lang_secondary, cue_count, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(video_id) DO UPDATE SET
			lang_primary=excluded.lang_primary,
			lang_secondary=excluded.lang_secondary,
			cue_count=excluded.cue_count,
			updated_at=excluded.updated_at`,
		track.VideoID, track.LangPrimary, track.LangSecondary, track.Len(), stamp,
	); err != nil {
		return 0, persistenceError("upsert", track.VideoID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO subtitle_cues (video_id, seq, start_time, end_time, en_text, zh_text, degraded, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(video_id, seq) DO UPDATE SET
			start_time=excluded.start_time,
			end_time=excluded.end_time,
			en_text=excluded.en_text,
			zh_text=excluded.zh_text,
			degraded=excluded.degraded,
			updated_at=excluded.updated_at`,
	)
	if err != nil {
		return 0, persistenceError("upsert", track.VideoID, err)
	}
	defer stmt.Close()

	for _, cue := range track.Cues {
		row := newCueRow(track.VideoID, cue, now)
		if _, err := stmt.ExecContext(ctx,
			row.VideoID, row.Seq, row.StartTime, row.EndTime,
			row.EnText, row.ZhText, row.Degraded, stamp,
		); err != nil {
			return 0, persistenceError("upsert", track.VideoID, fmt.Errorf("cue %d: %w", cue.Seq, err))
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subtitle_cues WHERE video_id = ? AND seq > ?`,
		track.VideoID, track.Len(),
	); err != nil {
		return 0, persistenceError("upsert", track.VideoID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, persistenceError("upsert", track.VideoID, err)
	}
	return track.Len(), nil
}

func (s *SQLiteStore) LoadTrack(ctx context.Context, videoID string) (subtitle.Track, error) {
	if err := checkVideoID(videoID); err != nil {
		return subtitle.Track{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return subtitle.Track{}, persistenceError("load", videoID, err)
	}
	defer func() { _ = tx.Rollback() }()

	track := subtitle.Track{VideoID: videoID}
	err = tx.QueryRowContext(ctx,
		`SELECT lang_primary, lang_secondary FROM subtitle_videos WHERE video_id = ?`, videoID,
	).Scan(&track.LangPrimary, &track.LangSecondary)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return subtitle.Track{}, persistenceError("load", videoID, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT seq, start_time, end_time, en_text, zh_text, degraded
		 FROM subtitle_cues
		 WHERE video_id = ?
		 ORDER BY seq ASC`,
		videoID,
	)
	if err != nil {
		return subtitle.Track{}, persistenceError("load", videoID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var row cueRow
		if err := rows.Scan(
			&row.Seq, &row.StartTime, &row.EndTime, &row.EnText, &row.ZhText, &row.Degraded,
		); err != nil {
			return subtitle.Track{}, persistenceError("load", videoID, err)
		}
		cue, err := row.cue()
		if err != nil {
			return subtitle.Track{}, persistenceError("load", videoID, err)
		}
		track.Cues = append(track.Cues, cue)
	}
	if err := rows.Err(); err != nil {
		return subtitle.Track{}, persistenceError("load", videoID, err)
	}

	if track.Len() == 0 {
		return subtitle.Track{}, notFound(videoID)
	}
	return track, nil
}

func (s *SQLiteStore) Purge(ctx context.Context, videoID string) (int, error) {
	if err := checkVideoID(videoID); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistenceError("purge", videoID, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM subtitle_cues WHERE video_id = ?`, videoID)
	if err != nil {
		return 0, persistenceError("purge", videoID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subtitle_videos WHERE video_id = ?`, videoID); err != nil {
		return 0, persistenceError("purge", videoID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, persistenceError("purge", videoID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistenceError("purge", videoID, err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Count(ctx context.Context, videoID string) (int, error) {
	if err := checkVideoID(videoID); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subtitle_cues WHERE video_id = ?`, videoID,
	).Scan(&n); err != nil {
		return 0, persistenceError("count", videoID, err)
	}
	return n, nil
}

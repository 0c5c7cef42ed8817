package clips

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteStore persists job records in the jobs table. Clip results are stored
// as a JSON array in the clips column; the pack is small and ordered, so a
// separate table buys nothing.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const nonTerminalGuard = "AND status NOT IN ('completed', 'error')"

func (s *SQLiteStore) CreateJob(ctx context.Context, j *Job) error {
	clipsJSON, err := marshalClips(j.Clips)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, status, progress, current_clip_index, total_clips, clips, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.OwnerID, j.Status, j.Progress, j.CurrentClipIndex, j.TotalClips, clipsJSON,
		nullString(j.Error), j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, status, progress, current_clip_index, total_clips, clips, error, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, status, progress, current_clip_index, total_clips, clips, error, created_at, updated_at
		FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) MarkProcessing(ctx context.Context, id string, totalClips int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, total_clips = ?, progress = 0, updated_at = ?
		WHERE id = ? `+nonTerminalGuard,
		StatusProcessing, totalClips, nowRFC3339(), id)
	return err
}

func (s *SQLiteStore) AppendClip(ctx context.Context, id string, clip ClipResult, currentClipIndex, progress int) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if IsTerminal(job.Status) {
		return nil
	}

	clipsJSON, err := marshalClips(append(job.Clips, clip))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs SET clips = ?, current_clip_index = ?, progress = ?, updated_at = ?
		WHERE id = ? `+nonTerminalGuard,
		clipsJSON, currentClipIndex, progress, nowRFC3339(), id)
	return err
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = 100, updated_at = ?
		WHERE id = ? `+nonTerminalGuard,
		StatusCompleted, nowRFC3339(), id)
	return err
}

func (s *SQLiteStore) MarkError(ctx context.Context, id string, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ?
		WHERE id = ? `+nonTerminalGuard,
		StatusError, detail, nowRFC3339(), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row *sql.Row) (*Job, error) {
	j, err := scanFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	return j, err
}

func scanJobRow(rows *sql.Rows) (*Job, error) {
	return scanFrom(rows)
}

func scanFrom(r rowScanner) (*Job, error) {
	var j Job
	var clipsJSON string
	var errMsg sql.NullString
	var createdAt, updatedAt string

	err := r.Scan(&j.ID, &j.OwnerID, &j.Status, &j.Progress, &j.CurrentClipIndex, &j.TotalClips,
		&clipsJSON, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(clipsJSON), &j.Clips); err != nil {
		return nil, fmt.Errorf("corrupt clips column for job %s: %w", j.ID, err)
	}
	j.Error = errMsg.String
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("corrupt updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

// nowRFC3339 is the timestamp format for every column write; reads parse the
// same format back, so a timestamp must never be generated inside SQL.
func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func marshalClips(clips []ClipResult) (string, error) {
	if clips == nil {
		clips = []ClipResult{}
	}
	data, err := json.Marshal(clips)
	if err != nil {
		return "", fmt.Errorf("marshal clips: %w", err)
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

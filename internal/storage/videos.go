package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lueurxax/telegram-video-sorter/internal/domain"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// PutVideo registers a processed video. Idempotent on
// (normalized_name, topic_name): re-inserting an existing pair is a no-op.
func (s *Store) PutVideo(ctx context.Context, v domain.ProcessedVideo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_videos
			(file_name, normalized_name, topic_name, duration_sec, size_mb, width, height, mime_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (normalized_name, topic_name) DO NOTHING`,
		v.FileName, v.NormalizedName, v.TopicName,
		nullInt(v.Duration), nullFloat(v.SizeMB), nullInt(v.Width), nullInt(v.Height), nullStr(v.MimeType),
	)
	if err != nil {
		return fmt.Errorf("put video: %w", err)
	}

	return nil
}

// DeleteVideos removes rows whose normalized name is in names and whose topic
// is topicName or the legacy wildcard. Returns the number of deleted rows.
func (s *Store) DeleteVideos(ctx context.Context, names []string, topicName string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")

	args := make([]interface{}, 0, len(names)+2)
	for _, n := range names {
		args = append(args, n)
	}

	args = append(args, topicName, domain.TopicAny)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_videos WHERE normalized_name IN (`+placeholders+`) AND topic_name IN (?, ?)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete videos: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete videos rows affected: %w", err)
	}

	return int(affected), nil
}

// VideosByTopic returns rows under topicName plus the legacy wildcard topic,
// in insertion order.
func (s *Store) VideosByTopic(ctx context.Context, topicName string) ([]domain.ProcessedVideo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, normalized_name, topic_name, duration_sec, size_mb, width, height, mime_type, processed_at
		FROM processed_videos
		WHERE topic_name IN (?, ?)
		ORDER BY id`,
		topicName, domain.TopicAny,
	)
	if err != nil {
		return nil, fmt.Errorf("videos by topic: %w", err)
	}
	defer rows.Close()

	return scanVideos(rows)
}

// VideoCount returns the number of processed-video rows.
func (s *Store) VideoCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_videos`).Scan(&count); err != nil {
		return 0, fmt.Errorf("video count: %w", err)
	}

	return count, nil
}

// TopicCounts returns the number of processed videos per topic.
func (s *Store) TopicCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT topic_name, COUNT(*) FROM processed_videos GROUP BY topic_name`)
	if err != nil {
		return nil, fmt.Errorf("topic counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			topic string
			count int
		)

		if err := rows.Scan(&topic, &count); err != nil {
			return nil, fmt.Errorf("scan topic count: %w", err)
		}

		counts[topic] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("topic counts rows: %w", err)
	}

	return counts, nil
}

func scanVideos(rows *sql.Rows) ([]domain.ProcessedVideo, error) {
	var videos []domain.ProcessedVideo

	for rows.Next() {
		var (
			v        domain.ProcessedVideo
			duration sql.NullInt64
			sizeMB   sql.NullFloat64
			width    sql.NullInt64
			height   sql.NullInt64
			mime     sql.NullString
		)

		if err := rows.Scan(&v.FileName, &v.NormalizedName, &v.TopicName, &duration, &sizeMB, &width, &height, &mime, &v.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}

		v.Duration = int(duration.Int64)
		v.SizeMB = sizeMB.Float64
		v.Width = int(width.Int64)
		v.Height = int(height.Int64)
		v.MimeType = mime.String

		videos = append(videos, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("videos rows: %w", err)
	}

	return videos, nil
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v > 0}
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v > 0}
}

func nullStr(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

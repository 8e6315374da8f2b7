package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lueurxax/telegram-video-sorter/internal/domain"
	"github.com/lueurxax/telegram-video-sorter/internal/normalize"
)

const (
	legacyMessagesFile = "processed-messages.txt"
	legacyVideosFile   = "processed-messages-videos.txt"
	legacyMetadataFile = "processed-messages-metadata.json"
	backupSuffix       = ".backup"
)

type legacyMetadata struct {
	Duration int     `json:"duration"`
	SizeMB   float64 `json:"sizeMB"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	MimeType string  `json:"mimeType"`
}

// migrateLegacy imports the plaintext state files written by earlier versions,
// then renames them with a .backup suffix. Each file is imported in one
// transaction; a file that has already been renamed is skipped, so the
// migration runs at most once per file.
func (s *Store) migrateLegacy(dataDir string) error {
	messagesPath := filepath.Join(dataDir, legacyMessagesFile)
	if fileExists(messagesPath) {
		count, err := s.importLegacyMessages(messagesPath)
		if err != nil {
			return fmt.Errorf("import legacy messages: %w", err)
		}

		if err := os.Rename(messagesPath, messagesPath+backupSuffix); err != nil {
			return fmt.Errorf("rename legacy messages file: %w", err)
		}

		s.logger.Info().Int("count", count).Str("file", legacyMessagesFile).Msg("imported legacy processed messages")
	}

	videosPath := filepath.Join(dataDir, legacyVideosFile)
	if fileExists(videosPath) {
		metadata := loadLegacyMetadata(filepath.Join(dataDir, legacyMetadataFile))

		count, err := s.importLegacyVideos(videosPath, metadata)
		if err != nil {
			return fmt.Errorf("import legacy videos: %w", err)
		}

		if err := os.Rename(videosPath, videosPath+backupSuffix); err != nil {
			return fmt.Errorf("rename legacy videos file: %w", err)
		}

		metadataPath := filepath.Join(dataDir, legacyMetadataFile)
		if fileExists(metadataPath) {
			if err := os.Rename(metadataPath, metadataPath+backupSuffix); err != nil {
				return fmt.Errorf("rename legacy metadata file: %w", err)
			}
		}

		s.logger.Info().Int("count", count).Str("file", legacyVideosFile).Msg("imported legacy processed videos")
	}

	return nil
}

func (s *Store) importLegacyMessages(path string) (int, error) {
	lines, err := readLines(path)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO processed_messages (message_key) VALUES (?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, line := range lines {
		if _, err := stmt.Exec(line); err != nil {
			return 0, fmt.Errorf("insert %q: %w", line, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return len(lines), nil
}

func (s *Store) importLegacyVideos(path string, metadata map[string]legacyMetadata) (int, error) {
	lines, err := readLines(path)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`
		INSERT INTO processed_videos
			(file_name, normalized_name, topic_name, duration_sec, size_mb, width, height, mime_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (normalized_name, topic_name) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, fileName := range lines {
		meta := metadata[fileName]

		_, err := stmt.Exec(
			fileName, normalize.Normalize(fileName), domain.TopicAny,
			nullInt(meta.Duration), nullFloat(meta.SizeMB), nullInt(meta.Width), nullInt(meta.Height), nullStr(meta.MimeType),
		)
		if err != nil {
			return 0, fmt.Errorf("insert %q: %w", fileName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return len(lines), nil
}

func loadLegacyMetadata(path string) map[string]legacyMetadata {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	metadata := make(map[string]legacyMetadata)
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil
	}

	return metadata
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string

	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}

		lines = append(lines, line)
	}

	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	return lines, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

package forwarder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const auditFileName = "forwarding-log.json"

// AuditEntry is one successful forward in the append-only log.
type AuditEntry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	FileName       string    `json:"fileName"`
	MatchedKeyword string    `json:"matchedKeyword"`
	TopicName      string    `json:"topicName"`
	SourceGroup    string    `json:"sourceGroup"`
	Duration       int       `json:"duration"`
	SizeMB         float64   `json:"sizeMB"`
}

// AuditLog appends forward records to a JSON array on disk. The file has a
// single writer, so a read-modify-write cycle per entry is fine.
type AuditLog struct {
	path string
	now  func() time.Time
}

// NewAuditLog creates a log writing to dataDir.
func NewAuditLog(dataDir string) *AuditLog {
	return &AuditLog{path: filepath.Join(dataDir, auditFileName), now: time.Now}
}

// Append records one entry, assigning its ID and timestamp.
func (l *AuditLog) Append(entry AuditEntry) error {
	entries, err := l.read()
	if err != nil {
		return err
	}

	entry.ID = uuid.NewString()
	entry.Timestamp = l.now().UTC()

	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit log: %w", err)
	}

	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}

	return nil
}

// Entries returns the recorded entries in append order.
func (l *AuditLog) Entries() ([]AuditEntry, error) {
	return l.read()
}

func (l *AuditLog) read() ([]AuditEntry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read audit log: %w", err)
	}

	var entries []AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse audit log: %w", err)
	}

	return entries, nil
}

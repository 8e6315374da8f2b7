// Package dedup implements the duplicate decision procedure for candidate
// videos against the processed-video store.
package dedup

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-video-sorter/internal/domain"
)

const (
	nearNameThreshold = 0.85
	minLengthRatio    = 0.7
	prefixWeight      = 0.7
	jaccardWeight     = 0.3
	fullPercent       = 100
)

// Policy configures which metadata checks participate in duplicate decisions
// and their tolerances.
type Policy struct {
	CheckDuration              bool
	DurationToleranceSeconds   int
	CheckFileSize              bool
	FileSizeTolerancePercent   float64
	CheckResolution            bool
	ResolutionTolerancePercent float64
	CheckMimeType              bool
	NormalizeFilenames         bool
}

// DefaultPolicy returns the stock tolerances: 30 seconds, 5 percent size,
// 10 percent resolution, filename normalization on.
func DefaultPolicy() Policy {
	return Policy{
		DurationToleranceSeconds:   30,
		FileSizeTolerancePercent:   5,
		ResolutionTolerancePercent: 10,
		NormalizeFilenames:         true,
	}
}

// AnyCheckEnabled reports whether at least one metadata check is on.
func (p Policy) AnyCheckEnabled() bool {
	return p.CheckDuration || p.CheckFileSize || p.CheckResolution || p.CheckMimeType
}

// MetadataMatch reports whether every enabled check passes between the
// candidate and the stored row. A check passes only when both sides carry the
// data and the difference is within tolerance; missing data on either side
// fails that check.
func (p Policy) MetadataMatch(c domain.Candidate, row domain.ProcessedVideo) bool {
	if p.CheckDuration {
		if c.Duration == 0 || row.Duration == 0 {
			return false
		}

		if abs(c.Duration-row.Duration) > p.DurationToleranceSeconds {
			return false
		}
	}

	if p.CheckFileSize {
		if c.SizeMB == 0 || row.SizeMB == 0 {
			return false
		}

		if percentDiff(c.SizeMB, row.SizeMB) > p.FileSizeTolerancePercent {
			return false
		}
	}

	if p.CheckResolution {
		if !c.HasResolution() || !row.HasResolution() {
			return false
		}

		if percentDiff(float64(c.Width*c.Height), float64(row.Width*row.Height)) > p.ResolutionTolerancePercent {
			return false
		}
	}

	if p.CheckMimeType {
		if c.MimeType == "" || row.MimeType == "" {
			return false
		}

		if !strings.EqualFold(c.MimeType, row.MimeType) {
			return false
		}
	}

	return true
}

// Repository is the slice of the store the detector needs.
type Repository interface {
	VideosByTopic(ctx context.Context, topicName string) ([]domain.ProcessedVideo, error)
}

// Detector decides whether a candidate video is already present in a topic.
type Detector struct {
	repo   Repository
	policy Policy
	logger *zerolog.Logger
}

// New creates a detector over the given repository and policy.
func New(repo Repository, policy Policy, logger *zerolog.Logger) *Detector {
	return &Detector{repo: repo, policy: policy, logger: logger}
}

// Policy returns the detector's policy.
func (d *Detector) Policy() Policy {
	return d.policy
}

// FindSimilar returns the first stored row in topicName considered the same
// video as the candidate, or nil. Rows are evaluated in insertion order.
func (d *Detector) FindSimilar(ctx context.Context, c domain.Candidate, topicName string) (*domain.ProcessedVideo, error) {
	matches, err := d.find(ctx, c, topicName, true)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, nil
	}

	return &matches[0], nil
}

// FindAllSimilar returns every stored row in topicName considered the same
// video as the candidate, in insertion order.
func (d *Detector) FindAllSimilar(ctx context.Context, c domain.Candidate, topicName string) ([]domain.ProcessedVideo, error) {
	return d.find(ctx, c, topicName, false)
}

func (d *Detector) find(ctx context.Context, c domain.Candidate, topicName string, firstOnly bool) ([]domain.ProcessedVideo, error) {
	rows, err := d.repo.VideosByTopic(ctx, topicName)
	if err != nil {
		return nil, fmt.Errorf("load topic rows: %w", err)
	}

	var matches []domain.ProcessedVideo

	// Exact-name path: without metadata checks a name collision alone is a
	// duplicate; with checks every enabled one must pass.
	if c.NormalizedName != "" {
		for _, row := range rows {
			if row.NormalizedName != c.NormalizedName {
				continue
			}

			if d.policy.AnyCheckEnabled() && !d.policy.MetadataMatch(c, row) {
				continue
			}

			d.explain(c, row, topicName, "exact name")

			matches = append(matches, row)

			if firstOnly {
				return matches, nil
			}
		}
	}

	if !d.policy.AnyCheckEnabled() {
		return matches, nil
	}

	// Near-name path: similar names still need every enabled check to pass.
	for _, row := range rows {
		if row.NormalizedName == c.NormalizedName {
			continue
		}

		if nameSimilarity(c.NormalizedName, row.NormalizedName) < nearNameThreshold {
			continue
		}

		if !d.policy.MetadataMatch(c, row) {
			continue
		}

		d.explain(c, row, topicName, "near name")

		matches = append(matches, row)

		if firstOnly {
			return matches, nil
		}
	}

	if len(matches) > 0 {
		return matches, nil
	}

	// Metadata-only fallback: same video republished under an unrelated name.
	for _, row := range rows {
		if !d.policy.MetadataMatch(c, row) {
			continue
		}

		d.explain(c, row, topicName, "metadata only")

		matches = append(matches, row)

		if firstOnly {
			return matches, nil
		}
	}

	return matches, nil
}

func (d *Detector) explain(c domain.Candidate, row domain.ProcessedVideo, topicName, path string) {
	d.logger.Debug().
		Str("file", c.FileName).
		Str("existing", row.FileName).
		Str("topic", topicName).
		Str("path", path).
		Msg("duplicate detected")
}

// nameSimilarity scores two normalized names in [0, 1]. The metric weights a
// shared prefix against character-set overlap and is tuned for truncated
// filenames; it is deliberately not an edit distance.
func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	if a == b {
		return 1
	}

	minLen, maxLen := len(a), len(b)
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}

	ratio := float64(minLen) / float64(maxLen)
	if ratio < minLengthRatio {
		return 0
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return ratio
	}

	prefix := commonPrefixLen(a, b)

	return prefixWeight*float64(prefix)/float64(maxLen) + jaccardWeight*charSetJaccard(a, b)
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}

	return n
}

func charSetJaccard(a, b string) float64 {
	var setA, setB [256]bool

	for i := 0; i < len(a); i++ {
		setA[a[i]] = true
	}

	for i := 0; i < len(b); i++ {
		setB[b[i]] = true
	}

	intersection, union := 0, 0

	for i := 0; i < 256; i++ {
		switch {
		case setA[i] && setB[i]:
			intersection++
			union++
		case setA[i] || setB[i]:
			union++
		}
	}

	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

func percentDiff(a, b float64) float64 {
	maxVal := math.Max(a, b)
	if maxVal == 0 {
		return 0
	}

	return math.Abs(a-b) / maxVal * fullPercent
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}

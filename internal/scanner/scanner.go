// Package scanner walks source chat histories, applies the keyword
// predicate and the duplicate oracle to each video, and drives the
// replace-then-forward loop into destination topics.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-video-sorter/internal/dedup"
	"github.com/lueurxax/telegram-video-sorter/internal/domain"
	"github.com/lueurxax/telegram-video-sorter/internal/forum"
	"github.com/lueurxax/telegram-video-sorter/internal/forwarder"
	"github.com/lueurxax/telegram-video-sorter/internal/match"
	"github.com/lueurxax/telegram-video-sorter/internal/normalize"
	"github.com/lueurxax/telegram-video-sorter/internal/observability"
	"github.com/lueurxax/telegram-video-sorter/internal/telegram"
	"github.com/lueurxax/telegram-video-sorter/internal/topiccache"
)

const (
	batchSleep         = 500 * time.Millisecond
	deleteBatchSleep   = 200 * time.Millisecond
	afterDeletionSleep = 500 * time.Millisecond
)

// Store is the slice of the persistent store the scanner needs.
type Store interface {
	HasMessage(ctx context.Context, key string) (bool, error)
	PutMessage(ctx context.Context, key string) error
	PutVideo(ctx context.Context, v domain.ProcessedVideo) error
	DeleteVideos(ctx context.Context, names []string, topicName string) (int, error)
}

// Oracle decides duplicates for the scanner.
type Oracle interface {
	FindSimilar(ctx context.Context, c domain.Candidate, topicName string) (*domain.ProcessedVideo, error)
	FindAllSimilar(ctx context.Context, c domain.Candidate, topicName string) ([]domain.ProcessedVideo, error)
	Policy() dedup.Policy
}

// Sleeper paces batches and deletions.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Config bounds one run of the scanner.
type Config struct {
	Matches            []string
	Exclusions         []string
	MinDurationSeconds int
	MaxDurationSeconds int
	MinSizeMB          float64
	MaxSizeMB          float64
	MaxForwards        int
	DryRun             bool
}

// Result reports one source scan.
type Result struct {
	MessagesProcessed int
	TotalForwarded    int
}

// Scanner processes source chats one at a time. The forward counter spans
// sources, so the per-run cap holds across all of them.
type Scanner struct {
	api     telegram.API
	store   Store
	oracle  Oracle
	cache   *topiccache.Cache
	fwd     *forwarder.Forwarder
	sleeper Sleeper
	dest    forum.Destination
	cfg     Config
	logger  *zerolog.Logger

	forwarded     int
	topicForwards map[string]int
}

// New creates a scanner over the destination resolved by provisioning.
func New(
	api telegram.API,
	store Store,
	oracle Oracle,
	cache *topiccache.Cache,
	fwd *forwarder.Forwarder,
	sleeper Sleeper,
	dest forum.Destination,
	cfg Config,
	logger *zerolog.Logger,
) *Scanner {
	return &Scanner{
		api:           api,
		store:         store,
		oracle:        oracle,
		cache:         cache,
		fwd:           fwd,
		sleeper:       sleeper,
		dest:          dest,
		cfg:           cfg,
		logger:        logger,
		topicForwards: make(map[string]int),
	}
}

// TotalForwarded returns the number of source messages forwarded so far
// across all scanned sources.
func (s *Scanner) TotalForwarded() int {
	return s.forwarded
}

// TopicForwards returns per-topic forward counts accumulated so far.
func (s *Scanner) TopicForwards() map[string]int {
	counts := make(map[string]int, len(s.topicForwards))
	for topic, n := range s.topicForwards {
		counts[topic] = n
	}

	return counts
}

// ScanSource walks one source chat's history from newest to oldest until
// an empty page or the forward cap.
func (s *Scanner) ScanSource(ctx context.Context, source telegram.Chat) (Result, error) {
	logger := s.logger.With().Str("source", source.Title).Int64("chat", source.ID).Logger()
	logger.Info().Msg("scanning source")

	var result Result

	offsetID := 0
	hasMore := true

	for hasMore {
		page, err := s.api.HistoryPage(ctx, source, offsetID, telegram.PageLimit)
		if err != nil {
			return result, fmt.Errorf("history page: %w", err)
		}

		if len(page) == 0 {
			break
		}

		for _, msg := range page {
			processed, more, err := s.processMessage(ctx, source, msg, &logger)
			if err != nil {
				return result, err
			}

			if processed {
				result.MessagesProcessed++

				observability.MessagesScanned.WithLabelValues(source.Title).Inc()
			}

			if !more {
				hasMore = false

				break
			}
		}

		offsetID = page[len(page)-1].ID

		if hasMore {
			if err := s.sleeper.Sleep(ctx, batchSleep); err != nil {
				return result, err
			}
		}
	}

	result.TotalForwarded = s.forwarded

	logger.Info().Int("processed", result.MessagesProcessed).Int("forwarded_total", s.forwarded).Msg("source scanned")

	return result, nil
}

// processMessage runs the per-candidate pipeline. It reports whether the
// message counted as processed and whether the scan should continue.
func (s *Scanner) processMessage(ctx context.Context, source telegram.Chat, msg *tg.Message, logger *zerolog.Logger) (bool, bool, error) {
	if _, ok := msg.GetMedia(); !ok {
		return false, true, nil
	}

	key := domain.MessageKey(source.ID, msg.ID)

	seen, err := s.store.HasMessage(ctx, key)
	if err != nil {
		return false, true, fmt.Errorf("has message: %w", err)
	}

	if seen {
		return false, true, nil
	}

	// Committed before any decision: this message is never revisited, even
	// when everything after this line fails.
	if err := s.store.PutMessage(ctx, key); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("pre-commit failed, abandoning candidate")

		return false, true, nil
	}

	keywords := match.Keywords(msg, s.cfg.Matches, s.cfg.Exclusions, s.cfg.MinDurationSeconds)
	if len(keywords) == 0 {
		return true, true, nil
	}

	if s.forwarded >= s.cfg.MaxForwards {
		logger.Info().Int("cap", s.cfg.MaxForwards).Msg("forward cap reached, stopping scan")

		return true, false, nil
	}

	video, ok := match.LiftVideo(msg)
	if !ok {
		return true, true, nil
	}

	if !s.withinBounds(video, logger) {
		return true, true, nil
	}

	candidate := match.NewCandidate(source.ID, msg, video, s.normalizer())

	existing, fresh, err := s.partitionTopics(ctx, candidate, keywords)
	if err != nil {
		return true, true, err
	}

	if len(fresh) == 0 {
		logger.Debug().Str("file", candidate.FileName).Msg("duplicate in every matched topic")

		return true, true, nil
	}

	// Pre-registration: later identical candidates in this run see these
	// rows and stop at the partition step.
	if !s.cfg.DryRun {
		for _, topic := range fresh {
			if err := s.store.PutVideo(ctx, processedVideo(candidate, topic)); err != nil {
				logger.Error().Err(err).Str("file", candidate.FileName).Msg("pre-register failed, abandoning candidate")

				return true, true, nil
			}
		}
	}

	for _, topic := range existing {
		if err := s.replaceDuplicates(ctx, candidate, topic, logger); err != nil {
			logger.Error().Err(err).Str("topic", topic).Msg("duplicate replacement failed, forwarding anyway")
		}
	}

	if s.forwardFanOut(ctx, source, msg, candidate, keywords) {
		s.forwarded++
	}

	return true, true, nil
}

func (s *Scanner) normalizer() func(string) string {
	if s.oracle.Policy().NormalizeFilenames {
		return normalize.Normalize
	}

	return strings.ToLower
}

func (s *Scanner) withinBounds(video *match.Video, logger *zerolog.Logger) bool {
	sizeMB := video.SizeMB()

	if s.cfg.MinSizeMB > 0 && sizeMB < s.cfg.MinSizeMB {
		logger.Debug().Str("file", video.FileName).Float64("size_mb", sizeMB).Msg("below min size")

		return false
	}

	if s.cfg.MaxSizeMB > 0 && sizeMB > s.cfg.MaxSizeMB {
		logger.Debug().Str("file", video.FileName).Float64("size_mb", sizeMB).Msg("above max size")

		return false
	}

	if s.cfg.MaxDurationSeconds > 0 && video.Duration > s.cfg.MaxDurationSeconds {
		logger.Debug().Str("file", video.FileName).Int("duration", video.Duration).Msg("above max duration")

		return false
	}

	return true
}

func (s *Scanner) partitionTopics(ctx context.Context, candidate domain.Candidate, keywords []string) (existing, fresh []string, err error) {
	for _, topic := range keywords {
		row, err := s.oracle.FindSimilar(ctx, candidate, topic)
		if err != nil {
			return nil, nil, fmt.Errorf("find similar in %q: %w", topic, err)
		}

		if row != nil {
			existing = append(existing, topic)

			observability.DuplicatesDetected.WithLabelValues(topic).Inc()
		} else {
			fresh = append(fresh, topic)
		}
	}

	return existing, fresh, nil
}

// replaceDuplicates removes the topic's stored duplicates of the candidate
// from the destination and the store, then registers the candidate as the
// topic's fresh copy.
func (s *Scanner) replaceDuplicates(ctx context.Context, candidate domain.Candidate, topic string, logger *zerolog.Logger) error {
	rows, err := s.oracle.FindAllSimilar(ctx, candidate, topic)
	if err != nil {
		return fmt.Errorf("find all similar: %w", err)
	}

	if len(rows) == 0 {
		return nil
	}

	names := make(map[string]domain.ProcessedVideo, len(rows))
	for _, row := range rows {
		names[row.NormalizedName] = row
	}

	topicID := s.dest.Topics[topic]

	msgIDs, err := s.destinationMatches(ctx, topicID, names)
	if err != nil {
		return err
	}

	if s.cfg.DryRun {
		logger.Info().Str("topic", topic).Int("messages", len(msgIDs)).Msg("dry run: would delete duplicates")

		return nil
	}

	if err := s.deleteBatched(ctx, msgIDs); err != nil {
		return err
	}

	if len(msgIDs) > 0 {
		s.cache.Evict(s.dest.Chat.ID, topicID)
	}

	nameList := make([]string, 0, len(names))
	for name := range names {
		nameList = append(nameList, name)
	}

	deleted, err := s.store.DeleteVideos(ctx, nameList, topic)
	if err != nil {
		return fmt.Errorf("delete video rows: %w", err)
	}

	logger.Info().
		Str("topic", topic).
		Int("destination_deleted", len(msgIDs)).
		Int("rows_deleted", deleted).
		Msg("replaced duplicates")

	if err := s.store.PutVideo(ctx, processedVideo(candidate, topic)); err != nil {
		return fmt.Errorf("re-register after replacement: %w", err)
	}

	return s.sleeper.Sleep(ctx, afterDeletionSleep)
}

// destinationMatches returns destination message IDs in the topic whose
// filename normalizes to one of the duplicate names. With metadata checks
// enabled the destination copy must also match the stored row.
func (s *Scanner) destinationMatches(ctx context.Context, topicID int, names map[string]domain.ProcessedVideo) ([]int, error) {
	cached, err := s.cache.Messages(ctx, s.dest.Chat, topicID)
	if err != nil {
		return nil, fmt.Errorf("topic cache: %w", err)
	}

	policy := s.oracle.Policy()
	normalizer := s.normalizer()

	var msgIDs []int

	for _, msg := range cached {
		video, ok := match.LiftVideo(msg)
		if !ok {
			continue
		}

		row, ok := names[normalizer(video.FileName)]
		if !ok {
			continue
		}

		if policy.AnyCheckEnabled() {
			destCopy := match.NewCandidate(s.dest.Chat.ID, msg, video, normalizer)
			if !policy.MetadataMatch(destCopy, row) {
				continue
			}
		}

		msgIDs = append(msgIDs, msg.ID)
	}

	return msgIDs, nil
}

func (s *Scanner) deleteBatched(ctx context.Context, msgIDs []int) error {
	for start := 0; start < len(msgIDs); start += telegram.DeleteBatchLimit {
		end := start + telegram.DeleteBatchLimit
		if end > len(msgIDs) {
			end = len(msgIDs)
		}

		if err := s.api.DeleteMessages(ctx, s.dest.Chat, msgIDs[start:end]); err != nil {
			return fmt.Errorf("delete destination messages: %w", err)
		}

		observability.MessagesDeleted.Add(float64(end - start))

		if end < len(msgIDs) {
			if err := s.sleeper.Sleep(ctx, deleteBatchSleep); err != nil {
				return err
			}
		}
	}

	return nil
}

// forwardFanOut publishes the candidate into every matched topic
// concurrently and reports whether at least one forward succeeded.
func (s *Scanner) forwardFanOut(ctx context.Context, source telegram.Chat, msg *tg.Message, candidate domain.Candidate, keywords []string) bool {
	successes := make([]bool, len(keywords))

	var wg sync.WaitGroup

	for i, topic := range keywords {
		wg.Add(1)

		go func(i int, topic string) {
			defer wg.Done()

			successes[i] = s.fwd.Forward(ctx, forwarder.Request{
				From:           source,
				MessageID:      msg.ID,
				To:             s.dest.Chat,
				TopicID:        s.dest.Topics[topic],
				FileName:       candidate.FileName,
				MatchedKeyword: topic,
				TopicName:      topic,
				Duration:       candidate.Duration,
				SizeMB:         candidate.SizeMB,
			})
		}(i, topic)
	}

	wg.Wait()

	any := false

	for i, ok := range successes {
		if !ok {
			continue
		}

		any = true

		s.topicForwards[keywords[i]]++

		observability.VideosForwarded.WithLabelValues(keywords[i]).Inc()
	}

	return any
}

func processedVideo(c domain.Candidate, topic string) domain.ProcessedVideo {
	return domain.ProcessedVideo{
		FileName:       c.FileName,
		NormalizedName: c.NormalizedName,
		TopicName:      topic,
		Duration:       c.Duration,
		SizeMB:         c.SizeMB,
		Width:          c.Width,
		Height:         c.Height,
		MimeType:       c.MimeType,
	}
}

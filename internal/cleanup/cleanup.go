// Package cleanup sweeps the destination chat once per run, deleting
// excluded videos and collapsing per-topic duplicates left behind by
// earlier runs or failed replacements.
package cleanup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-video-sorter/internal/match"
	"github.com/lueurxax/telegram-video-sorter/internal/observability"
	"github.com/lueurxax/telegram-video-sorter/internal/telegram"
)

const (
	pageSleep        = 500 * time.Millisecond
	deleteBatchSleep = 200 * time.Millisecond

	// generalTopic stands for messages outside any forum topic.
	generalTopic = 0
)

// Sleeper paces pages and deletion batches.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Sweeper removes excluded and duplicated videos from the destination.
type Sweeper struct {
	api        telegram.API
	sleeper    Sleeper
	exclusions []string
	dryRun     bool
	logger     *zerolog.Logger
}

// New creates a sweeper with the configured exclusion list.
func New(api telegram.API, sleeper Sleeper, exclusions []string, dryRun bool, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{api: api, sleeper: sleeper, exclusions: exclusions, dryRun: dryRun, logger: logger}
}

// Result reports one sweep.
type Result struct {
	MessagesScanned  int
	ExcludedDeleted  int
	DuplicateDeleted int
}

type slot struct {
	topicID int
	name    string
}

// Sweep paginates the destination's full history, deleting exclusion hits
// immediately and keeping only the first copy per (topic, filename).
func (s *Sweeper) Sweep(ctx context.Context, dest telegram.Chat) (Result, error) {
	var result Result

	var excluded []int

	seen := make(map[slot]bool)

	var duplicates []int

	offsetID := 0

	for {
		page, err := s.api.HistoryPage(ctx, dest, offsetID, telegram.PageLimit)
		if err != nil {
			return result, fmt.Errorf("destination history: %w", err)
		}

		if len(page) == 0 {
			break
		}

		result.MessagesScanned += len(page)

		for _, msg := range page {
			video, ok := match.LiftVideo(msg)
			if !ok || video.FileName == "" {
				continue
			}

			text := strings.ToLower(msg.Message) + " " + strings.ToLower(video.FileName)
			if match.ShouldExclude(text, s.exclusions) {
				excluded = append(excluded, msg.ID)

				s.logger.Info().Str("file", video.FileName).Int("message", msg.ID).Msg("excluded video in destination")

				continue
			}

			key := slot{topicID: topicOf(msg), name: strings.ToLower(video.FileName)}
			if seen[key] {
				duplicates = append(duplicates, msg.ID)

				s.logger.Info().Str("file", video.FileName).Int("topic", key.topicID).Int("message", msg.ID).Msg("duplicate video in destination")

				continue
			}

			seen[key] = true
		}

		if len(page) < telegram.PageLimit {
			break
		}

		offsetID = page[len(page)-1].ID

		if err := s.sleeper.Sleep(ctx, pageSleep); err != nil {
			return result, err
		}
	}

	var err error

	result.ExcludedDeleted, err = s.deleteBatched(ctx, dest, excluded)
	if err != nil {
		return result, err
	}

	result.DuplicateDeleted, err = s.deleteBatched(ctx, dest, duplicates)
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Int("scanned", result.MessagesScanned).
		Int("excluded_deleted", result.ExcludedDeleted).
		Int("duplicates_deleted", result.DuplicateDeleted).
		Msg("destination sweep finished")

	return result, nil
}

func (s *Sweeper) deleteBatched(ctx context.Context, dest telegram.Chat, msgIDs []int) (int, error) {
	if len(msgIDs) == 0 {
		return 0, nil
	}

	if s.dryRun {
		s.logger.Info().Int("messages", len(msgIDs)).Msg("dry run: would delete from destination")

		return len(msgIDs), nil
	}

	deleted := 0

	for start := 0; start < len(msgIDs); start += telegram.DeleteBatchLimit {
		end := start + telegram.DeleteBatchLimit
		if end > len(msgIDs) {
			end = len(msgIDs)
		}

		if err := s.api.DeleteMessages(ctx, dest, msgIDs[start:end]); err != nil {
			return deleted, fmt.Errorf("delete destination batch: %w", err)
		}

		deleted += end - start

		observability.MessagesDeleted.Add(float64(end - start))

		if end < len(msgIDs) {
			if err := s.sleeper.Sleep(ctx, deleteBatchSleep); err != nil {
				return deleted, err
			}
		}
	}

	return deleted, nil
}

// topicOf derives the forum topic a message lives in: the reply-to top
// message when present, otherwise the replied-to message itself when it
// opens a topic, otherwise the general topic.
func topicOf(msg *tg.Message) int {
	reply, ok := msg.ReplyTo.(*tg.MessageReplyHeader)
	if !ok {
		return generalTopic
	}

	if topID, ok := reply.GetReplyToTopID(); ok {
		return topID
	}

	if reply.ForumTopic {
		if msgID, ok := reply.GetReplyToMsgID(); ok {
			return msgID
		}
	}

	return generalTopic
}

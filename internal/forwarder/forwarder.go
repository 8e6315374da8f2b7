// Package forwarder republishes matched source messages into destination
// topics and records each success in the forwarding audit log.
package forwarder

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-video-sorter/internal/telegram"
)

// Request carries everything one forward needs, including the audit fields.
type Request struct {
	From      telegram.Chat
	MessageID int
	To        telegram.Chat
	TopicID   int

	FileName       string
	MatchedKeyword string
	TopicName      string
	Duration       int
	SizeMB         float64
}

// Forwarder publishes one message per call. The video row is registered by
// the caller before the call; the forwarder never touches the store.
type Forwarder struct {
	api    telegram.API
	audit  *AuditLog
	logger *zerolog.Logger
	dryRun bool
}

// New creates a forwarder. In dry-run mode no RPC is issued and no audit
// entry is written, but the decision is still logged and reported as a
// success so counters behave as in a real run.
func New(api telegram.API, audit *AuditLog, dryRun bool, logger *zerolog.Logger) *Forwarder {
	return &Forwarder{api: api, audit: audit, logger: logger, dryRun: dryRun}
}

// Forward republishes the source message into the destination topic and
// reports whether it succeeded. Retry budget exhaustion is a non-success,
// not an error.
func (f *Forwarder) Forward(ctx context.Context, req Request) bool {
	logger := f.logger.With().
		Str("file", req.FileName).
		Str("topic", req.TopicName).
		Int64("source", req.From.ID).
		Int("message", req.MessageID).
		Logger()

	if f.dryRun {
		logger.Info().Msg("dry run: would forward")

		return true
	}

	if err := f.api.ForwardMessages(ctx, req.From, []int{req.MessageID}, req.To, req.TopicID); err != nil {
		logger.Error().Err(err).Msg("forward failed")

		return false
	}

	if err := f.audit.Append(AuditEntry{
		FileName:       req.FileName,
		MatchedKeyword: req.MatchedKeyword,
		TopicName:      req.TopicName,
		SourceGroup:    req.From.Title,
		Duration:       req.Duration,
		SizeMB:         req.SizeMB,
	}); err != nil {
		logger.Warn().Err(err).Msg("audit append failed")
	}

	logger.Info().Msg("forwarded")

	return true
}

// Package app wires the sorter together and owns the run order: destination
// provisioning, the one-time cleanup sweep, then the scan over every source
// chat, finishing with a per-topic summary.
package app

import (
	"context"
	"fmt"
	"strings"

	tdclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-video-sorter/internal/cleanup"
	"github.com/lueurxax/telegram-video-sorter/internal/config"
	"github.com/lueurxax/telegram-video-sorter/internal/dedup"
	"github.com/lueurxax/telegram-video-sorter/internal/forum"
	"github.com/lueurxax/telegram-video-sorter/internal/forwarder"
	"github.com/lueurxax/telegram-video-sorter/internal/observability"
	"github.com/lueurxax/telegram-video-sorter/internal/scanner"
	"github.com/lueurxax/telegram-video-sorter/internal/storage"
	"github.com/lueurxax/telegram-video-sorter/internal/telegram"
	"github.com/lueurxax/telegram-video-sorter/internal/topiccache"
)

// App holds the application dependencies.
type App struct {
	cfg    *config.Config
	store  *storage.Store
	logger *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, store *storage.Store, logger *zerolog.Logger) *App {
	return &App{cfg: cfg, store: store, logger: logger}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.store, a.cfg.HealthPort, a.logger).Start(ctx)
}

// Run connects to the upstream, authenticates, and performs one sorting run.
func (a *App) Run(ctx context.Context) error {
	client := tdclient.NewClient(a.cfg.TGAPIID, a.cfg.TGAPIHash, tdclient.Options{
		SessionStorage: &tdclient.FileSessionStorage{
			Path: a.cfg.TGSessionPath,
		},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		authenticator := telegram.NewAuthenticator(a.cfg.TGPhone, a.cfg.TG2FAPassword, a.logger)

		if err := client.Auth().IfNecessary(ctx, authenticator.Flow()); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}

		a.logger.Info().Msg("Successfully authenticated as user")

		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("load self: %w", err)
		}

		driver := telegram.NewDriver(a.cfg.RateLimitRPS, a.logger)
		driver.OnFloodWait(func(seconds int) {
			observability.FloodWaitCountTotal.Inc()
			observability.FloodWaitSecondsTotal.Add(float64(seconds))
		})

		api := telegram.NewClient(tg.NewClient(client), driver, self, a.logger)

		return a.sort(ctx, api, driver)
	})
}

func (a *App) sort(ctx context.Context, api *telegram.Client, driver *telegram.Driver) error {
	dest, err := forum.New(api, api, a.cfg.DataDir, a.logger).Provision(ctx, a.cfg.SortedGroupName, a.cfg.VideoMatches)
	if err != nil {
		return fmt.Errorf("provision destination: %w", err)
	}

	if a.cfg.SkipCleanup {
		a.logger.Info().Msg("cleanup sweep skipped")
	} else {
		sweeper := cleanup.New(api, driver, a.cfg.VideoExclusions, a.cfg.DryRun, a.logger)
		if _, err := sweeper.Sweep(ctx, dest.Chat); err != nil {
			return fmt.Errorf("cleanup sweep: %w", err)
		}
	}

	detector := dedup.New(a.store, a.dedupPolicy(), a.logger)
	cache := topiccache.New(api, driver, a.logger)
	audit := forwarder.NewAuditLog(a.cfg.DataDir)
	fwd := forwarder.New(api, audit, a.cfg.DryRun, a.logger)

	scan := scanner.New(api, a.store, detector, cache, fwd, driver, dest, scanner.Config{
		Matches:            a.cfg.VideoMatches,
		Exclusions:         a.cfg.VideoExclusions,
		MinDurationSeconds: a.cfg.MinVideoDurationSeconds,
		MaxDurationSeconds: a.cfg.MaxVideoDurationSeconds,
		MinSizeMB:          a.cfg.MinFileSizeMB,
		MaxSizeMB:          a.cfg.MaxFileSizeMB,
		MaxForwards:        a.cfg.MaxForwards,
		DryRun:             a.cfg.DryRun,
	}, a.logger)

	sources, err := a.resolveSources(ctx, api, dest.Chat)
	if err != nil {
		return err
	}

	processed := 0

	for _, source := range sources {
		result, err := scan.ScanSource(ctx, source)
		if err != nil {
			return fmt.Errorf("scan %q: %w", source.Title, err)
		}

		processed += result.MessagesProcessed

		if scan.TotalForwarded() >= a.cfg.MaxForwards {
			break
		}
	}

	return a.summarize(ctx, processed, scan)
}

func (a *App) dedupPolicy() dedup.Policy {
	return dedup.Policy{
		CheckDuration:              a.cfg.DedupCheckDuration,
		DurationToleranceSeconds:   a.cfg.DedupDurationToleranceSeconds,
		CheckFileSize:              a.cfg.DedupCheckFileSize,
		FileSizeTolerancePercent:   a.cfg.DedupFileSizeTolerancePercent,
		CheckResolution:            a.cfg.DedupCheckResolution,
		ResolutionTolerancePercent: a.cfg.DedupResolutionTolerancePercent,
		CheckMimeType:              a.cfg.DedupCheckMimeType,
		NormalizeFilenames:         a.cfg.DedupNormalizeFilenames,
	}
}

// resolveSources picks the chats to scan: the configured names, or every
// accessible group and channel when none are configured. The destination is
// never a source.
func (a *App) resolveSources(ctx context.Context, api *telegram.Client, dest telegram.Chat) ([]telegram.Chat, error) {
	chats, err := api.ListAccessibleChats(ctx, telegram.PageLimit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	var sources []telegram.Chat

	for _, chat := range chats {
		if !chat.IsGroupOrChannel() || chat.ID == dest.ID {
			continue
		}

		if len(a.cfg.SourceGroups) > 0 && !nameConfigured(chat, a.cfg.SourceGroups) {
			continue
		}

		sources = append(sources, chat)
	}

	a.logger.Info().Int("sources", len(sources)).Msg("resolved source chats")

	return sources, nil
}

func nameConfigured(chat telegram.Chat, names []string) bool {
	for _, name := range names {
		if strings.EqualFold(chat.Title, name) || (chat.Username != "" && strings.EqualFold(chat.Username, name)) {
			return true
		}
	}

	return false
}

func (a *App) summarize(ctx context.Context, processed int, scan *scanner.Scanner) error {
	messages, err := a.store.MessageCount(ctx)
	if err != nil {
		return err
	}

	videos, err := a.store.VideoCount(ctx)
	if err != nil {
		return err
	}

	summary := a.logger.Info().
		Int("messages_processed", processed).
		Int("videos_forwarded", scan.TotalForwarded()).
		Int("known_messages", messages).
		Int("known_videos", videos)

	for topic, count := range scan.TopicForwards() {
		summary = summary.Int("topic_"+topic, count)
	}

	summary.Msg("run finished")

	return nil
}

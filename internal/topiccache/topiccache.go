// Package topiccache lazily loads and caches the messages of destination
// forum topics so replacement sweeps do not refetch a topic per candidate.
package topiccache

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-video-sorter/internal/telegram"
)

const (
	maxPages  = 50
	pageSleep = 500 * time.Millisecond
)

// Sleeper paces page fetches.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type key struct {
	chatID  int64
	topicID int
}

// Cache holds per-topic message lists, loaded on first access.
type Cache struct {
	api     telegram.API
	sleeper Sleeper
	logger  *zerolog.Logger

	entries map[key][]*tg.Message
}

// New creates an empty cache.
func New(api telegram.API, sleeper Sleeper, logger *zerolog.Logger) *Cache {
	return &Cache{
		api:     api,
		sleeper: sleeper,
		logger:  logger,
		entries: make(map[key][]*tg.Message),
	}
}

// Messages returns the topic's messages, newest first, loading them on the
// first call. A topic larger than maxPages pages is truncated at the page
// ceiling.
func (c *Cache) Messages(ctx context.Context, chat telegram.Chat, topicID int) ([]*tg.Message, error) {
	k := key{chatID: chat.ID, topicID: topicID}

	if cached, ok := c.entries[k]; ok {
		return cached, nil
	}

	messages, err := c.load(ctx, chat, topicID)
	if err != nil {
		return nil, err
	}

	c.entries[k] = messages

	return messages, nil
}

// Evict drops the cached list for a topic so the next access reloads it.
func (c *Cache) Evict(chatID int64, topicID int) {
	delete(c.entries, key{chatID: chatID, topicID: topicID})
}

func (c *Cache) load(ctx context.Context, chat telegram.Chat, topicID int) ([]*tg.Message, error) {
	var messages []*tg.Message

	offsetID := 0

	for page := 0; page < maxPages; page++ {
		batch, err := c.api.RepliesPage(ctx, chat, topicID, offsetID, telegram.PageLimit)
		if err != nil {
			return nil, fmt.Errorf("load topic %d page %d: %w", topicID, page, err)
		}

		messages = append(messages, batch...)

		if len(batch) < telegram.PageLimit {
			break
		}

		offsetID = batch[len(batch)-1].ID

		if err := c.sleeper.Sleep(ctx, pageSleep); err != nil {
			return nil, err
		}
	}

	c.logger.Debug().Int("topic", topicID).Int("messages", len(messages)).Msg("topic cache loaded")

	return messages, nil
}

// Package forum provisions the destination forum group and one topic per
// configured keyword, caching the resolved IDs on disk between runs.
package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-video-sorter/internal/telegram"
)

const cacheFileName = "forum-group-cache.json"

type groupCache struct {
	GroupID    int64          `json:"groupId,omitempty"`
	AccessHash int64          `json:"accessHash,omitempty"`
	Topics     map[string]int `json:"topics"`
}

// Finder locates an accessible chat by title. Satisfied by the telegram
// client; narrow so tests can fake it.
type Finder interface {
	FindChatByTitle(ctx context.Context, title string) (telegram.Chat, bool, error)
}

// Provisioner resolves the destination group and its topics, creating
// whatever is missing.
type Provisioner struct {
	api    telegram.API
	finder Finder
	logger *zerolog.Logger

	cachePath string
}

// New creates a provisioner storing its cache in dataDir.
func New(api telegram.API, finder Finder, dataDir string, logger *zerolog.Logger) *Provisioner {
	return &Provisioner{
		api:       api,
		finder:    finder,
		logger:    logger,
		cachePath: filepath.Join(dataDir, cacheFileName),
	}
}

// Destination is the resolved forum group plus its keyword-to-topic map.
type Destination struct {
	Chat   telegram.Chat
	Topics map[string]int
}

// Provision resolves groupName and ensures every keyword has a topic.
// Cached IDs are reused; the dialog list is consulted only when the cache
// holds no group ID, and topics are created only for keywords the cache has
// no topic ID for.
func (p *Provisioner) Provision(ctx context.Context, groupName string, keywords []string) (Destination, error) {
	cache := p.loadCache()

	chat, err := p.resolveGroup(ctx, groupName, &cache)
	if err != nil {
		return Destination{}, err
	}

	for _, keyword := range keywords {
		if _, ok := cache.Topics[keyword]; ok {
			continue
		}

		topicID, err := p.api.CreateTopic(ctx, chat, keyword)
		if err != nil {
			return Destination{}, fmt.Errorf("create topic %q: %w", keyword, err)
		}

		cache.Topics[keyword] = topicID

		p.logger.Info().Str("topic", keyword).Int("id", topicID).Msg("created forum topic")
	}

	if err := p.saveCache(cache); err != nil {
		return Destination{}, err
	}

	topics := make(map[string]int, len(keywords))
	for _, keyword := range keywords {
		topics[keyword] = cache.Topics[keyword]
	}

	return Destination{Chat: chat, Topics: topics}, nil
}

func (p *Provisioner) resolveGroup(ctx context.Context, groupName string, cache *groupCache) (telegram.Chat, error) {
	if cache.GroupID != 0 {
		return telegram.Chat{
			ID:         cache.GroupID,
			AccessHash: cache.AccessHash,
			Title:      groupName,
			Kind:       telegram.ChatKindGroup,
			Forum:      true,
		}, nil
	}

	chat, found, err := p.finder.FindChatByTitle(ctx, groupName)
	if err != nil {
		return telegram.Chat{}, fmt.Errorf("find destination group: %w", err)
	}

	if !found {
		chat, err = p.api.CreateForumGroup(ctx, groupName)
		if err != nil {
			return telegram.Chat{}, fmt.Errorf("create destination group: %w", err)
		}

		p.logger.Info().Str("group", groupName).Int64("id", chat.ID).Msg("created destination forum group")
	}

	cache.GroupID = chat.ID
	cache.AccessHash = chat.AccessHash

	return chat, nil
}

func (p *Provisioner) loadCache() groupCache {
	cache := groupCache{Topics: make(map[string]int)}

	data, err := os.ReadFile(p.cachePath)
	if err != nil {
		return cache
	}

	if err := json.Unmarshal(data, &cache); err != nil {
		p.logger.Warn().Err(err).Str("file", cacheFileName).Msg("unreadable forum cache, starting fresh")

		return groupCache{Topics: make(map[string]int)}
	}

	if cache.Topics == nil {
		cache.Topics = make(map[string]int)
	}

	return cache
}

func (p *Provisioner) saveCache(cache groupCache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal forum cache: %w", err)
	}

	if err := os.WriteFile(p.cachePath, data, 0o600); err != nil {
		return fmt.Errorf("write forum cache: %w", err)
	}

	return nil
}

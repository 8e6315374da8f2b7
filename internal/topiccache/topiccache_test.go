package topiccache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-video-sorter/internal/telegram"
)

type fakeAPI struct {
	telegram.API

	replies map[int][]*tg.Message
	err     error
	calls   int
}

func (f *fakeAPI) RepliesPage(_ context.Context, _ telegram.Chat, topicID, offsetID, limit int) ([]*tg.Message, error) {
	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	var page []*tg.Message

	for _, msg := range f.replies[topicID] {
		if offsetID != 0 && msg.ID >= offsetID {
			continue
		}

		page = append(page, msg)
		if len(page) == limit {
			break
		}
	}

	return page, nil
}

type fakeSleeper struct{}

func (fakeSleeper) Sleep(_ context.Context, _ time.Duration) error { return nil }

func newCache(api *fakeAPI) *Cache {
	logger := zerolog.Nop()

	return New(api, fakeSleeper{}, &logger)
}

func topicMessages(count, topID int) []*tg.Message {
	messages := make([]*tg.Message, 0, count)
	for i := 0; i < count; i++ {
		messages = append(messages, &tg.Message{ID: topID - i})
	}

	return messages
}

func TestMessagesLoadsOnce(t *testing.T) {
	api := &fakeAPI{replies: map[int][]*tg.Message{
		10: topicMessages(3, 500),
	}}

	cache := newCache(api)
	chat := telegram.Chat{ID: 999}

	first, err := cache.Messages(context.Background(), chat, 10)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	if len(first) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(first))
	}

	if first[0].ID != 500 {
		t.Errorf("first ID = %d, want 500 (newest first)", first[0].ID)
	}

	if _, err := cache.Messages(context.Background(), chat, 10); err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	if api.calls != 1 {
		t.Errorf("RepliesPage calls = %d, want 1", api.calls)
	}
}

func TestMessagesPaginates(t *testing.T) {
	api := &fakeAPI{replies: map[int][]*tg.Message{
		10: topicMessages(telegram.PageLimit+5, 1000),
	}}

	cache := newCache(api)

	messages, err := cache.Messages(context.Background(), telegram.Chat{ID: 999}, 10)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	if len(messages) != telegram.PageLimit+5 {
		t.Errorf("len(messages) = %d, want %d", len(messages), telegram.PageLimit+5)
	}

	if api.calls != 2 {
		t.Errorf("RepliesPage calls = %d, want 2", api.calls)
	}
}

func TestMessagesTruncatesAtPageCeiling(t *testing.T) {
	api := &fakeAPI{replies: map[int][]*tg.Message{
		10: topicMessages((maxPages+2)*telegram.PageLimit, 100000),
	}}

	cache := newCache(api)

	messages, err := cache.Messages(context.Background(), telegram.Chat{ID: 999}, 10)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	if len(messages) != maxPages*telegram.PageLimit {
		t.Errorf("len(messages) = %d, want %d", len(messages), maxPages*telegram.PageLimit)
	}

	if api.calls != maxPages {
		t.Errorf("RepliesPage calls = %d, want %d", api.calls, maxPages)
	}
}

func TestEvictReloads(t *testing.T) {
	api := &fakeAPI{replies: map[int][]*tg.Message{
		10: topicMessages(2, 500),
	}}

	cache := newCache(api)
	chat := telegram.Chat{ID: 999}

	if _, err := cache.Messages(context.Background(), chat, 10); err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	cache.Evict(chat.ID, 10)

	api.replies[10] = topicMessages(4, 600)

	messages, err := cache.Messages(context.Background(), chat, 10)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	if len(messages) != 4 {
		t.Errorf("len(messages) = %d, want 4 after eviction", len(messages))
	}

	if api.calls != 2 {
		t.Errorf("RepliesPage calls = %d, want 2", api.calls)
	}
}

func TestTopicsCachedIndependently(t *testing.T) {
	api := &fakeAPI{replies: map[int][]*tg.Message{
		10: topicMessages(1, 500),
		11: topicMessages(2, 600),
	}}

	cache := newCache(api)
	chat := telegram.Chat{ID: 999}

	first, err := cache.Messages(context.Background(), chat, 10)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	second, err := cache.Messages(context.Background(), chat, 11)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	if len(first) != 1 || len(second) != 2 {
		t.Errorf("lens = %d, %d, want 1, 2", len(first), len(second))
	}
}

func TestMessagesLoadErrorNotCached(t *testing.T) {
	api := &fakeAPI{err: errors.New("rpc failed")}

	cache := newCache(api)
	chat := telegram.Chat{ID: 999}

	if _, err := cache.Messages(context.Background(), chat, 10); err == nil {
		t.Fatal("Messages() error = nil, want failure")
	}

	api.err = nil
	api.replies = map[int][]*tg.Message{10: topicMessages(1, 500)}

	messages, err := cache.Messages(context.Background(), chat, 10)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	if len(messages) != 1 {
		t.Errorf("len(messages) = %d, want 1 after retry", len(messages))
	}
}

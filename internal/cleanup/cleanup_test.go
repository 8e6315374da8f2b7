package cleanup

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-video-sorter/internal/telegram"
)

type fakeAPI struct {
	telegram.API

	history []*tg.Message
	deleted [][]int
}

func (f *fakeAPI) HistoryPage(_ context.Context, _ telegram.Chat, offsetID, limit int) ([]*tg.Message, error) {
	var page []*tg.Message

	for _, msg := range f.history {
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

func (f *fakeAPI) DeleteMessages(_ context.Context, _ telegram.Chat, msgIDs []int) error {
	batch := make([]int, len(msgIDs))
	copy(batch, msgIDs)

	f.deleted = append(f.deleted, batch)

	return nil
}

func (f *fakeAPI) allDeleted() []int {
	var ids []int
	for _, batch := range f.deleted {
		ids = append(ids, batch...)
	}

	sort.Ints(ids)

	return ids
}

type fakeSleeper struct{}

func (fakeSleeper) Sleep(_ context.Context, _ time.Duration) error { return nil }

func videoMessage(id int, fileName, caption string, topicID int) *tg.Message {
	msg := &tg.Message{
		ID:      id,
		Message: caption,
		Media: &tg.MessageMediaDocument{
			Video: true,
			Document: &tg.Document{
				MimeType: "video/mp4",
				Attributes: []tg.DocumentAttributeClass{
					&tg.DocumentAttributeVideo{Duration: 600},
					&tg.DocumentAttributeFilename{FileName: fileName},
				},
			},
		},
	}

	if topicID != 0 {
		reply := &tg.MessageReplyHeader{ForumTopic: true}
		reply.SetReplyToTopID(topicID)
		msg.ReplyTo = reply
	}

	return msg
}

func newSweeper(api *fakeAPI, exclusions []string, dryRun bool) *Sweeper {
	logger := zerolog.Nop()

	return New(api, fakeSleeper{}, exclusions, dryRun, &logger)
}

func TestSweepDeletesExcluded(t *testing.T) {
	api := &fakeAPI{history: []*tg.Message{
		videoMessage(3, "keeper.mp4", "", 10),
		videoMessage(2, "clip.mp4", "just a preview", 10),
		videoMessage(1, "trailer_cut.mp4", "", 10),
	}}

	sweeper := newSweeper(api, []string{"preview", "trailer"}, false)

	result, err := sweeper.Sweep(context.Background(), telegram.Chat{ID: 999})
	require.NoError(t, err)

	assert.Equal(t, 3, result.MessagesScanned)
	assert.Equal(t, 2, result.ExcludedDeleted)
	assert.Zero(t, result.DuplicateDeleted)
	assert.Equal(t, []int{1, 2}, api.allDeleted())
}

func TestSweepCollapsesDuplicatesKeepingFirstSeen(t *testing.T) {
	api := &fakeAPI{history: []*tg.Message{
		videoMessage(5, "Clip.mp4", "", 10),
		videoMessage(4, "clip.mp4", "", 10),
		videoMessage(3, "CLIP.MP4", "", 10),
		videoMessage(2, "clip.mp4", "", 20),
	}}

	sweeper := newSweeper(api, nil, false)

	result, err := sweeper.Sweep(context.Background(), telegram.Chat{ID: 999})
	require.NoError(t, err)

	assert.Equal(t, 2, result.DuplicateDeleted)
	assert.Equal(t, []int{3, 4}, api.allDeleted())
}

func TestSweepSkipsNonVideoMessages(t *testing.T) {
	api := &fakeAPI{history: []*tg.Message{
		{ID: 3, Message: "preview text only"},
		{ID: 2, Media: &tg.MessageMediaPhoto{}},
		videoMessage(1, "", "no filename", 10),
	}}

	sweeper := newSweeper(api, []string{"preview"}, false)

	result, err := sweeper.Sweep(context.Background(), telegram.Chat{ID: 999})
	require.NoError(t, err)

	assert.Equal(t, 3, result.MessagesScanned)
	assert.Zero(t, result.ExcludedDeleted)
	assert.Zero(t, result.DuplicateDeleted)
	assert.Empty(t, api.deleted)
}

func TestSweepDryRunIssuesNoDeletions(t *testing.T) {
	api := &fakeAPI{history: []*tg.Message{
		videoMessage(3, "clip.mp4", "", 10),
		videoMessage(2, "clip.mp4", "", 10),
		videoMessage(1, "preview.mp4", "", 10),
	}}

	sweeper := newSweeper(api, []string{"preview"}, true)

	result, err := sweeper.Sweep(context.Background(), telegram.Chat{ID: 999})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ExcludedDeleted)
	assert.Equal(t, 1, result.DuplicateDeleted)
	assert.Empty(t, api.deleted)
}

func TestSweepBatchesDeletions(t *testing.T) {
	history := make([]*tg.Message, 0, telegram.DeleteBatchLimit+11)
	history = append(history, videoMessage(1000, "clip.mp4", "", 10))

	for i := 0; i < telegram.DeleteBatchLimit+10; i++ {
		history = append(history, videoMessage(999-i, "clip.mp4", "", 10))
	}

	api := &fakeAPI{history: history}

	sweeper := newSweeper(api, nil, false)

	result, err := sweeper.Sweep(context.Background(), telegram.Chat{ID: 999})
	require.NoError(t, err)

	assert.Equal(t, telegram.DeleteBatchLimit+10, result.DuplicateDeleted)
	require.Len(t, api.deleted, 2)
	assert.Len(t, api.deleted[0], telegram.DeleteBatchLimit)
	assert.Len(t, api.deleted[1], 10)
}

func TestSweepSecondPassDeletesNothing(t *testing.T) {
	api := &fakeAPI{history: []*tg.Message{
		videoMessage(4, "clip.mp4", "", 10),
		videoMessage(3, "clip.mp4", "", 10),
		videoMessage(2, "preview.mp4", "", 10),
		videoMessage(1, "other.mp4", "", 20),
	}}

	sweeper := newSweeper(api, []string{"preview"}, false)

	first, err := sweeper.Sweep(context.Background(), telegram.Chat{ID: 999})
	require.NoError(t, err)
	require.Equal(t, 1, first.ExcludedDeleted)
	require.Equal(t, 1, first.DuplicateDeleted)

	gone := make(map[int]bool)
	for _, id := range api.allDeleted() {
		gone[id] = true
	}

	var remaining []*tg.Message

	for _, msg := range api.history {
		if !gone[msg.ID] {
			remaining = append(remaining, msg)
		}
	}

	api.history = remaining
	api.deleted = nil

	second, err := sweeper.Sweep(context.Background(), telegram.Chat{ID: 999})
	require.NoError(t, err)

	assert.Zero(t, second.ExcludedDeleted)
	assert.Zero(t, second.DuplicateDeleted)
	assert.Empty(t, api.deleted)
}

func TestSweepWalksPages(t *testing.T) {
	history := make([]*tg.Message, 0, telegram.PageLimit+1)
	for i := 0; i <= telegram.PageLimit; i++ {
		history = append(history, videoMessage(1000-i, "clip.mp4", "", 10))
	}

	api := &fakeAPI{history: history}

	sweeper := newSweeper(api, nil, false)

	result, err := sweeper.Sweep(context.Background(), telegram.Chat{ID: 999})
	require.NoError(t, err)

	assert.Equal(t, telegram.PageLimit+1, result.MessagesScanned)
	assert.Equal(t, telegram.PageLimit, result.DuplicateDeleted)
}

func TestTopicOf(t *testing.T) {
	topicReply := &tg.MessageReplyHeader{ForumTopic: true}
	topicReply.SetReplyToTopID(42)

	openerReply := &tg.MessageReplyHeader{ForumTopic: true}
	openerReply.SetReplyToMsgID(7)

	plainReply := &tg.MessageReplyHeader{}
	plainReply.SetReplyToMsgID(7)

	tests := []struct {
		name     string
		msg      *tg.Message
		expected int
	}{
		{
			name:     "top id wins",
			msg:      &tg.Message{ReplyTo: topicReply},
			expected: 42,
		},
		{
			name:     "topic opener message",
			msg:      &tg.Message{ReplyTo: openerReply},
			expected: 7,
		},
		{
			name:     "plain reply is general",
			msg:      &tg.Message{ReplyTo: plainReply},
			expected: generalTopic,
		},
		{
			name:     "no reply header",
			msg:      &tg.Message{},
			expected: generalTopic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := topicOf(tt.msg); got != tt.expected {
				t.Errorf("topicOf() = %d, want %d", got, tt.expected)
			}
		})
	}
}

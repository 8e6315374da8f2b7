package forum

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-video-sorter/internal/telegram"
)

type fakeAPI struct {
	telegram.API

	created       []string
	createdTopics []string
	nextTopicID   int
}

func (f *fakeAPI) CreateForumGroup(_ context.Context, title string) (telegram.Chat, error) {
	f.created = append(f.created, title)

	return telegram.Chat{ID: 555, AccessHash: 777, Title: title, Kind: telegram.ChatKindGroup, Forum: true}, nil
}

func (f *fakeAPI) CreateTopic(_ context.Context, _ telegram.Chat, name string) (int, error) {
	f.createdTopics = append(f.createdTopics, name)
	f.nextTopicID++

	return f.nextTopicID, nil
}

type fakeFinder struct {
	chat  telegram.Chat
	found bool
	calls int
}

func (f *fakeFinder) FindChatByTitle(_ context.Context, _ string) (telegram.Chat, bool, error) {
	f.calls++

	return f.chat, f.found, nil
}

func newProvisioner(api *fakeAPI, finder *fakeFinder, dataDir string) *Provisioner {
	logger := zerolog.Nop()

	return New(api, finder, dataDir, &logger)
}

func TestProvisionCreatesMissingGroupAndTopics(t *testing.T) {
	dir := t.TempDir()
	api := &fakeAPI{}
	finder := &fakeFinder{}

	dest, err := newProvisioner(api, finder, dir).Provision(context.Background(), "Sorted Videos", []string{"keyword", "other"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Sorted Videos"}, api.created)
	assert.Equal(t, []string{"keyword", "other"}, api.createdTopics)

	assert.Equal(t, int64(555), dest.Chat.ID)
	assert.Equal(t, map[string]int{"keyword": 1, "other": 2}, dest.Topics)

	assert.FileExists(t, filepath.Join(dir, cacheFileName))
}

func TestProvisionFindsExistingGroup(t *testing.T) {
	api := &fakeAPI{}
	finder := &fakeFinder{
		chat:  telegram.Chat{ID: 42, AccessHash: 7, Title: "Sorted Videos", Kind: telegram.ChatKindGroup, Forum: true},
		found: true,
	}

	dest, err := newProvisioner(api, finder, t.TempDir()).Provision(context.Background(), "Sorted Videos", []string{"keyword"})
	require.NoError(t, err)

	assert.Empty(t, api.created)
	assert.Equal(t, int64(42), dest.Chat.ID)
	assert.Equal(t, map[string]int{"keyword": 1}, dest.Topics)
}

func TestProvisionReusesCacheAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	api := &fakeAPI{}
	finder := &fakeFinder{}

	first, err := newProvisioner(api, finder, dir).Provision(context.Background(), "Sorted Videos", []string{"keyword"})
	require.NoError(t, err)

	api2 := &fakeAPI{}
	finder2 := &fakeFinder{}

	second, err := newProvisioner(api2, finder2, dir).Provision(context.Background(), "Sorted Videos", []string{"keyword", "other"})
	require.NoError(t, err)

	assert.Zero(t, finder2.calls)
	assert.Empty(t, api2.created)

	assert.Equal(t, first.Chat.ID, second.Chat.ID)
	assert.Equal(t, first.Chat.AccessHash, second.Chat.AccessHash)

	assert.Equal(t, first.Topics["keyword"], second.Topics["keyword"])
	assert.Equal(t, []string{"other"}, api2.createdTopics)
}

func TestProvisionTopicsFilteredToRequestedKeywords(t *testing.T) {
	dir := t.TempDir()

	api := &fakeAPI{}
	finder := &fakeFinder{}

	_, err := newProvisioner(api, finder, dir).Provision(context.Background(), "Sorted Videos", []string{"keyword", "other"})
	require.NoError(t, err)

	dest, err := newProvisioner(&fakeAPI{}, &fakeFinder{}, dir).Provision(context.Background(), "Sorted Videos", []string{"keyword"})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"keyword": 1}, dest.Topics)
}

func TestProvisionUnreadableCacheStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, cacheFileName), []byte("{broken"), 0o600))

	api := &fakeAPI{}
	finder := &fakeFinder{found: true, chat: telegram.Chat{ID: 42, Kind: telegram.ChatKindGroup, Forum: true}}

	dest, err := newProvisioner(api, finder, dir).Provision(context.Background(), "Sorted Videos", []string{"keyword"})
	require.NoError(t, err)

	assert.Equal(t, 1, finder.calls)
	assert.Equal(t, int64(42), dest.Chat.ID)
}

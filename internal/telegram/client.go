package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

// Client implements API over a raw MTProto invoker, routing every RPC
// through the retry driver.
type Client struct {
	api    *tg.Client
	driver *Driver
	logger *zerolog.Logger

	self *tg.User
}

// NewClient wraps the invoker. self is the authenticated user; it is stored
// on the client and not read by any of its methods.
func NewClient(api *tg.Client, driver *Driver, self *tg.User, logger *zerolog.Logger) *Client {
	return &Client{api: api, driver: driver, self: self, logger: logger}
}

// Driver exposes the underlying pacer for consumers that sleep between
// pages or batches.
func (c *Client) Driver() *Driver {
	return c.driver
}

// ListAccessibleChats enumerates up to limit dialogs and keeps the groups
// and channels among them.
func (c *Client) ListAccessibleChats(ctx context.Context, limit int) ([]Chat, error) {
	var chats []Chat

	err := c.driver.Do(ctx, "messages.getDialogs", func(ctx context.Context) error {
		res, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      limit,
		})
		if err != nil {
			return err
		}

		var raw []tg.ChatClass

		switch d := res.(type) {
		case *tg.MessagesDialogs:
			raw = d.Chats
		case *tg.MessagesDialogsSlice:
			raw = d.Chats
		case *tg.MessagesDialogsNotModified:
			return nil
		}

		chats = liftChats(raw)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return chats, nil
}

// HistoryPage returns up to limit messages older than offsetID, newest
// first.
func (c *Client) HistoryPage(ctx context.Context, chat Chat, offsetID, limit int) ([]*tg.Message, error) {
	var page []*tg.Message

	err := c.driver.Do(ctx, "messages.getHistory", func(ctx context.Context) error {
		res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     inputPeer(chat),
			OffsetID: offsetID,
			Limit:    limit,
		})
		if err != nil {
			return err
		}

		page = liftMessages(res)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

// RepliesPage returns up to limit messages under a forum topic older than
// offsetID, newest first.
func (c *Client) RepliesPage(ctx context.Context, chat Chat, topicID, offsetID, limit int) ([]*tg.Message, error) {
	var page []*tg.Message

	err := c.driver.Do(ctx, "messages.getReplies", func(ctx context.Context) error {
		res, err := c.api.MessagesGetReplies(ctx, &tg.MessagesGetRepliesRequest{
			Peer:     inputPeer(chat),
			MsgID:    topicID,
			OffsetID: offsetID,
			Limit:    limit,
		})
		if err != nil {
			return err
		}

		page = liftMessages(res)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

// ForwardMessages republishes source messages into a destination topic.
// Each message carries a fresh random ID so the server does not collapse
// repeats of the same content.
func (c *Client) ForwardMessages(ctx context.Context, from Chat, msgIDs []int, to Chat, topicID int) error {
	if len(msgIDs) == 0 {
		return nil
	}

	randomIDs := make([]int64, len(msgIDs))
	for i := range randomIDs {
		randomIDs[i] = randomID()
	}

	return c.driver.Do(ctx, "messages.forwardMessages", func(ctx context.Context) error {
		req := &tg.MessagesForwardMessagesRequest{
			FromPeer: inputPeer(from),
			ID:       msgIDs,
			RandomID: randomIDs,
			ToPeer:   inputPeer(to),
		}
		if topicID > 0 {
			req.SetTopMsgID(topicID)
		}

		_, err := c.api.MessagesForwardMessages(ctx, req)

		return err
	})
}

// DeleteMessages removes messages for all participants. Channel-backed
// chats use the channel method; legacy groups revoke via the generic one.
func (c *Client) DeleteMessages(ctx context.Context, chat Chat, msgIDs []int) error {
	if len(msgIDs) == 0 {
		return nil
	}

	if chat.Legacy {
		return c.driver.Do(ctx, "messages.deleteMessages", func(ctx context.Context) error {
			_, err := c.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
				Revoke: true,
				ID:     msgIDs,
			})

			return err
		})
	}

	return c.driver.Do(ctx, "channels.deleteMessages", func(ctx context.Context) error {
		_, err := c.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash},
			ID:      msgIDs,
		})

		return err
	})
}

// CreateForumGroup creates a forum-enabled supergroup and returns it.
func (c *Client) CreateForumGroup(ctx context.Context, title string) (Chat, error) {
	var created Chat

	err := c.driver.Do(ctx, "channels.createChannel", func(ctx context.Context) error {
		updates, err := c.api.ChannelsCreateChannel(ctx, &tg.ChannelsCreateChannelRequest{
			Megagroup: true,
			Forum:     true,
			Title:     title,
			About:     "Sorted videos",
		})
		if err != nil {
			return err
		}

		channel, ok := channelFromUpdates(updates)
		if !ok {
			return fmt.Errorf("no channel in create response")
		}

		created = liftChannel(channel)

		return nil
	})
	if err != nil {
		return Chat{}, err
	}

	return created, nil
}

// CreateTopic creates a forum topic in the chat and returns the topic ID,
// which is the ID of the topic's service message.
func (c *Client) CreateTopic(ctx context.Context, chat Chat, name string) (int, error) {
	var topicID int

	err := c.driver.Do(ctx, "messages.createForumTopic", func(ctx context.Context) error {
		updates, err := c.api.MessagesCreateForumTopic(ctx, &tg.MessagesCreateForumTopicRequest{
			Peer:     inputPeer(chat),
			Title:    name,
			RandomID: randomID(),
		})
		if err != nil {
			return err
		}

		id, ok := topicIDFromUpdates(updates)
		if !ok {
			return fmt.Errorf("no service message in create topic response")
		}

		topicID = id

		return nil
	})
	if err != nil {
		return 0, err
	}

	return topicID, nil
}

// FindChatByTitle returns the accessible group or channel with the given
// title, preferring forum-enabled ones when several share it.
func (c *Client) FindChatByTitle(ctx context.Context, title string) (Chat, bool, error) {
	chats, err := c.ListAccessibleChats(ctx, PageLimit)
	if err != nil {
		return Chat{}, false, err
	}

	var candidates []Chat

	for _, chat := range chats {
		if chat.IsGroupOrChannel() && strings.EqualFold(chat.Title, title) {
			candidates = append(candidates, chat)
		}
	}

	if len(candidates) == 0 {
		return Chat{}, false, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Forum && !candidates[j].Forum
	})

	return candidates[0], true, nil
}

func inputPeer(chat Chat) tg.InputPeerClass {
	if chat.Legacy {
		return &tg.InputPeerChat{ChatID: chat.ID}
	}

	return &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}
}

func liftChats(raw []tg.ChatClass) []Chat {
	chats := make([]Chat, 0, len(raw))

	for _, cc := range raw {
		switch chat := cc.(type) {
		case *tg.Chat:
			if chat.Deactivated {
				continue
			}

			chats = append(chats, Chat{
				ID:     chat.ID,
				Title:  chat.Title,
				Kind:   ChatKindGroup,
				Legacy: true,
			})
		case *tg.Channel:
			if chat.Left {
				continue
			}

			chats = append(chats, liftChannel(chat))
		}
	}

	return chats
}

func liftChannel(channel *tg.Channel) Chat {
	kind := ChatKindChannel
	if channel.Megagroup {
		kind = ChatKindGroup
	}

	return Chat{
		ID:         channel.ID,
		AccessHash: channel.AccessHash,
		Title:      channel.Title,
		Username:   channel.Username,
		Kind:       kind,
		Forum:      channel.Forum,
	}
}

func liftMessages(res tg.MessagesMessagesClass) []*tg.Message {
	var raw []tg.MessageClass

	switch h := res.(type) {
	case *tg.MessagesMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessagesNotModified:
		return nil
	}

	messages := make([]*tg.Message, 0, len(raw))

	for _, mc := range raw {
		if msg, ok := mc.(*tg.Message); ok {
			messages = append(messages, msg)
		}
	}

	return messages
}

func channelFromUpdates(updates tg.UpdatesClass) (*tg.Channel, bool) {
	u, ok := updates.(*tg.Updates)
	if !ok {
		return nil, false
	}

	for _, cc := range u.Chats {
		if channel, ok := cc.(*tg.Channel); ok {
			return channel, true
		}
	}

	return nil, false
}

func topicIDFromUpdates(updates tg.UpdatesClass) (int, bool) {
	u, ok := updates.(*tg.Updates)
	if !ok {
		return 0, false
	}

	for _, uc := range u.Updates {
		channelMsg, ok := uc.(*tg.UpdateNewChannelMessage)
		if !ok {
			continue
		}

		if svc, ok := channelMsg.Message.(*tg.MessageService); ok {
			return svc.ID, true
		}
	}

	return 0, false
}

func randomID() int64 {
	var buf [8]byte

	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}

	return int64(binary.LittleEndian.Uint64(buf[:]) &^ (1 << 63))
}

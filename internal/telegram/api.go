// Package telegram wraps the MTProto client behind the narrow RPC surface
// the scanner and sweeper consume, with retry and pacing applied to every
// call.
package telegram

import (
	"context"

	"github.com/gotd/td/tg"
)

const (
	// PageLimit is the protocol's per-call ceiling for history and replies.
	PageLimit = 100

	// DeleteBatchLimit is the protocol's per-call ceiling for deletions.
	DeleteBatchLimit = 100
)

// ChatKind classifies an accessible dialog.
type ChatKind string

const (
	ChatKindGroup   ChatKind = "group"
	ChatKindChannel ChatKind = "channel"
	ChatKindOther   ChatKind = "other"
)

// Chat identifies one accessible chat. Legacy marks basic (non-supergroup)
// groups, which are addressed without an access hash.
type Chat struct {
	ID         int64
	AccessHash int64
	Title      string
	Username   string
	Kind       ChatKind
	Forum      bool
	Legacy     bool
}

// IsGroupOrChannel reports whether the chat can serve as a source.
func (c Chat) IsGroupOrChannel() bool {
	return c.Kind == ChatKindGroup || c.Kind == ChatKindChannel
}

// API is the upstream capability set. The scanner, the sweeper and the forum
// provisioner depend on this interface only, so they are testable against an
// in-memory fake.
type API interface {
	// ListAccessibleChats enumerates up to limit dialogs.
	ListAccessibleChats(ctx context.Context, limit int) ([]Chat, error)

	// HistoryPage returns up to limit messages of the chat's history,
	// newest first, older than offsetID (0 = from the top).
	HistoryPage(ctx context.Context, chat Chat, offsetID, limit int) ([]*tg.Message, error)

	// RepliesPage returns up to limit messages under a forum topic,
	// newest first, older than offsetID.
	RepliesPage(ctx context.Context, chat Chat, topicID, offsetID, limit int) ([]*tg.Message, error)

	// ForwardMessages republishes source messages into a destination topic
	// with fresh deduplication nonces.
	ForwardMessages(ctx context.Context, from Chat, msgIDs []int, to Chat, topicID int) error

	// DeleteMessages removes messages from the chat for all participants.
	DeleteMessages(ctx context.Context, chat Chat, msgIDs []int) error

	// CreateForumGroup creates a forum-enabled supergroup.
	CreateForumGroup(ctx context.Context, title string) (Chat, error)

	// CreateTopic creates a forum topic and returns its ID.
	CreateTopic(ctx context.Context, chat Chat, name string) (int, error)
}

// Package engine implements the per-message deduplication state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dedup_bot/internal/extract"
	"dedup_bot/internal/model"
	"dedup_bot/internal/storage"
)

// MarkerEmoji flags a message as a duplicate share, pending deletion.
const MarkerEmoji = "❌"

// errDuplicate aborts a message's transaction when a known post reappears.
var errDuplicate = errors.New("duplicate post")

// Gateway is the platform side-effect surface the engine needs.
type Gateway interface {
	AddMarker(ctx context.Context, channelID, messageID int64) error
	DeleteMessage(ctx context.Context, channelID, messageID int64) error
}

// Engine decides, per incoming message, whether extracted post references
// are new or duplicates, and keeps the ledger consistent with the
// platform's message set.
type Engine struct {
	store   storage.Store
	gateway Gateway
	prefix  string
	log     *slog.Logger
}

// New creates an Engine. prefix is the command prefix whose messages are
// ignored on the live path.
func New(store storage.Store, gateway Gateway, prefix string, log *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		gateway: gateway,
		prefix:  prefix,
		log:     log,
	}
}

// HandleMessage processes one live message: extracts post references,
// records them when the channel's policy allows, and flags the message
// when a reference was already shared. Recording is all-or-nothing per
// message: a duplicate rolls back everything recorded for this message.
func (e *Engine) HandleMessage(ctx context.Context, msg model.InboundMessage) error {
	if msg.AuthorIsBot || strings.HasPrefix(msg.Content, e.prefix) {
		return nil
	}

	pol, configured, err := e.store.Policy(ctx, msg.ChannelID)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	if !configured || (!pol.CheckDuplicates && !pol.RecordNew) {
		return nil
	}

	refs := extract.Refs(msg.Content)
	if len(refs) == 0 {
		return nil
	}
	e.log.Debug("found post links", "message_id", msg.ID, "channel_id", msg.ChannelID, "count", len(refs))

	if !pol.RecordNew {
		// Check-only: probe without writes, nothing to roll back.
		for _, ref := range refs {
			exists, err := e.store.PostExists(ctx, ref.PostID)
			if err != nil {
				return fmt.Errorf("check post %d: %w", ref.PostID, err)
			}
			if exists {
				return e.flag(ctx, msg, ref.PostID)
			}
		}
		return nil
	}

	var dup model.PostRef
	err = e.store.InTx(ctx, func(tx storage.Ledger) error {
		if _, err := tx.RecordMessage(ctx, msg.ID, msg.ChannelID); err != nil {
			return err
		}
		recorded := make(map[int64]bool)
		for _, ref := range refs {
			if recorded[ref.PostID] {
				// Same post twice in one message is not a re-share.
				continue
			}
			if pol.CheckDuplicates {
				exists, err := tx.PostExists(ctx, ref.PostID)
				if err != nil {
					return err
				}
				if exists {
					dup = ref
					return errDuplicate
				}
			}
			if _, err := tx.RecordPost(ctx, ref.PostID, ref.AuthorHandle); err != nil {
				return err
			}
			if _, err := tx.RecordLink(ctx, msg.ID, ref.PostID); err != nil {
				return err
			}
			recorded[ref.PostID] = true
		}
		return nil
	})
	if errors.Is(err, errDuplicate) {
		return e.flag(ctx, msg, dup.PostID)
	}
	if err != nil {
		return fmt.Errorf("record message %d: %w", msg.ID, err)
	}
	return nil
}

// HandleMessageDelete removes a deleted message from the ledger so its
// posts become shareable again once no other message references them.
func (e *Engine) HandleMessageDelete(ctx context.Context, messageID int64) error {
	tracked, err := e.store.MessageExists(ctx, messageID)
	if err != nil {
		return fmt.Errorf("check message %d: %w", messageID, err)
	}
	if !tracked {
		return nil
	}

	err = e.store.InTx(ctx, func(tx storage.Ledger) error {
		return tx.DeleteMessageCascade(ctx, messageID)
	})
	if err != nil {
		return fmt.Errorf("cascade delete message %d: %w", messageID, err)
	}
	e.log.Info("untracked deleted message", "message_id", messageID)
	return nil
}

// HandleReaction deletes a message at the platform when a non-bot actor
// confirms the duplicate marker. Ledger cleanup follows through the
// resulting message-deleted event, so engine flags and manual flags
// share one deletion path.
func (e *Engine) HandleReaction(ctx context.Context, r model.InboundReaction) error {
	if r.ActorIsBot || r.Emoji != MarkerEmoji {
		return nil
	}
	if err := e.gateway.DeleteMessage(ctx, r.ChannelID, r.MessageID); err != nil {
		return fmt.Errorf("delete flagged message %d: %w", r.MessageID, err)
	}
	e.log.Info("deleted flagged message", "message_id", r.MessageID, "channel_id", r.ChannelID)
	return nil
}

func (e *Engine) flag(ctx context.Context, msg model.InboundMessage, postID int64) error {
	e.log.Info("duplicate share", "message_id", msg.ID, "channel_id", msg.ChannelID, "post_id", postID)
	if err := e.gateway.AddMarker(ctx, msg.ChannelID, msg.ID); err != nil {
		return fmt.Errorf("add marker: %w", err)
	}
	return nil
}

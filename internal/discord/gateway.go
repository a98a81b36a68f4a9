package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"dedup_bot/internal/engine"
	"dedup_bot/internal/model"
)

const historyPageSize = 100

// session is the slice of the Discord REST API the bot uses.
type session interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// gatewayClient implements engine.Gateway against the Discord API.
type gatewayClient struct {
	api session
}

func (g *gatewayClient) AddMarker(ctx context.Context, channelID, messageID int64) error {
	err := g.api.MessageReactionAdd(formatID(channelID), formatID(messageID),
		engine.MarkerEmoji, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

func (g *gatewayClient) DeleteMessage(ctx context.Context, channelID, messageID int64) error {
	err := g.api.ChannelMessageDelete(formatID(channelID), formatID(messageID),
		discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// historyClient implements backfill.History by paging through the
// channel messages endpoint.
type historyClient struct {
	api session
}

func (h *historyClient) Messages(ctx context.Context, channelID, afterID int64, fn func(model.InboundMessage) error) error {
	after := ""
	if afterID > 0 {
		after = formatID(afterID)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := h.api.ChannelMessages(formatID(channelID), historyPageSize,
			"", after, "", discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		// Pages arrive newest first; walk each page oldest first.
		for i := len(batch) - 1; i >= 0; i-- {
			msg, err := inboundMessage(batch[i])
			if err != nil {
				return err
			}
			if err := fn(msg); err != nil {
				return err
			}
		}

		after = batch[0].ID
		if len(batch) < historyPageSize {
			return nil
		}
	}
}

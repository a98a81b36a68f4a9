// Package discord adapts the Discord gateway to the dedup engine and
// backfill driver, and exposes the owner command surface.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"dedup_bot/internal/backfill"
	"dedup_bot/internal/config"
	"dedup_bot/internal/engine"
	"dedup_bot/internal/model"
	"dedup_bot/internal/storage"
)

// Bot wires gateway events to the engine and driver.
type Bot struct {
	session  *discordgo.Session
	api      session
	engine   *engine.Engine
	driver   *backfill.Driver
	store    storage.Store
	cfg      *config.Config
	log      *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Bot connected to the given storage, with its own
// Discord session. The session is opened by Run.
func New(cfg *config.Config, store storage.Store, log *slog.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	b := newBot(s, store, cfg, log)
	b.session = s

	s.AddHandler(b.onReady)
	s.AddHandler(b.onMessageCreate)
	s.AddHandler(b.onMessageDelete)
	s.AddHandler(b.onReactionAdd)

	return b, nil
}

func newBot(api session, store storage.Store, cfg *config.Config, log *slog.Logger) *Bot {
	b := &Bot{
		api:   api,
		store: store,
		cfg:   cfg,
		log:   log,
		stop:  make(chan struct{}),
	}
	b.engine = engine.New(store, &gatewayClient{api: api}, cfg.CommandPrefix, log)
	b.driver = backfill.New(store, &historyClient{api: api}, log)
	return b
}

// Run opens the gateway connection and blocks until ctx is cancelled
// or an owner issues the stop command.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer func() { _ = b.session.Close() }()

	b.log.Info("gateway connected")
	select {
	case <-ctx.Done():
	case <-b.stop:
	}
	return nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("gateway ready", "user", r.User.Username)
	go func() {
		if err := b.driver.Recover(context.Background()); err != nil {
			b.log.Error("history recovery", "error", err)
		}
	}()
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	ctx := context.Background()

	if strings.HasPrefix(m.Content, b.cfg.CommandPrefix) {
		b.dispatchOwnerCommand(ctx, m)
		return
	}

	msg, err := inboundMessage(m.Message)
	if err != nil {
		b.log.Warn("drop malformed message event", "error", err)
		return
	}
	if err := b.engine.HandleMessage(ctx, msg); err != nil {
		b.log.Error("handle message", "message_id", m.ID, "error", err)
	}
}

func (b *Bot) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	id, err := parseID(m.ID)
	if err != nil {
		b.log.Warn("drop malformed delete event", "error", err)
		return
	}
	if err := b.engine.HandleMessageDelete(context.Background(), id); err != nil {
		b.log.Error("handle message delete", "message_id", m.ID, "error", err)
	}
}

func (b *Bot) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	messageID, err := parseID(r.MessageID)
	if err != nil {
		b.log.Warn("drop malformed reaction event", "error", err)
		return
	}
	channelID, err := parseID(r.ChannelID)
	if err != nil {
		b.log.Warn("drop malformed reaction event", "error", err)
		return
	}

	reaction := model.InboundReaction{
		MessageID:  messageID,
		ChannelID:  channelID,
		Emoji:      r.Emoji.Name,
		ActorIsBot: r.Member != nil && r.Member.User != nil && r.Member.User.Bot,
	}
	if err := b.engine.HandleReaction(context.Background(), reaction); err != nil {
		b.log.Error("handle reaction", "message_id", r.MessageID, "error", err)
	}
}

func (b *Bot) dispatchOwnerCommand(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	userID, err := parseID(m.Author.ID)
	if err != nil {
		return
	}
	if !b.cfg.IsOwner(userID) {
		return
	}
	b.handleCommand(ctx, m.ChannelID, m.Content)
}

func (b *Bot) reply(channelID, text string) {
	if _, err := b.api.ChannelMessageSend(channelID, text); err != nil {
		b.log.Error("send reply", "channel_id", channelID, "error", err)
	}
}

func inboundMessage(m *discordgo.Message) (model.InboundMessage, error) {
	id, err := parseID(m.ID)
	if err != nil {
		return model.InboundMessage{}, fmt.Errorf("message id: %w", err)
	}
	channelID, err := parseID(m.ChannelID)
	if err != nil {
		return model.InboundMessage{}, fmt.Errorf("channel id: %w", err)
	}
	var guildID int64
	if m.GuildID != "" {
		guildID, err = parseID(m.GuildID)
		if err != nil {
			return model.InboundMessage{}, fmt.Errorf("guild id: %w", err)
		}
	}
	return model.InboundMessage{
		ID:          id,
		ChannelID:   channelID,
		GuildID:     guildID,
		AuthorIsBot: m.Author != nil && m.Author.Bot,
		Content:     m.Content,
	}, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse snowflake %q: %w", s, err)
	}
	return id, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

package discord

import (
	"context"
	"fmt"
	"strings"

	"dedup_bot/internal/storage"
)

const usageText = `Commands:
policy <channel_id> <check|record|history> <on|off>
table clear all
table clear channel <channel_id>
table insert <channel_id> [channel_id...]
stop`

func (b *Bot) handleCommand(ctx context.Context, channelID, content string) {
	fields := strings.Fields(strings.TrimPrefix(content, b.cfg.CommandPrefix))
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]

	b.log.Debug("owner command", "cmd", cmd, "args", args, "channel_id", channelID)

	switch cmd {
	case "policy":
		b.handlePolicy(ctx, channelID, args)
	case "table":
		b.handleTable(ctx, channelID, args)
	case "help":
		b.reply(channelID, usageText)
	case "stop":
		b.handleStop(channelID)
	default:
		b.reply(channelID, "Unknown command. Use help for the command list.")
	}
}

func (b *Bot) handlePolicy(ctx context.Context, replyTo string, args []string) {
	target, field, value, err := ParsePolicyArgs(args)
	if err != nil {
		b.reply(replyTo, err.Error())
		return
	}
	if err := b.store.SetPolicy(ctx, target, field, value); err != nil {
		b.reply(replyTo, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(replyTo, fmt.Sprintf("Channel %d: %s = %v", target, field, value))
}

func (b *Bot) handleTable(ctx context.Context, replyTo string, args []string) {
	if len(args) == 0 {
		b.reply(replyTo, usageText)
		return
	}
	switch args[0] {
	case "clear":
		b.handleTableClear(ctx, replyTo, args[1:])
	case "insert":
		b.handleTableInsert(ctx, replyTo, args[1:])
	default:
		b.reply(replyTo, usageText)
	}
}

func (b *Bot) handleTableClear(ctx context.Context, replyTo string, args []string) {
	switch {
	case len(args) == 1 && args[0] == "all":
		err := b.store.InTx(ctx, func(tx storage.Ledger) error {
			return tx.ClearAll(ctx)
		})
		if err != nil {
			b.reply(replyTo, fmt.Sprintf("Error: %v", err))
			return
		}
		b.log.Info("cleared all tracked entries")
		b.reply(replyTo, "Cleared all tracked messages, posts, and links.")

	case len(args) == 2 && args[0] == "channel":
		id, err := ParseChannelID(args[1])
		if err != nil {
			b.reply(replyTo, err.Error())
			return
		}
		err = b.store.InTx(ctx, func(tx storage.Ledger) error {
			return tx.ClearChannel(ctx, id)
		})
		if err != nil {
			b.reply(replyTo, fmt.Sprintf("Error: %v", err))
			return
		}
		b.log.Info("cleared channel entries", "channel_id", id)
		b.reply(replyTo, fmt.Sprintf("Cleared tracked entries for channel %d.", id))

	default:
		b.reply(replyTo, "Usage: table clear all | table clear channel <channel_id>")
	}
}

func (b *Bot) handleTableInsert(ctx context.Context, replyTo string, args []string) {
	ids, err := ParseChannelIDs(args)
	if err != nil {
		b.reply(replyTo, err.Error())
		return
	}
	report, err := b.driver.Import(ctx, ids)
	if err != nil {
		b.reply(replyTo, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(replyTo, FormatImportReport(report))
}

func (b *Bot) handleStop(replyTo string) {
	b.reply(replyTo, "Shutting down.")
	b.stopOnce.Do(func() { close(b.stop) })
}

// Package backfill replays channel history through the recording path.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"dedup_bot/internal/extract"
	"dedup_bot/internal/model"
	"dedup_bot/internal/storage"
)

// History streams a channel's messages oldest first, strictly after
// afterID (0 means from the beginning), calling fn for each message.
type History interface {
	Messages(ctx context.Context, channelID, afterID int64, fn func(model.InboundMessage) error) error
}

// Driver replays historical messages into the ledger. Replay records
// idempotently and never flags: oldest-first ordering already makes the
// earliest share of a post the tracked one.
type Driver struct {
	store   storage.Store
	history History
	log     *slog.Logger
}

// New creates a Driver.
func New(store storage.Store, history History, log *slog.Logger) *Driver {
	return &Driver{
		store:   store,
		history: history,
		log:     log,
	}
}

// Recover catches up every tracked channel after downtime: messages past
// each channel's high-water mark are replayed. Channels whose policy
// forbids history backfill are skipped, and one channel's failure does
// not stop the rest.
func (d *Driver) Recover(ctx context.Context) error {
	last, err := d.store.LastMessagePerChannel(ctx)
	if err != nil {
		return fmt.Errorf("load resume points: %w", err)
	}

	channelIDs := make([]int64, 0, len(last))
	for channelID := range last {
		channelIDs = append(channelIDs, channelID)
	}
	sort.Slice(channelIDs, func(i, j int) bool { return channelIDs[i] < channelIDs[j] })

	for _, channelID := range channelIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pol, configured, err := d.store.Policy(ctx, channelID)
		if err != nil {
			d.log.Error("load policy", "channel_id", channelID, "error", err)
			continue
		}
		if configured && !pol.AllowHistoryBackfill {
			continue
		}

		afterID := last[channelID]
		if err := d.replayChannel(ctx, channelID, afterID, nil); err != nil {
			d.log.Error("history recovery", "channel_id", channelID, "after", afterID, "error", err)
			continue
		}
		d.log.Info("recovered channel history", "channel_id", channelID, "after", afterID)
	}
	return nil
}

// Import replays the full history of the given channels and reports
// per-channel counters. Counters reset between channels; a channel's
// fetch failure lands in its report entry instead of aborting the run.
func (d *Driver) Import(ctx context.Context, channelIDs []int64) (model.ImportReport, error) {
	var report model.ImportReport
	for _, channelID := range channelIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		c := model.ChannelImport{ChannelID: channelID}
		if err := d.replayChannel(ctx, channelID, 0, &c); err != nil {
			c.Err = err.Error()
			d.log.Error("channel import", "channel_id", channelID, "error", err)
		} else {
			d.log.Info("imported channel", "channel_id", channelID,
				"scanned", c.Scanned, "with_refs", c.WithRefs)
		}
		report.Channels = append(report.Channels, c)
	}
	return report, nil
}

// replayChannel runs one channel's replay inside a single transaction,
// so a mid-stream failure leaves the channel untouched and retryable.
func (d *Driver) replayChannel(ctx context.Context, channelID, afterID int64, c *model.ChannelImport) error {
	return d.store.InTx(ctx, func(tx storage.Ledger) error {
		return d.history.Messages(ctx, channelID, afterID, func(msg model.InboundMessage) error {
			if c != nil {
				c.Scanned++
			}
			if msg.AuthorIsBot {
				return nil
			}
			refs := extract.Refs(msg.Content)
			if len(refs) == 0 {
				return nil
			}
			if c != nil {
				c.WithRefs++
			}

			created, err := tx.RecordMessage(ctx, msg.ID, msg.ChannelID)
			if err != nil {
				return err
			}
			if c != nil && !created {
				c.MessageCollisions++
			}
			for _, ref := range refs {
				created, err := tx.RecordPost(ctx, ref.PostID, ref.AuthorHandle)
				if err != nil {
					return err
				}
				if c != nil && !created {
					c.PostCollisions++
				}
				created, err = tx.RecordLink(ctx, msg.ID, ref.PostID)
				if err != nil {
					return err
				}
				if c != nil && !created {
					c.LinkCollisions++
				}
			}
			return nil
		})
	})
}

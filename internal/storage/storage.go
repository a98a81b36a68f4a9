// Package storage defines the persistence interfaces and their implementations.
package storage

import (
	"context"

	"dedup_bot/internal/model"
)

// Ledger is the interface for the tracked message/post/link record set.
// Record* inserts are idempotent: a key collision reports created=false
// and is never an error.
type Ledger interface {
	RecordMessage(ctx context.Context, messageID, channelID int64) (created bool, err error)
	RecordPost(ctx context.Context, postID int64, authorHandle string) (created bool, err error)
	RecordLink(ctx context.Context, messageID, postID int64) (created bool, err error)

	PostExists(ctx context.Context, postID int64) (bool, error)
	MessageExists(ctx context.Context, messageID int64) (bool, error)
	LinksForMessage(ctx context.Context, messageID int64) ([]int64, error)

	// DeleteMessageCascade removes a message, its links, and every post
	// left without a referencing link. Still-referenced posts are kept.
	DeleteMessageCascade(ctx context.Context, messageID int64) error

	// LastMessagePerChannel returns the highest tracked message ID for
	// each channel, used as the backfill resume point.
	LastMessagePerChannel(ctx context.Context) (map[int64]int64, error)

	ClearAll(ctx context.Context) error
	ClearChannel(ctx context.Context, channelID int64) error
}

// Policies is the interface for per-channel processing policy.
type Policies interface {
	// Policy returns the channel's policy and whether the channel was
	// ever configured. An unconfigured channel gets the defaults:
	// check=false, record=false, history backfill allowed.
	Policy(ctx context.Context, channelID int64) (model.ChannelPolicy, bool, error)
	SetPolicy(ctx context.Context, channelID int64, field model.PolicyField, value bool) error
}

// Store is the full persistence surface handed to the engine and driver.
type Store interface {
	Ledger
	Policies

	// InTx runs fn against a transaction-scoped ledger. The transaction
	// is rolled back when fn returns an error and committed otherwise.
	// One message's processing or one bulk operation is one InTx unit.
	InTx(ctx context.Context, fn func(Ledger) error) error

	Close() error
}

// Package model defines the domain types used across the application.
package model

// ChannelPolicy controls how messages in a channel are processed.
type ChannelPolicy struct {
	ChannelID            int64
	CheckDuplicates      bool
	RecordNew            bool
	AllowHistoryBackfill bool
}

// PolicyField names a single ChannelPolicy flag for operator updates.
type PolicyField string

// Supported policy fields.
const (
	PolicyCheckDuplicates PolicyField = "check_duplicates"
	PolicyRecordNew       PolicyField = "record_new"
	PolicyAllowHistory    PolicyField = "allow_history_backfill"
)

// PostRef is one social-media post reference extracted from message text.
type PostRef struct {
	AuthorHandle string
	PostID       int64
}

// InboundMessage is a chat message delivered by the gateway, live or historical.
type InboundMessage struct {
	ID          int64
	ChannelID   int64
	GuildID     int64
	AuthorIsBot bool
	Content     string
}

// InboundReaction is a reaction-added event delivered by the gateway.
type InboundReaction struct {
	MessageID  int64
	ChannelID  int64
	Emoji      string
	ActorIsBot bool
}

// ChannelImport holds the per-channel counters of a bulk history import.
type ChannelImport struct {
	ChannelID         int64
	Scanned           int
	WithRefs          int
	MessageCollisions int
	PostCollisions    int
	LinkCollisions    int
	Err               string
}

// ImportReport aggregates the outcome of one import command.
type ImportReport struct {
	Channels []ChannelImport
}

// Scanned returns the total number of messages scanned across all channels.
func (r ImportReport) Scanned() int {
	var n int
	for _, c := range r.Channels {
		n += c.Scanned
	}
	return n
}

// WithRefs returns the total number of messages that contained post links.
func (r ImportReport) WithRefs() int {
	var n int
	for _, c := range r.Channels {
		n += c.WithRefs
	}
	return n
}

// Collisions returns the total insert collisions per table.
func (r ImportReport) Collisions() (messages, posts, links int) {
	for _, c := range r.Channels {
		messages += c.MessageCollisions
		posts += c.PostCollisions
		links += c.LinkCollisions
	}
	return messages, posts, links
}

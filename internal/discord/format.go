package discord

import (
	"fmt"
	"strings"

	"dedup_bot/internal/model"
)

// FormatImportReport renders an import report for the operator.
func FormatImportReport(r model.ImportReport) string {
	var sb strings.Builder
	for _, c := range r.Channels {
		if c.Err != "" {
			fmt.Fprintf(&sb, "Channel %d: failed (%s)\n", c.ChannelID, c.Err)
			continue
		}
		fmt.Fprintf(&sb, "Channel %d: %d with links out of %d messages\n",
			c.ChannelID, c.WithRefs, c.Scanned)
	}

	messages, posts, links := r.Collisions()
	fmt.Fprintf(&sb, "Total: %d with links out of %d scanned\n", r.WithRefs(), r.Scanned())
	fmt.Fprintf(&sb, "Insert collisions: %d messages, %d posts, %d links", messages, posts, links)
	return sb.String()
}

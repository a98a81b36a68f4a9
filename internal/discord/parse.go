package discord

import (
	"fmt"
	"strconv"
	"strings"

	"dedup_bot/internal/model"
)

// ParsePolicyArgs parses the policy command arguments:
// <channel_id> <check|record|history> <on|off>.
func ParsePolicyArgs(args []string) (int64, model.PolicyField, bool, error) {
	if len(args) != 3 {
		return 0, "", false, fmt.Errorf("usage: policy <channel_id> <check|record|history> <on|off>")
	}

	id, err := ParseChannelID(args[0])
	if err != nil {
		return 0, "", false, err
	}

	var field model.PolicyField
	switch args[1] {
	case "check":
		field = model.PolicyCheckDuplicates
	case "record":
		field = model.PolicyRecordNew
	case "history":
		field = model.PolicyAllowHistory
	default:
		return 0, "", false, fmt.Errorf("unknown policy flag %q, use: check, record, history", args[1])
	}

	var value bool
	switch args[2] {
	case "on":
		value = true
	case "off":
		value = false
	default:
		return 0, "", false, fmt.Errorf("value must be on or off, got %q", args[2])
	}

	return id, field, value, nil
}

// ParseChannelID extracts a numeric channel ID from an argument string.
func ParseChannelID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid channel ID %q", s)
	}
	return id, nil
}

// ParseChannelIDs parses one or more channel IDs.
func ParseChannelIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one channel ID is required")
	}
	ids := make([]int64, 0, len(args))
	for _, s := range args {
		id, err := ParseChannelID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
